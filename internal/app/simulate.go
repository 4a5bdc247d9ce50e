package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"transfer-alerts/internal/chain"
	"transfer-alerts/internal/engine"
	"transfer-alerts/internal/registry"
)

// Simulate pushes one synthetic transfer through the pipeline against the
// live registry and the real notifier. Decisions stay in memory, so the
// command can be repeated without polluting the durable dedup state.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	rawAmount, ok := new(big.Int).SetString(opts.RawAmount, 10)
	if !ok {
		return fmt.Errorf("invalid raw amount %q", opts.RawAmount)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := registry.New(store, a.Logger)
	if err := reg.Refresh(ctx); err != nil {
		return fmt.Errorf("registry refresh: %w", err)
	}

	txID := opts.TxID
	if txID == "" {
		txID = fmt.Sprintf("simulated-%d", time.Now().UnixNano())
	}

	transfer := chain.RawTransfer{
		Chain:     chain.ID(opts.Chain),
		TxID:      txID,
		BlockTime: time.Now().UTC(),
		Contract:  opts.Contract,
		From:      opts.From,
		To:        opts.To,
		RawAmount: rawAmount,
	}

	matched, ok := engine.Match(reg.Snapshot(), transfer)
	if !ok {
		return errors.New("transfer does not match any tracked token/address; check registry contents")
	}

	pricer := engine.Pricer{MaxPriceAge: a.Config.Registry.MaxPriceAge}
	pricer.Price(&matched, time.Now().UTC())

	evaluator := engine.NewEvaluator(newMemoryDecisionStore(), store, nil, notifier, a.Logger)
	if err := evaluator.Evaluate(ctx, matched); err != nil {
		return err
	}

	a.Logger.Info().
		Str("usd_value", matched.USDValue.StringFixed(2)).
		Bool("unpriced", matched.Unpriced).
		Str("direction", string(matched.Direction)).
		Msg("simulated transfer evaluated")
	return nil
}
