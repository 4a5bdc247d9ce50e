package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"transfer-alerts/internal/chain"
	"transfer-alerts/internal/engine"
	"transfer-alerts/internal/registry"
	"transfer-alerts/internal/storage"
)

// Backfill re-scans a historical range through the regular pipeline. The
// watermark is untouched; decision records make the re-scan idempotent, so
// transfers already evaluated by the live loop produce no duplicate alerts.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.To <= opts.From {
		return errors.New("backfill range is empty; check --from/--to")
	}

	chainID := chain.ID(opts.Chain)
	adapter, batchSize, err := a.newAdapter(chainID)
	if err != nil {
		return err
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

	snap := reg.Snapshot()
	contracts := snap.ContractsFor(chainID)
	if len(contracts) == 0 {
		return fmt.Errorf("no tracked contracts for chain %s", chainID)
	}

	var evaluator *engine.Evaluator
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: decisions are not persisted and no alerts are sent")
		evaluator = engine.NewEvaluator(newMemoryDecisionStore(), store, nil, nil, a.Logger)
	} else {
		evaluator = engine.NewEvaluator(store, store, store, a.newNotifier(), a.Logger)
	}

	pricer := engine.Pricer{MaxPriceAge: a.Config.Registry.MaxPriceAge}

	processed := 0
	failedContracts := 0
	now := time.Now().UTC()

	for cursor := opts.From; cursor < opts.To; {
		upper := min(opts.To, cursor+batchSize)
		rng := chain.Range{From: cursor, To: upper}

		batch, err := adapter.FetchTransfers(ctx, contracts, rng)
		if err != nil {
			return fmt.Errorf("fetch %s %s: %w", chainID, rng, err)
		}
		failedContracts += len(batch.Failures)

		for _, raw := range batch.Transfers {
			if err := ctx.Err(); err != nil {
				return err
			}

			matched, ok := engine.Match(snap, raw)
			if !ok {
				continue
			}
			pricer.Price(&matched, now)
			if err := evaluator.Evaluate(ctx, matched); err != nil {
				return err
			}
			processed++
		}

		cursor = upper
	}

	a.Logger.Info().Int("evaluated", processed).Int("failed_contracts", failedContracts).Msg("backfill complete")
	if failedContracts > 0 {
		return errors.New("some contract fetches failed during backfill; re-run the range")
	}
	return nil
}

// memoryDecisionStore mirrors the conditional-insert semantics of the
// durable store for dry runs and sink checks.
type memoryDecisionStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newMemoryDecisionStore() *memoryDecisionStore {
	return &memoryDecisionStore{seen: make(map[string]struct{})}
}

func (m *memoryDecisionStore) InsertDecision(_ context.Context, rec storage.DecisionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s/%s/%d", rec.Chain, rec.TxID, rec.AccountID)
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}

var _ storage.DecisionStore = (*memoryDecisionStore)(nil)
