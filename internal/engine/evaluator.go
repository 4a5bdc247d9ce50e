package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"transfer-alerts/internal/alerting"
	"transfer-alerts/internal/storage"
)

// Evaluator applies the per-account USD threshold to matched transfers and
// fires each alert exactly once. The decision record's atomic conditional
// insert is what makes re-observation — a re-delivered page, an overlapping
// scan window, a restart — a no-op.
type Evaluator struct {
	decisions storage.DecisionStore
	accounts  storage.AccountSource
	alerts    storage.AlertStore
	notifier  alerting.Notifier
	logger    zerolog.Logger
}

// NewEvaluator constructs the threshold evaluator. alerts and notifier may
// be nil (alerting disabled); decisions and accounts are mandatory.
func NewEvaluator(decisions storage.DecisionStore, accounts storage.AccountSource, alerts storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		decisions: decisions,
		accounts:  accounts,
		alerts:    alerts,
		notifier:  notifier,
		logger:    logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate runs the Unseen -> Evaluated transition for one transfer. An
// error return means a persistence commit point failed and the cycle must
// not advance its watermark. Notifier failures are logged, never returned
// and never retried here.
func (e *Evaluator) Evaluate(ctx context.Context, transfer EvaluatedTransfer) error {
	// Threshold is read per evaluation, not cached across the batch;
	// account configuration can change between cycles.
	account, err := e.accounts.Account(ctx, transfer.AccountID)
	if err != nil {
		return fmt.Errorf("load account %d: %w", transfer.AccountID, err)
	}

	rec := storage.DecisionRecord{
		Chain:       transfer.Chain,
		TxID:        transfer.TxID,
		AccountID:   transfer.AccountID,
		TokenSymbol: transfer.Token.Symbol,
		USDValue:    transfer.USDValue,
		Unpriced:    transfer.Unpriced,
		DecidedAt:   time.Now().UTC(),
	}
	if !transfer.Unpriced {
		rec.Fired = transfer.USDValue.GreaterThanOrEqual(account.ThresholdUSD)
	}

	inserted, err := e.decisions.InsertDecision(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist decision %s/%s: %w", transfer.Chain, transfer.TxID, err)
	}
	if !inserted {
		return nil
	}

	if transfer.Unpriced {
		e.logger.Warn().
			Str("chain", string(transfer.Chain)).
			Str("tx_id", transfer.TxID).
			Str("token", transfer.Token.Symbol).
			Msg("transfer evaluated unpriced; excluded from alerting")
		return nil
	}
	if !rec.Fired {
		return nil
	}

	if e.alerts != nil {
		audit := storage.AlertRecord{
			Chain:        transfer.Chain,
			TxID:         transfer.TxID,
			AccountID:    transfer.AccountID,
			TokenSymbol:  transfer.Token.Symbol,
			USDValue:     transfer.USDValue,
			ThresholdUSD: account.ThresholdUSD,
			Direction:    string(transfer.Direction),
		}
		if _, err := e.alerts.InsertAlert(ctx, audit); err != nil {
			e.logger.Error().Err(err).Str("tx_id", transfer.TxID).Msg("failed to persist alert record")
		}
	}

	if e.notifier != nil {
		note := alerting.Notification{
			Chain:        string(transfer.Chain),
			TxID:         transfer.TxID,
			AccountID:    account.ID,
			AccountName:  account.Name,
			Channel:      account.SlackChannel,
			TokenSymbol:  transfer.Token.Symbol,
			Quantity:     transfer.Quantity,
			USDValue:     transfer.USDValue,
			ThresholdUSD: account.ThresholdUSD,
			Direction:    string(transfer.Direction),
			From:         transfer.From,
			To:           transfer.To,
			BlockTime:    transfer.BlockTime,
		}
		if err := e.notifier.Notify(ctx, note); err != nil {
			e.logger.Error().Err(err).Str("tx_id", transfer.TxID).Msg("failed to dispatch alert")
		}
	}

	return nil
}
