package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"transfer-alerts/internal/chain"
	"transfer-alerts/internal/registry"
	"transfer-alerts/internal/storage"
)

// OrchestratorOptions tune one chain's scan loop.
type OrchestratorOptions struct {
	// BatchSize bounds how far one cycle advances, in the adapter's
	// watermark units.
	BatchSize uint64
	// RetryAttempts caps in-cycle retries of failed contract fetches.
	RetryAttempts int
	// RetryBackoff is the initial backoff, doubled per attempt.
	RetryBackoff time.Duration
	// PriceMaxAge bounds price staleness for the pricer stage.
	PriceMaxAge time.Duration
}

// Orchestrator drives one chain's scan cycle: watermark -> fetch -> decode ->
// filter -> price -> evaluate -> watermark commit. One orchestrator exists
// per chain; they run independently and share only the registry snapshot and
// the decision store.
type Orchestrator struct {
	adapter    chain.Adapter
	registry   *registry.Registry
	evaluator  *Evaluator
	watermarks storage.WatermarkStore
	pricer     Pricer
	opts       OrchestratorOptions
	logger     zerolog.Logger
}

// NewOrchestrator constructs a scan orchestrator for one chain.
func NewOrchestrator(adapter chain.Adapter, reg *registry.Registry, evaluator *Evaluator, watermarks storage.WatermarkStore, opts OrchestratorOptions, logger zerolog.Logger) *Orchestrator {
	if opts.BatchSize == 0 {
		opts.BatchSize = 100
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}

	return &Orchestrator{
		adapter:    adapter,
		registry:   reg,
		evaluator:  evaluator,
		watermarks: watermarks,
		pricer:     Pricer{MaxPriceAge: opts.PriceMaxAge},
		opts:       opts,
		logger: logger.With().
			Str("component", "orchestrator").
			Str("chain", string(adapter.ChainID())).
			Logger(),
	}
}

// ChainID returns the chain this orchestrator scans.
func (o *Orchestrator) ChainID() chain.ID {
	return o.adapter.ChainID()
}

// RunCycle executes one scan cycle. The watermark advances only after the
// whole batch has been evaluated; if any contract failure survives the retry
// budget, the watermark holds at the last fully-confirmed position so the
// range is re-scanned next cycle (decision records keep that idempotent).
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	snap := o.registry.Snapshot()
	contracts := snap.ContractsFor(o.ChainID())
	if len(contracts) == 0 {
		o.logger.Debug().Msg("no tracked contracts for chain; skipping cycle")
		return nil
	}

	head, err := o.adapter.Head(ctx)
	if err != nil {
		return fmt.Errorf("fetch head: %w", err)
	}

	watermark, found, err := o.watermarks.Watermark(ctx, o.ChainID())
	if err != nil {
		return fmt.Errorf("read watermark: %w", err)
	}
	if !found {
		// First run: start at the current head instead of scanning history.
		if err := o.watermarks.SetWatermark(ctx, o.ChainID(), head); err != nil {
			return fmt.Errorf("initialise watermark: %w", err)
		}
		o.logger.Info().Uint64("position", head).Msg("watermark initialised at head")
		return nil
	}

	rng := chain.Range{From: watermark, To: min(head, watermark+o.opts.BatchSize)}
	if rng.IsEmpty() {
		return nil
	}

	batch, err := o.fetchWithRetry(ctx, contracts, rng)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		// Cancelled between fetch and evaluate; nothing was committed.
		return err
	}

	stats, err := o.process(ctx, snap, batch.Transfers)
	if err != nil {
		return err
	}

	o.logger.Info().
		Str("range", rng.String()).
		Int("fetched", len(batch.Transfers)).
		Int("matched", stats.matched).
		Int("unpriced", stats.unpriced).
		Int("failed_contracts", len(batch.Failures)).
		Msg("scan cycle processed")

	if len(batch.Failures) > 0 {
		// Degraded cycle: hold the watermark so the range is retried in
		// full rather than silently skipping the failed contracts' data.
		for _, failure := range batch.Failures {
			o.logger.Warn().Err(failure.Err).Str("contract", failure.Contract.Address).Msg("contract failed beyond retry budget; holding watermark")
		}
		return nil
	}

	if err := o.watermarks.SetWatermark(ctx, o.ChainID(), rng.To); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

// fetchWithRetry gathers the batch, re-fetching failed contracts with
// exponential backoff inside the cycle's retry budget. Failures are values
// carried in the batch, not errors.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, contracts []chain.TrackedContract, rng chain.Range) (chain.Batch, error) {
	batch, err := o.adapter.FetchTransfers(ctx, contracts, rng)
	if err != nil {
		return chain.Batch{}, fmt.Errorf("fetch transfers %s: %w", rng, err)
	}

	backoff := o.opts.RetryBackoff
	for attempt := 1; attempt <= o.opts.RetryAttempts && len(batch.Failures) > 0; attempt++ {
		if err := sleepCtx(ctx, backoff); err != nil {
			return chain.Batch{}, err
		}
		backoff *= 2

		retry := make([]chain.TrackedContract, 0, len(batch.Failures))
		for _, failure := range batch.Failures {
			retry = append(retry, failure.Contract)
		}

		o.logger.Debug().Int("attempt", attempt).Int("contracts", len(retry)).Msg("retrying failed contract fetches")

		retried, err := o.adapter.FetchTransfers(ctx, retry, rng)
		if err != nil {
			return chain.Batch{}, fmt.Errorf("retry fetch %s: %w", rng, err)
		}

		batch.Transfers = append(batch.Transfers, retried.Transfers...)
		batch.Failures = retried.Failures
	}

	return batch, nil
}

type cycleStats struct {
	matched  int
	unpriced int
}

func (o *Orchestrator) process(ctx context.Context, snap *registry.Snapshot, transfers []chain.RawTransfer) (cycleStats, error) {
	var stats cycleStats
	now := time.Now().UTC()

	for _, raw := range transfers {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		matched, ok := Match(snap, raw)
		if !ok {
			continue
		}
		stats.matched++

		o.pricer.Price(&matched, now)
		if matched.Unpriced {
			stats.unpriced++
		}

		if err := o.evaluator.Evaluate(ctx, matched); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
