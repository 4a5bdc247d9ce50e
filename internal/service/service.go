package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"transfer-alerts/internal/engine"
	"transfer-alerts/internal/registry"
	"transfer-alerts/internal/scheduler"
	"transfer-alerts/internal/storage"
)

// ChainLoop pairs one chain's orchestrator with its cadence and the advisory
// lock key that keeps concurrent engine instances off the same chain.
type ChainLoop struct {
	Orchestrator *engine.Orchestrator
	Scheduler    *scheduler.Scheduler
	LockKey      int64
}

// Service runs the registry refresh and all chain scan loops until the
// context is cancelled. Each chain loop is independent; they share only the
// registry snapshots and the decision store.
type Service struct {
	registry        *registry.Registry
	refreshInterval time.Duration
	loops           []ChainLoop
	locker          storage.AdvisoryLocker
	logger          zerolog.Logger
}

// New constructs the scanning service.
func New(reg *registry.Registry, refreshInterval time.Duration, loops []ChainLoop, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	return &Service{
		registry:        reg,
		refreshInterval: refreshInterval,
		loops:           loops,
		locker:          locker,
		logger:          logger.With().Str("component", "service").Logger(),
	}
}

// Run blocks until the context is cancelled or a loop fails fatally.
func (s *Service) Run(ctx context.Context) error {
	if len(s.loops) == 0 {
		return fmt.Errorf("no chains configured")
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.registry.Run(ctx, s.refreshInterval)
	})

	for _, loop := range s.loops {
		chainID := loop.Orchestrator.ChainID()
		s.logger.Info().Str("chain", string(chainID)).Msg("starting chain scan loop")

		group.Go(func() error {
			return loop.Scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
				return s.runCycle(ctx, loop)
			})
		})
	}

	return group.Wait()
}

func (s *Service) runCycle(ctx context.Context, loop ChainLoop) error {
	unlock, proceed, err := s.acquireLock(ctx, loop.LockKey)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Str("chain", string(loop.Orchestrator.ChainID())).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return loop.Orchestrator.RunCycle(ctx)
}

func (s *Service) acquireLock(ctx context.Context, key int64) (func(), bool, error) {
	if key == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
