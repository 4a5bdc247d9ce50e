package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"transfer-alerts/internal/alerting"
	"transfer-alerts/internal/chain"
	"transfer-alerts/internal/chain/evm"
	"transfer-alerts/internal/chain/tron"
	"transfer-alerts/internal/config"
	"transfer-alerts/internal/engine"
	"transfer-alerts/internal/registry"
	"transfer-alerts/internal/scheduler"
	"transfer-alerts/internal/service"
	"transfer-alerts/internal/storage"
	"transfer-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn must be configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if slack := a.Config.Alerting.Slack; slack.Enabled {
		return alerting.NewSlackNotifier(slack.WebhookURL, slack.Channel, slack.RequestTimeout, a.Logger)
	}
	return nil
}

// newAdapter builds the configured adapter for one chain, returning it with
// the batch size in the adapter's watermark units.
func (a *App) newAdapter(chainID chain.ID) (chain.Adapter, uint64, error) {
	switch chainID {
	case chain.Tron:
		cfg := a.Config.Chains.Tron
		if !cfg.Enabled {
			return nil, 0, fmt.Errorf("chain %s is not enabled", chainID)
		}
		client := tron.NewClient(tron.ClientOptions{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Timeout:   cfg.RequestTimeout,
			UserAgent: version.UserAgent(),
		}, a.Logger)

		if cfg.Strategy == config.StrategyToken {
			adapter := tron.NewTokenAdapter(client, tron.TokenAdapterOptions{
				PageSize: cfg.PageSize,
				FanOut:   cfg.MaxFanOut,
			}, a.Logger)
			return adapter, uint64(cfg.BatchWindow.Milliseconds()), nil
		}
		return tron.NewBlockAdapter(client, a.Logger), cfg.BatchBlocks, nil

	case chain.Ethereum:
		cfg := a.Config.Chains.Ethereum
		if !cfg.Enabled {
			return nil, 0, fmt.Errorf("chain %s is not enabled", chainID)
		}
		adapter := evm.New(evm.Options{
			RPCURL:  cfg.RPCURL,
			Timeout: cfg.RequestTimeout,
		}, a.Logger)
		return adapter, cfg.BatchBlocks, nil
	}
	return nil, 0, fmt.Errorf("unknown chain %q", chainID)
}

func (a *App) buildLoops(reg *registry.Registry, evaluator *engine.Evaluator, store *storage.Store) ([]service.ChainLoop, error) {
	type chainSetup struct {
		id            chain.ID
		interval      time.Duration
		retryAttempts int
		retryBackoff  time.Duration
		enabled       bool
	}

	setups := []chainSetup{
		{
			id:            chain.Tron,
			interval:      a.Config.Chains.Tron.Interval,
			retryAttempts: a.Config.Chains.Tron.RetryAttempts,
			retryBackoff:  a.Config.Chains.Tron.RetryBackoff,
			enabled:       a.Config.Chains.Tron.Enabled,
		},
		{
			id:            chain.Ethereum,
			interval:      a.Config.Chains.Ethereum.Interval,
			retryAttempts: a.Config.Chains.Ethereum.RetryAttempts,
			retryBackoff:  a.Config.Chains.Ethereum.RetryBackoff,
			enabled:       a.Config.Chains.Ethereum.Enabled,
		},
	}

	loops := make([]service.ChainLoop, 0, len(setups))
	for i, setup := range setups {
		if !setup.enabled {
			continue
		}

		adapter, batchSize, err := a.newAdapter(setup.id)
		if err != nil {
			return nil, err
		}

		orch := engine.NewOrchestrator(adapter, reg, evaluator, store, engine.OrchestratorOptions{
			BatchSize:     batchSize,
			RetryAttempts: setup.retryAttempts,
			RetryBackoff:  setup.retryBackoff,
			PriceMaxAge:   a.Config.Registry.MaxPriceAge,
		}, a.Logger)

		sched := scheduler.New(scheduler.Options{
			Interval:     setup.interval,
			AlignToStart: a.Config.Scheduler.AlignToBucket,
			StartupDelay: a.Config.Scheduler.StartupDelay,
		}, a.Logger.With().Str("chain", string(setup.id)).Logger())

		lockKey := int64(0)
		if base := a.Config.Scheduler.AdvisoryLockKey; base != 0 {
			lockKey = base + int64(i) + 1
		}

		loops = append(loops, service.ChainLoop{
			Orchestrator: orch,
			Scheduler:    sched,
			LockKey:      lockKey,
		})
	}

	if len(loops) == 0 {
		return nil, errors.New("no chains enabled; enable chains.tron or chains.ethereum")
	}
	return loops, nil
}

// Run executes the long-running scanning service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := registry.New(store, a.Logger)
	if err := reg.Refresh(ctx); err != nil {
		return fmt.Errorf("initial registry refresh: %w", err)
	}

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting disabled; decisions will be recorded without delivery")
	}

	evaluator := engine.NewEvaluator(store, store, store, notifier, a.Logger)

	loops, err := a.buildLoops(reg, evaluator, store)
	if err != nil {
		return err
	}

	svc := service.New(reg, a.Config.Registry.RefreshInterval, loops, store, a.Logger)

	a.Logger.Info().Int("chains", len(loops)).Msg("starting transfer detection engine")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("engine stopped")
	return nil
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure a historical re-scan.
type BackfillOptions struct {
	Chain  string
	From   uint64
	To     uint64
	DryRun bool
}

// SimulateOptions describe a synthetic transfer pushed through the pipeline.
type SimulateOptions struct {
	Chain     string
	Contract  string
	From      string
	To        string
	RawAmount string
	TxID      string
}
