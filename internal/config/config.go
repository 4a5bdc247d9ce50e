package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"transfer-alerts/internal/logging"
)

// Tron retrieval strategies.
const (
	StrategyBlock = "block"
	StrategyToken = "token"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Chains    ChainsConfig    `mapstructure:"chains"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RegistryConfig governs token/address snapshot refreshes.
type RegistryConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	MaxPriceAge     time.Duration `mapstructure:"max_price_age"`
}

// SchedulerConfig applies to every chain loop.
type SchedulerConfig struct {
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ChainsConfig registers the scanned chains. Each chain is configured
// explicitly; there is no generic chain support.
type ChainsConfig struct {
	Tron     TronConfig `mapstructure:"tron"`
	Ethereum EVMConfig  `mapstructure:"ethereum"`
}

// TronConfig covers the polling, account-model chain.
type TronConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Strategy       string        `mapstructure:"strategy"`
	Interval       time.Duration `mapstructure:"interval"`
	BatchBlocks    uint64        `mapstructure:"batch_blocks"`
	BatchWindow    time.Duration `mapstructure:"batch_window"`
	PageSize       int           `mapstructure:"page_size"`
	MaxFanOut      int           `mapstructure:"max_fan_out"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EVMConfig covers the EVM log-scanning chain.
type EVMConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RPCURL         string        `mapstructure:"rpc_url"`
	Interval       time.Duration `mapstructure:"interval"`
	BatchBlocks    uint64        `mapstructure:"batch_blocks"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert delivery.
type AlertingConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Slack   SlackConfig `mapstructure:"slack"`
}

// SlackConfig describes the incoming-webhook sink.
type SlackConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	Channel        string        `mapstructure:"channel"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRANSFERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "transferwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("registry.refresh_interval", "1m")
	v.SetDefault("registry.max_price_age", "30m")

	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x74786665))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("chains.tron.enabled", false)
	v.SetDefault("chains.tron.base_url", "https://api.trongrid.io")
	v.SetDefault("chains.tron.strategy", StrategyBlock)
	v.SetDefault("chains.tron.interval", "6s")
	v.SetDefault("chains.tron.batch_blocks", uint64(20))
	v.SetDefault("chains.tron.batch_window", "5m")
	v.SetDefault("chains.tron.page_size", 200)
	v.SetDefault("chains.tron.max_fan_out", 4)
	v.SetDefault("chains.tron.retry_attempts", 2)
	v.SetDefault("chains.tron.retry_backoff", "2s")
	v.SetDefault("chains.tron.request_timeout", "10s")

	v.SetDefault("chains.ethereum.enabled", false)
	v.SetDefault("chains.ethereum.interval", "15s")
	v.SetDefault("chains.ethereum.batch_blocks", uint64(50))
	v.SetDefault("chains.ethereum.retry_attempts", 2)
	v.SetDefault("chains.ethereum.retry_backoff", "2s")
	v.SetDefault("chains.ethereum.request_timeout", "15s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.slack.enabled", false)
	v.SetDefault("alerting.slack.request_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Chains.Tron.Enabled {
		if c.Chains.Tron.BaseURL == "" {
			return fmt.Errorf("chains.tron.base_url must be configured")
		}
		if c.Chains.Tron.Strategy != StrategyBlock && c.Chains.Tron.Strategy != StrategyToken {
			return fmt.Errorf("chains.tron.strategy must be %q or %q", StrategyBlock, StrategyToken)
		}
		if c.Chains.Tron.Interval <= 0 {
			return fmt.Errorf("chains.tron.interval must be greater than zero")
		}
	}
	if c.Chains.Ethereum.Enabled {
		if c.Chains.Ethereum.RPCURL == "" {
			return fmt.Errorf("chains.ethereum.rpc_url must be configured")
		}
		if c.Chains.Ethereum.Interval <= 0 {
			return fmt.Errorf("chains.ethereum.interval must be greater than zero")
		}
	}
	if c.Alerting.Enabled && c.Alerting.Slack.Enabled && c.Alerting.Slack.WebhookURL == "" {
		return fmt.Errorf("alerting.slack.webhook_url must be configured")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
