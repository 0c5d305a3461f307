package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"farewatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Rates     RatesConfig     `mapstructure:"rates"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	DeepLinks DeepLinksConfig `mapstructure:"deep_links"`
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

// ServerConfig covers the ingestion HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AgentConfig tunes the per-page extraction loop.
type AgentConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Budget         time.Duration `mapstructure:"budget"`
	Debounce       time.Duration `mapstructure:"debounce"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	WatchURLs      []string      `mapstructure:"watch_urls"`
}

// RelayConfig governs delivery from agents to the backend.
type RelayConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RatesConfig covers currency normalisation.
type RatesConfig struct {
	ProviderURL     string        `mapstructure:"provider_url"`
	Canonical       string        `mapstructure:"canonical"`
	Staleness       time.Duration `mapstructure:"staleness"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// DedupConfig tunes observation deduplication.
type DedupConfig struct {
	PriceBucketMinor int64 `mapstructure:"price_bucket_minor"`
	ConfidenceCap    int   `mapstructure:"confidence_cap"`
}

// EvaluatorConfig governs alert evaluation cadence.
type EvaluatorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RouteScanLimit  int           `mapstructure:"route_scan_limit"`
}

// AlertingConfig defines trigger notification routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram notification channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DeepLinksConfig overrides the built-in booking link tables.
type DeepLinksConfig struct {
	Templates map[string]string `mapstructure:"templates"`
	Homepages map[string]string `mapstructure:"homepages"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FAREWATCH")
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
	v.SetDefault("app.name", "farewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.listen_addr", ":8880")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("agent.poll_interval", "900ms")
	v.SetDefault("agent.budget", "18s")
	v.SetDefault("agent.debounce", "250ms")
	v.SetDefault("agent.request_timeout", "15s")
	v.SetDefault("agent.user_agent", "farewatch-agent/1.0")

	v.SetDefault("relay.endpoint", "http://127.0.0.1:8880/api/v1/observations")
	v.SetDefault("relay.max_attempts", 4)
	v.SetDefault("relay.base_delay", "400ms")
	v.SetDefault("relay.multiplier", 2.0)
	v.SetDefault("relay.timeout", "10s")

	v.SetDefault("rates.provider_url", "https://api.exchangerate-api.com")
	v.SetDefault("rates.canonical", "GBP")
	v.SetDefault("rates.staleness", "24h")
	v.SetDefault("rates.refresh_interval", "6h")
	v.SetDefault("rates.request_timeout", "10s")

	v.SetDefault("dedup.price_bucket_minor", int64(1000))
	v.SetDefault("dedup.confidence_cap", 10)

	v.SetDefault("evaluator.interval", "5m")
	v.SetDefault("evaluator.align_to_bucket", true)
	v.SetDefault("evaluator.advisory_lock_key", int64(0x66617265))
	v.SetDefault("evaluator.startup_delay", "0s")
	v.SetDefault("evaluator.route_scan_limit", 200)

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

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
	if c.Evaluator.Interval <= 0 {
		return fmt.Errorf("evaluator.interval must be greater than zero")
	}
	if c.Dedup.PriceBucketMinor <= 0 {
		return fmt.Errorf("dedup.price_bucket_minor must be greater than zero")
	}
	if c.Dedup.ConfidenceCap <= 0 {
		return fmt.Errorf("dedup.confidence_cap must be greater than zero")
	}
	if c.Agent.PollInterval <= 0 || c.Agent.Budget <= 0 {
		return fmt.Errorf("agent poll_interval and budget must be greater than zero")
	}
	if c.Relay.MaxAttempts <= 0 {
		return fmt.Errorf("relay.max_attempts must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
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
