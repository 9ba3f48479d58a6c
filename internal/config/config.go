package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"cs2-market-watcher/internal/logging"
	"cs2-market-watcher/internal/rules"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Steam     SteamConfig     `mapstructure:"steam"`
	Inspect   InspectConfig   `mapstructure:"inspect"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Fees      FeesConfig      `mapstructure:"fees"`
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
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs pass cadence and the pause gate.
type SchedulerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	JitterFrac float64       `mapstructure:"jitter_frac"`
	WatchDelay time.Duration `mapstructure:"watch_delay"`
	PausePoll  time.Duration `mapstructure:"pause_poll"`
}

// SteamConfig covers the Steam Community Market listings endpoint.
type SteamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	CurrencyID     int           `mapstructure:"currency_id"`
	PageSize       int           `mapstructure:"page_size"`
	RPS            float64       `mapstructure:"rps"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// InspectConfig covers the float/inspect enrichment service.
type InspectConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RPS            float64       `mapstructure:"rps"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetryConfig tunes the provider retry discipline.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
}

// FeesConfig captures the marketplace fee model.
type FeesConfig struct {
	Rate     float64 `mapstructure:"rate"`
	MinCents int64   `mapstructure:"min_cents"`
}

// FeeModel converts the configured fee parameters into the engine's model.
func (f FeesConfig) FeeModel() rules.FeeModel {
	return rules.FeeModel{Rate: decimal.NewFromFloat(f.Rate), MinCents: f.MinCents}
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CSWATCHER")
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
	v.SetDefault("app.name", "cswatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.jitter_frac", 0.2)
	v.SetDefault("scheduler.watch_delay", "3s")
	v.SetDefault("scheduler.pause_poll", "5s")

	v.SetDefault("steam.base_url", "https://steamcommunity.com")
	v.SetDefault("steam.currency_id", 1)
	v.SetDefault("steam.page_size", 100)
	v.SetDefault("steam.rps", 0.5)
	v.SetDefault("steam.request_timeout", "10s")
	v.SetDefault("steam.user_agent", "cs2-market-watcher/1.0")

	v.SetDefault("inspect.rps", 0.25)
	v.SetDefault("inspect.request_timeout", "30s")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_backoff", "2s")

	v.SetDefault("fees.rate", 0.15)
	v.SetDefault("fees.min_cents", 1)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.JitterFrac < 0 || c.Scheduler.JitterFrac >= 1 {
		return fmt.Errorf("scheduler.jitter_frac must be in [0, 1)")
	}
	if c.Scheduler.PausePoll <= 0 {
		return fmt.Errorf("scheduler.pause_poll must be greater than zero")
	}
	if c.Steam.RPS <= 0 {
		return fmt.Errorf("steam.rps must be greater than zero")
	}
	if c.Inspect.RPS <= 0 {
		return fmt.Errorf("inspect.rps must be greater than zero")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be greater than zero")
	}
	if c.Retry.BaseBackoff <= 0 {
		return fmt.Errorf("retry.base_backoff must be greater than zero")
	}
	if c.Fees.Rate < 0 || c.Fees.Rate >= 1 {
		return fmt.Errorf("fees.rate must be in [0, 1)")
	}
	if c.Fees.MinCents < 0 {
		return fmt.Errorf("fees.min_cents cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
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
