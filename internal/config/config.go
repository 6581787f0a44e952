package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"node-rewards-ingester/internal/logging"
	"node-rewards-ingester/internal/publisher"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	IC        ICConfig        `mapstructure:"ic"`
	Victoria  VictoriaConfig  `mapstructure:"victoria"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Backfill  BackfillConfig  `mapstructure:"backfill"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Status    StatusConfig    `mapstructure:"status"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ICConfig covers canister access through the IC agent.
type ICConfig struct {
	URL                string        `mapstructure:"url"`
	RewardsCanisters   []string      `mapstructure:"rewards_canisters"`
	GovernanceCanister string        `mapstructure:"governance_canister"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// VictoriaConfig describes the metrics store.
type VictoriaConfig struct {
	URL          string            `mapstructure:"url"`
	PushTimeout  time.Duration     `mapstructure:"push_timeout"`
	ReadyTimeout time.Duration     `mapstructure:"ready_timeout"`
	Compression  string            `mapstructure:"compression"`
	Headers      map[string]string `mapstructure:"headers"`
}

// SchedulerConfig governs the daily cadence.
type SchedulerConfig struct {
	RunOffset       time.Duration `mapstructure:"run_offset"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	ReadyInterval   time.Duration `mapstructure:"ready_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// BackfillConfig sets the startup backfill window.
type BackfillConfig struct {
	Days int `mapstructure:"days"`
}

// MetricsConfig tunes emitted series.
type MetricsConfig struct {
	EndpointLabel string `mapstructure:"endpoint_label"`
	Extended      bool   `mapstructure:"extended"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the run ledger.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// Enabled reports whether a ledger database is configured.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.DSN) != ""
}

// AlertingConfig routes failed-day notifications.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Channels  []string       `mapstructure:"channels"`
	Retention time.Duration  `mapstructure:"retention"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// StatusConfig controls the status HTTP server. An empty Addr disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Days          int `mapstructure:"days"`
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NODE_REWARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

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

// bindEnv keeps the variable names older deployments already set.
func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("victoria.url", "NODE_REWARDS_VICTORIA_URL", "VICTORIA_METRICS_URL"); err != nil {
		return fmt.Errorf("bind env: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "node-rewards-ingester")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("ic.url", "https://ic0.app")
	v.SetDefault("ic.rewards_canisters", []string{"uuew5-iiaaa-aaaaa-qbx4q-cai"})
	v.SetDefault("ic.governance_canister", "rrkah-fqaaa-aaaaa-aaaaq-cai")
	v.SetDefault("ic.request_timeout", "60s")

	v.SetDefault("victoria.url", "http://localhost:9090")
	v.SetDefault("victoria.push_timeout", "30s")
	v.SetDefault("victoria.ready_timeout", "5s")
	v.SetDefault("victoria.compression", publisher.CompressionNone)

	v.SetDefault("scheduler.run_offset", "5m")
	v.SetDefault("scheduler.cooldown", "60s")
	v.SetDefault("scheduler.ready_interval", "2s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6e727772))

	v.SetDefault("backfill.days", 40)

	v.SetDefault("metrics.endpoint_label", "canister_id")
	v.SetDefault("metrics.extended", false)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.retention", "2160h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("status.addr", ":9102")

	v.SetDefault("export.days", 40)
	v.SetDefault("export.max_data_points", 10000)

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate_on_start", true)
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
	if strings.TrimSpace(c.Victoria.URL) == "" {
		return fmt.Errorf("victoria.url is required")
	}
	if len(c.IC.RewardsCanisters) == 0 {
		return fmt.Errorf("ic.rewards_canisters must list at least one canister")
	}
	seen := make(map[string]struct{}, len(c.IC.RewardsCanisters))
	for _, id := range c.IC.RewardsCanisters {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("ic.rewards_canisters contains an empty canister id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("ic.rewards_canisters lists %s twice", id)
		}
		seen[id] = struct{}{}
	}
	if !publisher.ValidCompression(c.Victoria.Compression) {
		return fmt.Errorf("victoria.compression %q is not one of none, gzip, zstd", c.Victoria.Compression)
	}
	if c.Scheduler.RunOffset < 0 || c.Scheduler.RunOffset >= 24*time.Hour {
		return fmt.Errorf("scheduler.run_offset must be within [0, 24h)")
	}
	if c.Scheduler.ReadyInterval <= 0 {
		return fmt.Errorf("scheduler.ready_interval must be greater than zero")
	}
	if c.Backfill.Days < 0 {
		return fmt.Errorf("backfill.days cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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

// ResolveDays returns either the CLI override or the config default.
func (c *Config) ResolveDays(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.Days
}
