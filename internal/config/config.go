package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"boxbluebook/internal/competitor"
	"boxbluebook/internal/logging"
	"boxbluebook/internal/pricing"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig               `mapstructure:"app"`
	Logging     logging.Config          `mapstructure:"logging"`
	Database    DatabaseConfig          `mapstructure:"database"`
	Scheduler   SchedulerConfig         `mapstructure:"scheduler"`
	Aggregation AggregationConfig       `mapstructure:"aggregation"`
	Scraper     ScraperConfig           `mapstructure:"scraper"`
	Competitors []competitor.Definition `mapstructure:"competitors"`
	Search      SearchConfig            `mapstructure:"search"`
	Cache       CacheConfig             `mapstructure:"cache"`
	Server      ServerConfig            `mapstructure:"server"`
	Alerting    AlertingConfig          `mapstructure:"alerting"`
	Export      ExportConfig            `mapstructure:"export"`
	Archive     ArchiveConfig           `mapstructure:"archive"`
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
}

// SchedulerConfig governs the background worker cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	ScrapeInterval  time.Duration `mapstructure:"scrape_interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	LookbackDays    int           `mapstructure:"lookback_days"`
}

// AggregationConfig tunes the price aggregator.
type AggregationConfig struct {
	Confidence          pricing.ConfidencePolicy `mapstructure:"confidence"`
	PeriodTypes         []string                 `mapstructure:"period_types"`
	BackfillConcurrency int                      `mapstructure:"backfill_concurrency"`
}

// ScraperConfig selects and throttles the scrape provider.
type ScraperConfig struct {
	Provider           string        `mapstructure:"provider"`
	ZyteAPIKey         string        `mapstructure:"zyte_api_key"`
	ZyteEndpoint       string        `mapstructure:"zyte_endpoint"`
	Concurrency        int           `mapstructure:"concurrency"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RetryCount         int           `mapstructure:"retry_count"`
	UserAgent          string        `mapstructure:"user_agent"`
	SinglePriceCeiling float64       `mapstructure:"single_price_ceiling"`
}

// SearchConfig points at Meilisearch. An empty host disables the index.
type SearchConfig struct {
	Host      string        `mapstructure:"host"`
	SearchKey string        `mapstructure:"search_key"`
	AdminKey  string        `mapstructure:"admin_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
}

// CacheConfig configures the Redis comparison cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AlertingConfig defines deal alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Cooldown     time.Duration  `mapstructure:"cooldown"`
	Retention    time.Duration  `mapstructure:"retention"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot used for alerts.
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

// ArchiveConfig sets where scrape snapshots are archived.
type ArchiveConfig struct {
	Path string `mapstructure:"path"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOXBLUEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

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
	v.SetDefault("app.name", "boxbluebook")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.scrape_interval", "6h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x62786262))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.lookback_days", 2)

	def := pricing.DefaultConfidencePolicy()
	v.SetDefault("aggregation.confidence.low_min", def.LowMin)
	v.SetDefault("aggregation.confidence.medium_min", def.MediumMin)
	v.SetDefault("aggregation.confidence.high_min", def.HighMin)
	v.SetDefault("aggregation.period_types", []string{"daily", "weekly", "monthly"})
	v.SetDefault("aggregation.backfill_concurrency", 4)

	v.SetDefault("scraper.provider", "zyte")
	v.SetDefault("scraper.zyte_api_key", "")
	v.SetDefault("scraper.zyte_endpoint", "https://api.zyte.com/v1/extract")
	v.SetDefault("scraper.concurrency", 2)
	v.SetDefault("scraper.requests_per_second", 1.0)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.request_timeout", "90s")
	v.SetDefault("scraper.retry_count", 1)
	v.SetDefault("scraper.user_agent", "")
	v.SetDefault("scraper.single_price_ceiling", 50.0)

	v.SetDefault("search.host", "")
	v.SetDefault("search.search_key", "")
	v.SetDefault("search.admin_key", "")
	v.SetDefault("search.timeout", "3s")
	v.SetDefault("search.batch_size", 500)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "10m")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 15.0)
	v.SetDefault("alerting.cooldown", "24h")
	v.SetDefault("alerting.retention", "2160h")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 5000)

	v.SetDefault("archive.path", "")
}

// bindLegacyEnv accepts the unprefixed variable names the hosted deployment already exports.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("database.dsn", "BOXBLUEBOOK_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("scraper.zyte_api_key", "BOXBLUEBOOK_SCRAPER_ZYTE_API_KEY", "ZYTE_API_KEY")
	_ = v.BindEnv("search.host", "BOXBLUEBOOK_SEARCH_HOST", "MEILISEARCH_HOST")
	_ = v.BindEnv("search.search_key", "BOXBLUEBOOK_SEARCH_SEARCH_KEY", "MEILISEARCH_SEARCH_KEY")
	_ = v.BindEnv("search.admin_key", "BOXBLUEBOOK_SEARCH_ADMIN_KEY", "MEILISEARCH_ADMIN_KEY")
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
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Aggregation.Confidence.Validate(); err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	if _, err := c.PeriodTypes(); err != nil {
		return err
	}
	if c.Aggregation.BackfillConcurrency <= 0 {
		return fmt.Errorf("aggregation.backfill_concurrency must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.ScrapeInterval <= 0 {
		return fmt.Errorf("scheduler.scrape_interval must be greater than zero")
	}
	if c.Scheduler.LookbackDays <= 0 {
		return fmt.Errorf("scheduler.lookback_days must be greater than zero")
	}
	switch c.Scraper.Provider {
	case "zyte", "html":
	default:
		return fmt.Errorf("scraper.provider must be zyte or html, got %q", c.Scraper.Provider)
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be greater than zero")
	}
	if c.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("scraper.request_timeout must be greater than zero")
	}
	if c.Scraper.SinglePriceCeiling <= 0 {
		return fmt.Errorf("scraper.single_price_ceiling must be greater than zero")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than zero when the cache is enabled")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Retention < 0 {
		return fmt.Errorf("alerting.retention cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	if _, err := competitor.NewRegistry(c.CompetitorDefinitions()); err != nil {
		return fmt.Errorf("competitors: %w", err)
	}
	return nil
}

// PeriodTypes parses the period types the worker aggregates.
func (c *Config) PeriodTypes() ([]pricing.PeriodType, error) {
	out := make([]pricing.PeriodType, 0, len(c.Aggregation.PeriodTypes))
	for _, raw := range c.Aggregation.PeriodTypes {
		pt, err := pricing.ParsePeriodType(raw)
		if err != nil {
			return nil, fmt.Errorf("aggregation.period_types: %w", err)
		}
		out = append(out, pt)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("aggregation.period_types must not be empty")
	}
	return out, nil
}

// CompetitorDefinitions returns the configured competitor table, or the built-in one.
func (c *Config) CompetitorDefinitions() []competitor.Definition {
	if len(c.Competitors) == 0 {
		return competitor.DefaultDefinitions()
	}
	return c.Competitors
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
