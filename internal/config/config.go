// Package config provides configuration management for the pattern scanner.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stock-pattern/internal/analysis/patterns"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Detector      DetectorConfig     `mapstructure:"detector"`
	Scan          ScanConfig         `mapstructure:"scan"`
	Data          DataConfig         `mapstructure:"data"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Store         StoreConfig        `mapstructure:"store"`
	Server        ServerConfig       `mapstructure:"server"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       logging.LogConfig  `mapstructure:"logging"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// DetectorConfig selects a parameter profile. Keys under [detector.params]
// override individual profile values.
type DetectorConfig struct {
	Profile string          `mapstructure:"profile"`
	Params  patterns.Params `mapstructure:"-"`
}

// ScanConfig controls batch scans.
type ScanConfig struct {
	Tickers     []string `mapstructure:"tickers"`
	TickerSet   string   `mapstructure:"ticker_set"` // stocks, nasdaq
	Concurrency int      `mapstructure:"concurrency"`
	Schedule    string   `mapstructure:"schedule"` // cron expression for serve
	LatestOnly  bool     `mapstructure:"latest_only"`
	HistoryBars int      `mapstructure:"history_bars"`
}

// DataConfig selects where bar history comes from.
type DataConfig struct {
	Provider          string        `mapstructure:"provider"` // alphavantage, polygon, csv, parquet
	Dir               string        `mapstructure:"dir"`
	Interval          string        `mapstructure:"interval"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Persist           bool          `mapstructure:"persist"`
	MaxAge            time.Duration `mapstructure:"max_age"`
}

// CacheConfig holds the optional Redis bar cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StoreConfig selects the database.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Addr        string        `mapstructure:"addr"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	Metrics     bool          `mapstructure:"metrics"`
	ScanTimeout time.Duration `mapstructure:"scan_timeout"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Level   string        `mapstructure:"level"` // all, setups_only, errors_only
	Webhook WebhookConfig `mapstructure:"webhook"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Email   EmailConfig   `mapstructure:"email"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// SlackConfig holds Slack incoming-webhook configuration.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// Credentials holds API credentials.
type Credentials struct {
	AlphaVantage APIKeyCredentials `mapstructure:"alphavantage"`
	Polygon      APIKeyCredentials `mapstructure:"polygon"`
}

// APIKeyCredentials holds a single API key.
type APIKeyCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// ErrTemplateCreated is returned when a missing config file was replaced by
// a template that needs editing.
var ErrTemplateCreated = errors.New("config template created")

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stock-pattern"
	}
	return filepath.Join(home, ".config", "stock-pattern")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	cfg, err := loadConfigFile(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.Detector.Params = patterns.DefaultParams()
	return cfg
}

// loadDotEnv reads .env files from the working directory and configDir.
// Missing files are ignored; existing environment variables win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("detector.profile", "default")

	v.SetDefault("scan.ticker_set", "stocks")
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.schedule", "30 16 * * 1-5")
	v.SetDefault("scan.latest_only", true)
	v.SetDefault("scan.history_bars", 150)

	v.SetDefault("data.provider", "alphavantage")
	v.SetDefault("data.dir", filepath.Join(configDir, "data"))
	v.SetDefault("data.interval", "daily")
	v.SetDefault("data.requests_per_minute", 5)
	v.SetDefault("data.timeout", "30s")
	v.SetDefault("data.persist", true)
	v.SetDefault("data.max_age", "6h")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", filepath.Join(configDir, "stock-pattern.db"))

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.metrics", true)
	v.SetDefault("server.scan_timeout", "10m")

	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.email.smtp_port", 465)

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.console", logDefaults.Console)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "scanner.log"))
	v.SetDefault("logging.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age", logDefaults.MaxAge)
}

func loadConfigFile(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, createTemplateConfig(configDir)
		}
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	params, err := patterns.Profile(cfg.Detector.Profile)
	if err != nil {
		return nil, err
	}
	if sub := v.Sub("detector.params"); sub != nil {
		if err := sub.Unmarshal(&params); err != nil {
			return nil, fmt.Errorf("decoding detector.params: %w", err)
		}
	}
	cfg.Detector.Params = params

	return cfg, nil
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Credentials may come from the environment alone.
			_ = writeTemplate(filepath.Join(configDir, "credentials.toml"), credentialsTemplate, 0600)
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.Credentials.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Credentials.Polygon.APIKey = v
	}
	if v := os.Getenv("STOCKPATTERN_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("STOCKPATTERN_REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Slack.WebhookURL = v
	}
	if v := os.Getenv("STOCKPATTERN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Detector.Params.Validate(); err != nil {
		return err
	}

	if c.Scan.Concurrency < 1 {
		return apperrors.NewValidationError("scan.concurrency", c.Scan.Concurrency, "must be at least 1")
	}
	if c.Server.ScanTimeout <= 0 {
		return apperrors.NewValidationError("server.scan_timeout", c.Server.ScanTimeout.String(), "must be positive")
	}
	if len(c.Scan.Tickers) == 0 {
		if _, ok := TickerSets[c.Scan.TickerSet]; !ok {
			return apperrors.NewValidationError("scan.ticker_set", c.Scan.TickerSet, "must be one of "+strings.Join(TickerSetNames(), ", "))
		}
	}
	if need := c.Detector.Params.MinBars(); c.Scan.HistoryBars < need {
		return apperrors.NewValidationError("scan.history_bars", c.Scan.HistoryBars, fmt.Sprintf("must be at least %d for the detector", need))
	}

	switch c.Data.Provider {
	case "alphavantage", "polygon", "csv", "parquet":
	default:
		return apperrors.NewValidationError("data.provider", c.Data.Provider, "must be alphavantage, polygon, csv or parquet")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return apperrors.NewValidationError("store.path", "", "required for sqlite")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return apperrors.NewValidationError("store.dsn", "", "required for postgres")
		}
	default:
		return apperrors.NewValidationError("store.driver", c.Store.Driver, "must be sqlite or postgres")
	}

	switch c.Notifications.Level {
	case "", "all", "setups_only", "errors_only":
	default:
		return apperrors.NewValidationError("notifications.level", c.Notifications.Level, "must be all, setups_only or errors_only")
	}

	return nil
}

// ScanTickers returns the explicit ticker list or the configured set.
func (c *Config) ScanTickers() []string {
	if len(c.Scan.Tickers) > 0 {
		return c.Scan.Tickers
	}
	return TickerSets[c.Scan.TickerSet]
}
