// Package config provides configuration management for the alerting engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/models"
)

// Config holds all application configuration. It is constructed once at
// process start and passed into every component; nothing reads it globally.
type Config struct {
	Engine        EngineConfig       `mapstructure:"engine"`
	Signal        SignalConfig       `mapstructure:"signal"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Rules         []RuleConfig       `mapstructure:"-"` // Loaded separately from rules.toml
}

// EngineConfig holds run coordinator configuration.
type EngineConfig struct {
	Instruments   []string      `mapstructure:"instruments"`
	Workers       int           `mapstructure:"workers"`
	CycleDeadline time.Duration `mapstructure:"cycle_deadline"`
	QueryPageSize int           `mapstructure:"query_page_size"`
}

// SignalConfig holds signal aggregation configuration.
type SignalConfig struct {
	PriceWeight         float64       `mapstructure:"price_weight"`
	SentimentWeight     float64       `mapstructure:"sentiment_weight"`
	SentimentLookback   time.Duration `mapstructure:"sentiment_lookback"`
	IngestionInterval   time.Duration `mapstructure:"ingestion_interval"`
	MinSentimentSamples int           `mapstructure:"min_sentiment_samples"`
}

// PriceStaleness is the bound beyond which the latest price observation is
// considered a data gap: twice the expected ingestion interval.
func (s SignalConfig) PriceStaleness() time.Duration {
	return 2 * s.IngestionInterval
}

// NotificationConfig holds notification dispatch configuration.
type NotificationConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	Email       EmailConfig   `mapstructure:"email"`
	SMS         SMSConfig     `mapstructure:"sms"`
	Webhook     WebhookConfig `mapstructure:"webhook"`
}

// EmailConfig holds email channel configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// SMSConfig holds SMS channel configuration.
type SMSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIBaseURL string `mapstructure:"api_base_url"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	To         string `mapstructure:"to"`
}

// WebhookConfig holds webhook channel configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// RuleConfig is the on-disk form of an alert rule.
type RuleConfig struct {
	ID         string        `mapstructure:"id"`
	Instrument string        `mapstructure:"instrument"` // "*" for all instruments
	Metric     string        `mapstructure:"metric"`
	Comparator string        `mapstructure:"comparator"`
	Threshold  float64       `mapstructure:"threshold"`
	Absolute   bool          `mapstructure:"absolute"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	Severity   string        `mapstructure:"severity"`
	Channels   []string      `mapstructure:"channels"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/market-sentinel"
	}
	return filepath.Join(home, ".config", "market-sentinel")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadRules(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading rules.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if werr := writeTemplateConfig(configDir); werr != nil {
				return werr
			}
			// Continue with defaults when the template was just created.
			return v.Unmarshal(cfg)
		}
		return err
	}

	return v.Unmarshal(cfg)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.instruments", []string{"AAPL", "GOOGL", "MSFT"})
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.cycle_deadline", "2m")
	v.SetDefault("engine.query_page_size", 10)

	v.SetDefault("signal.price_weight", 0.5)
	v.SetDefault("signal.sentiment_weight", 0.5)
	v.SetDefault("signal.sentiment_lookback", "24h")
	v.SetDefault("signal.ingestion_interval", "5m")
	v.SetDefault("signal.min_sentiment_samples", 1)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.max_attempts", 3)
	v.SetDefault("notifications.backoff_base", "500ms")
	v.SetDefault("notifications.backoff_cap", "30s")
	v.SetDefault("notifications.send_timeout", "5s")

	v.SetDefault("storage.db_path", filepath.Join(DefaultConfigDir(), "sentinel.db"))
}

func loadRules(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("rules")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return writeTemplateRules(configDir)
		}
		return err
	}

	var wrapper struct {
		Rules []RuleConfig `mapstructure:"rules"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return err
	}
	cfg.Rules = wrapper.Rules
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("SENTINEL_SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("SENTINEL_SMS_AUTH_TOKEN"); v != "" {
		cfg.Notifications.SMS.AuthToken = v
	}
	if v := os.Getenv("SENTINEL_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
	}
}

// Validate validates the configuration, including the rule set. Rule
// validation failures are ConfigErrors and abort before any cycle runs.
func (c *Config) Validate() error {
	if c.Signal.PriceWeight < 0 || c.Signal.SentimentWeight < 0 {
		return apperrors.NewConfigError("signal", "weights must be non-negative")
	}
	sum := c.Signal.PriceWeight + c.Signal.SentimentWeight
	if sum < 0.999 || sum > 1.001 {
		return apperrors.NewConfigError("signal", fmt.Sprintf("price_weight + sentiment_weight must equal 1, got %.3f", sum))
	}
	if c.Signal.IngestionInterval <= 0 {
		return apperrors.NewConfigError("signal.ingestion_interval", "must be positive")
	}
	if c.Engine.Workers <= 0 {
		return apperrors.NewConfigError("engine.workers", "must be positive")
	}
	if c.Notifications.MaxAttempts <= 0 {
		return apperrors.NewConfigError("notifications.max_attempts", "must be positive")
	}

	if _, err := c.AlertRules(); err != nil {
		return err
	}
	return nil
}

// AlertRules converts the raw rule configs into domain rules, failing fast
// on the first malformed entry.
func (c *Config) AlertRules() ([]models.AlertRule, error) {
	rules := make([]models.AlertRule, 0, len(c.Rules))
	seen := make(map[string]bool, len(c.Rules))

	for i, rc := range c.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if rc.ID == "" {
			return nil, apperrors.NewConfigError(field, "missing rule id")
		}
		if seen[rc.ID] {
			return nil, apperrors.NewConfigError(field, fmt.Sprintf("duplicate rule id %q", rc.ID))
		}
		seen[rc.ID] = true

		metric := models.Metric(rc.Metric)
		switch metric {
		case models.MetricPrice, models.MetricSentiment, models.MetricComposite:
		default:
			return nil, apperrors.NewConfigError(field, fmt.Sprintf("unknown metric %q", rc.Metric))
		}

		cmp := models.Comparator(rc.Comparator)
		switch cmp {
		case models.ComparatorGT, models.ComparatorGTE, models.ComparatorLT, models.ComparatorLTE:
		default:
			return nil, apperrors.NewConfigError(field, fmt.Sprintf("missing or unknown comparator %q", rc.Comparator))
		}

		if rc.Cooldown < 0 {
			return nil, apperrors.NewConfigError(field, "cooldown must not be negative")
		}

		scope := rc.Instrument
		if scope == "" {
			scope = models.WildcardScope
		}

		severity := models.Severity(rc.Severity)
		switch severity {
		case models.SeverityCritical, models.SeverityWarning, models.SeverityInfo:
		case "":
			severity = models.SeverityWarning
		default:
			return nil, apperrors.NewConfigError(field, fmt.Sprintf("unknown severity %q", rc.Severity))
		}

		rules = append(rules, models.AlertRule{
			ID:              rc.ID,
			InstrumentScope: scope,
			Metric:          metric,
			Comparator:      cmp,
			Threshold:       rc.Threshold,
			Absolute:        rc.Absolute,
			Cooldown:        rc.Cooldown,
			Severity:        severity,
			Channels:        rc.Channels,
		})
	}

	return rules, nil
}
