// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProviderConfig carries one gateway's credentials. Secrets are passed
// explicitly into the adapter constructors, never read as ambient state, so
// tests can run isolated with fakes.
type ProviderConfig struct {
	Enabled       bool   `yaml:"enabled"`
	APIKey        string `yaml:"api_key"`
	APIBase       string `yaml:"api_base"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type PaymentConfig struct {
	DefaultProvider     string         `yaml:"default_provider"`
	DefaultCurrency     string         `yaml:"default_currency"`
	SupportedCurrencies []string       `yaml:"supported_currencies"`
	IdempotencyTTL      time.Duration  `yaml:"idempotency_ttl"`
	WebhookTolerance    time.Duration  `yaml:"webhook_tolerance"`
	IntentTTL           time.Duration  `yaml:"intent_ttl"`
	ProviderTimeout     time.Duration  `yaml:"provider_timeout"`
	CardNet             ProviderConfig `yaml:"cardnet"`
	SwiftWallet         ProviderConfig `yaml:"swiftwallet"`
	MomoCash            ProviderConfig `yaml:"momocash"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	Workers    int           `yaml:"workers"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Payment    PaymentConfig    `yaml:"payment"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Payment.DefaultCurrency == "" {
		cfg.Payment.DefaultCurrency = "USD"
	}
	if len(cfg.Payment.SupportedCurrencies) == 0 {
		cfg.Payment.SupportedCurrencies = []string{cfg.Payment.DefaultCurrency}
	}
	if cfg.Payment.IdempotencyTTL <= 0 {
		cfg.Payment.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Payment.WebhookTolerance <= 0 {
		cfg.Payment.WebhookTolerance = 5 * time.Minute
	}
	if cfg.Payment.IntentTTL <= 0 {
		cfg.Payment.IntentTTL = time.Hour
	}
	if cfg.Payment.ProviderTimeout <= 0 {
		cfg.Payment.ProviderTimeout = 30 * time.Second
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.Workers <= 0 {
		cfg.Reconciler.Workers = 8
	}

	// minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !cfg.Payment.CardNet.Enabled && !cfg.Payment.SwiftWallet.Enabled && !cfg.Payment.MomoCash.Enabled {
		return nil, errors.New("at least one payment provider must be enabled")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
