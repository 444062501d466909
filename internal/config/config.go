// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
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
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	PlanCacheTTL time.Duration `yaml:"plan_cache_ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type OrdersConfig struct {
	DefaultCurrency     string   `yaml:"default_currency"`
	Currencies          []string `yaml:"currencies"`
	RateLimitPerMinute  int      `yaml:"rate_limit_per_minute"`
	IdempotencyRequired bool     `yaml:"idempotency_required"`
}

type MockGatewayConfig struct {
	Outcome string `yaml:"outcome"` // succeeded|failed|requires_action
}

type PaymentConfig struct {
	DefaultProvider string            `yaml:"default_provider"`
	Mock            MockGatewayConfig `yaml:"mock"`
}

type InventoryConfig struct {
	ReservationTTL time.Duration `yaml:"reservation_ttl"`
	CandidateBatch int           `yaml:"candidate_batch"`
	MaxRounds      int           `yaml:"max_rounds"`
}

type SchedulerConfig struct {
	ReservationSweepInterval time.Duration `yaml:"reservation_sweep_interval"`
	EsimExpiryInterval       time.Duration `yaml:"esim_expiry_interval"`
	PoolStatsInterval        time.Duration `yaml:"pool_stats_interval"`
	PaymentSettleInterval    time.Duration `yaml:"payment_settle_interval"`
}

type EventsConfig struct {
	Workers int `yaml:"workers"`
	Buffer  int `yaml:"buffer"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Orders    OrdersConfig    `yaml:"orders"`
	Payment   PaymentConfig   `yaml:"payment"`
	Inventory InventoryConfig `yaml:"inventory"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Events    EventsConfig    `yaml:"events"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates it.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw YAML. Environment overrides win over the file.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 15 * time.Second
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Redis.PlanCacheTTL <= 0 {
		c.Redis.PlanCacheTTL = 5 * time.Minute
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}

	c.Orders.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.Orders.DefaultCurrency))
	if c.Orders.DefaultCurrency == "" {
		c.Orders.DefaultCurrency = "USD"
	}
	if len(c.Orders.Currencies) == 0 {
		c.Orders.Currencies = []string{c.Orders.DefaultCurrency}
	}
	for i, cur := range c.Orders.Currencies {
		c.Orders.Currencies[i] = strings.ToUpper(strings.TrimSpace(cur))
	}
	if c.Orders.RateLimitPerMinute <= 0 {
		c.Orders.RateLimitPerMinute = 30
	}

	if c.Payment.DefaultProvider == "" {
		c.Payment.DefaultProvider = "MOCK"
	}
	c.Payment.DefaultProvider = strings.ToUpper(c.Payment.DefaultProvider)
	if c.Payment.Mock.Outcome == "" {
		c.Payment.Mock.Outcome = "succeeded"
	}

	if c.Inventory.ReservationTTL <= 0 {
		c.Inventory.ReservationTTL = 10 * time.Minute
	}
	if c.Inventory.CandidateBatch <= 0 {
		c.Inventory.CandidateBatch = 5
	}
	if c.Inventory.MaxRounds <= 0 {
		c.Inventory.MaxRounds = 3
	}

	if c.Scheduler.ReservationSweepInterval <= 0 {
		c.Scheduler.ReservationSweepInterval = time.Minute
	}
	if c.Scheduler.EsimExpiryInterval <= 0 {
		c.Scheduler.EsimExpiryInterval = time.Hour
	}
	if c.Scheduler.PoolStatsInterval <= 0 {
		c.Scheduler.PoolStatsInterval = 15 * time.Second
	}
	if c.Scheduler.PaymentSettleInterval <= 0 {
		c.Scheduler.PaymentSettleInterval = time.Minute
	}

	if c.Events.Workers <= 0 {
		c.Events.Workers = 2
	}
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = 256
	}
}

func (c *Config) validate() error {
	// Minimal validation
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Payment.Mock.Outcome {
	case "succeeded", "failed", "requires_action":
	default:
		return fmt.Errorf("payment.mock.outcome %q is not supported", c.Payment.Mock.Outcome)
	}
	found := false
	for _, cur := range c.Orders.Currencies {
		if cur == c.Orders.DefaultCurrency {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("orders.default_currency %s must be listed in orders.currencies", c.Orders.DefaultCurrency)
	}
	return nil
}
