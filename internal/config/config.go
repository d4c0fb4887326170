package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	pkgconfig "github.com/fullmeo/aimastery-billing/pkg/config"
)

const serviceName = "billing"

type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Checkout CheckoutConfig `yaml:"checkout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	FilePath    string `yaml:"file_path"`
	Development bool   `yaml:"development"`
}

type JWTConfig struct {
	Secret    string `yaml:"secret"`
	AdminRole string `yaml:"admin_role"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// WebhookConfig bounds the retry of transient store failures while applying
// a verified provider event.
type WebhookConfig struct {
	MaxApplyAttempts int           `yaml:"max_apply_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type CheckoutConfig struct {
	Timeout           time.Duration     `yaml:"timeout"`
	MaxNetworkRetries int               `yaml:"max_network_retries"`
	Prices            map[string]string `yaml:"prices"` // plan id -> provider price id
}

// LoadConfig reads configs/{APP_ENV}/billing.yaml with BILLING_* env overrides.
func LoadConfig() (*Config, error) {
	raw, err := pkgconfig.Load(serviceName)
	if err != nil {
		return nil, err
	}
	return FromSource(raw), nil
}

// FromSource builds a Config from any config source, applying defaults.
func FromSource(raw pkgconfig.Config) *Config {
	cfg := &Config{}

	cfg.Service.Name = stringOr(raw.GetString("service.name"), "billing")
	cfg.Service.Environment = stringOr(raw.GetString("service.environment"), "dev")
	cfg.Service.Version = raw.GetString("service.version")
	cfg.Service.ClientURL = stringOr(raw.GetString("service.client_url"), "http://localhost:3000")
	cfg.Service.StripeSecretKey = stringOr(raw.GetString("service.stripe_secret_key"), os.Getenv("STRIPE_SECRET_KEY"))
	cfg.Service.StripeWebhookSecret = stringOr(raw.GetString("service.stripe_webhook_secret"), os.Getenv("STRIPE_WEBHOOK_SECRET"))

	cfg.Server.HTTP.Host = raw.GetString("server.http.host")
	cfg.Server.HTTP.Port = intOr(raw.GetInt("server.http.port"), 8080)
	cfg.Server.GRPC.Host = raw.GetString("server.grpc.host")
	cfg.Server.GRPC.Port = intOr(raw.GetInt("server.grpc.port"), 9090)

	cfg.Database.Driver = stringOr(raw.GetString("database.driver"), DriverPostgres)
	cfg.Database.Host = stringOr(raw.GetString("database.host"), "localhost")
	cfg.Database.Port = intOr(raw.GetInt("database.port"), 5432)
	cfg.Database.Name = raw.GetString("database.name")
	cfg.Database.User = raw.GetString("database.user")
	cfg.Database.Password = raw.GetString("database.password")
	cfg.Database.SSLMode = stringOr(raw.GetString("database.ssl_mode"), "disable")
	cfg.Database.MaxOpenConns = intOr(raw.GetInt("database.max_open_conns"), 25)
	cfg.Database.MaxIdleConns = intOr(raw.GetInt("database.max_idle_conns"), 5)
	cfg.Database.ConnMaxLifetime = durationOr(raw.GetDuration("database.conn_max_lifetime"), 5*time.Minute)
	cfg.Database.ConnMaxIdleTime = durationOr(raw.GetDuration("database.conn_max_idle_time"), time.Minute)
	cfg.Database.MaxAppliedKeys = intOr(raw.GetInt("database.max_applied_keys"), 10000)

	cfg.Log.Level = stringOr(raw.GetString("log.level"), "info")
	cfg.Log.Format = stringOr(raw.GetString("log.format"), "json")
	cfg.Log.Output = stringOr(raw.GetString("log.output"), "stdout")
	cfg.Log.FilePath = raw.GetString("log.file_path")
	cfg.Log.Development = raw.GetBool("log.development")

	cfg.JWT.Secret = raw.GetString("jwt.secret")
	cfg.JWT.AdminRole = stringOr(raw.GetString("jwt.admin_role"), "admin")

	cfg.Redis.Addr = raw.GetString("redis.addr")
	cfg.Redis.Password = raw.GetString("redis.password")
	cfg.Redis.DB = raw.GetInt("redis.db")
	cfg.Redis.Channel = stringOr(raw.GetString("redis.channel"), "billing.events")

	cfg.Webhook.MaxApplyAttempts = intOr(raw.GetInt("webhook.max_apply_attempts"), 3)
	cfg.Webhook.RetryBackoff = durationOr(raw.GetDuration("webhook.retry_backoff"), 100*time.Millisecond)

	cfg.Checkout.Timeout = durationOr(raw.GetDuration("checkout.timeout"), 10*time.Second)
	cfg.Checkout.MaxNetworkRetries = intOr(raw.GetInt("checkout.max_network_retries"), 2)
	cfg.Checkout.Prices = raw.GetStringMapString("checkout.prices")

	return cfg
}

// Validate fails fast on settings the service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Service.StripeSecretKey == "" {
		errs = append(errs, errors.New("service.stripe_secret_key is required"))
	}
	if c.Service.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("service.stripe_webhook_secret is required"))
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Webhook.MaxApplyAttempts < 1 {
		errs = append(errs, errors.New("webhook.max_apply_attempts must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
