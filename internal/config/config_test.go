package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
service:
  client_url: https://aimastery.example
  stripe_secret_key: sk_test_123
  stripe_webhook_secret: whsec_123
server:
  http:
    port: 8085
database:
  driver: memory
checkout:
  timeout: 3s
  prices:
    social_pack: price_social
    pro_vincien: price_pro
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yaml"), []byte(sampleYAML), 0o600))
	t.Setenv("CONFIG_PATH", dir)
	t.Setenv("BILLING_WEBHOOK_MAX_APPLY_ATTEMPTS", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://aimastery.example", cfg.Service.ClientURL)
	assert.Equal(t, 8085, cfg.Server.HTTP.Port)
	assert.Equal(t, 9090, cfg.Server.GRPC.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 3*time.Second, cfg.Checkout.Timeout)
	assert.Equal(t, "price_social", cfg.Checkout.Prices["social_pack"])
	assert.Equal(t, 5, cfg.Webhook.MaxApplyAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Webhook.RetryBackoff)
	assert.Equal(t, "billing.events", cfg.Redis.Channel)
	assert.Equal(t, ":8085", cfg.Server.HTTP.Address())
}

func TestValidate(t *testing.T) {
	t.Run("missing stripe secrets fail fast", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", t.TempDir())
		t.Setenv("STRIPE_SECRET_KEY", "")
		t.Setenv("STRIPE_WEBHOOK_SECRET", "")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stripe_secret_key")
		assert.Contains(t, err.Error(), "stripe_webhook_secret")
	})

	t.Run("plain stripe env names are honoured", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", t.TempDir())
		t.Setenv("STRIPE_SECRET_KEY", "sk_env")
		t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")
		t.Setenv("BILLING_DATABASE_DRIVER", "memory")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, "sk_env", cfg.Service.StripeSecretKey)
	})

	t.Run("postgres needs a database name", func(t *testing.T) {
		cfg := &Config{
			Service:  ServiceConfig{StripeSecretKey: "sk", StripeWebhookSecret: "wh"},
			Database: DatabaseConfig{Driver: DriverPostgres},
			Webhook:  WebhookConfig{MaxApplyAttempts: 1},
		}
		assert.ErrorContains(t, cfg.Validate(), "database.name")

		cfg.Database.Driver = "mongo"
		assert.ErrorContains(t, cfg.Validate(), "unsupported database.driver")
	})
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "billing", Password: "secret", Name: "billing", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=billing password=secret dbname=billing sslmode=disable", db.DSN())
}
