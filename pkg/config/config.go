// Package config loads layered service configuration (YAML file + environment).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config exposes read access to configuration values.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
	GetStringMapString(key string) map[string]string
	IsSet(key string) bool
	GetAll() map[string]interface{}
	// ConfigFileUsed returns the path of the loaded file, or "" when only
	// environment variables were used.
	ConfigFileUsed() string
}

type viperConfig struct {
	v *viper.Viper
}

func (c *viperConfig) GetString(key string) string { return c.v.GetString(key) }

func (c *viperConfig) GetInt(key string) int { return c.v.GetInt(key) }

func (c *viperConfig) GetBool(key string) bool { return c.v.GetBool(key) }

func (c *viperConfig) GetFloat64(key string) float64 { return c.v.GetFloat64(key) }

func (c *viperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

func (c *viperConfig) GetStringSlice(key string) []string { return c.v.GetStringSlice(key) }

func (c *viperConfig) GetStringMapString(key string) map[string]string {
	return c.v.GetStringMapString(key)
}

func (c *viperConfig) IsSet(key string) bool { return c.v.IsSet(key) }

func (c *viperConfig) GetAll() map[string]interface{} { return c.v.AllSettings() }

func (c *viperConfig) ConfigFileUsed() string { return c.v.ConfigFileUsed() }

const configDir = "configs"

// Load reads configs/{APP_ENV}/{serviceName}.yaml (or CONFIG_PATH), falling
// back to configs/example. Keys can be overridden by environment variables
// prefixed with the upper-cased service name, e.g. BILLING_SERVER_HTTP_PORT.
//
// A missing file is not an error: env-only deployments get an empty file layer.
func Load(serviceName string) (Config, error) {
	v := viper.New()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	v.SetConfigType("yaml")

	v.SetEnvPrefix(strings.ToUpper(serviceName))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(configDir, env)
	}

	// CONFIG_PATH may also point straight at a file
	if strings.HasSuffix(configPath, ".yaml") || strings.HasSuffix(configPath, ".yml") {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		return &viperConfig{v: v}, nil
	}

	v.SetConfigName(serviceName)
	v.AddConfigPath(configPath)
	v.AddConfigPath(filepath.Join(configDir, "example"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	return &viperConfig{v: v}, nil
}
