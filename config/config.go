package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GatewayConfig holds all configuration for the gateway server.
// Tags use mapstructure for Viper unmarshalling.
type GatewayConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisDB     int    `mapstructure:"REDIS_DB"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Session cookie settings. The encryption key must be 128 bits (32 hex
	// characters); anything else is rejected at startup.
	SessionCookieName    string        `mapstructure:"SESSION_COOKIE_NAME"`
	SessionEncryptionKey string        `mapstructure:"SESSION_ENCRYPTION_KEY"`
	SessionLength        time.Duration `mapstructure:"SESSION_LENGTH"`

	// Upstream IdP (EDL) settings.
	EdlBaseURL      string `mapstructure:"EDL_BASE_URL"`
	EdlJwksPath     string `mapstructure:"EDL_JWKS_PATH"`
	EdlClientID     string `mapstructure:"EDL_CLIENT_ID"`
	EdlClientSecret string `mapstructure:"EDL_CLIENT_SECRET"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*GatewayConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/edlgate/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/edlgate_dev")
	v.SetDefault("MONGO_DB_NAME", "edlgate_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "edlgate")
	v.SetDefault("SESSION_COOKIE_NAME", "session")
	v.SetDefault("SESSION_LENGTH", time.Hour)
	v.SetDefault("EDL_JWKS_PATH", "/export_edl_jwks")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we fall back to env vars and
		// defaults. Anything else is a real error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg GatewayConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *GatewayConfig) validate() error {
	if c.EdlBaseURL == "" {
		return fmt.Errorf("EDL_BASE_URL is required")
	}
	if c.EdlClientID == "" || c.EdlClientSecret == "" {
		return fmt.Errorf("EDL_CLIENT_ID and EDL_CLIENT_SECRET are required")
	}

	key, err := hex.DecodeString(c.SessionEncryptionKey)
	if err != nil {
		return fmt.Errorf("SESSION_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 16 {
		return fmt.Errorf("only 128 bit session encryption keys are supported")
	}

	return nil
}

// SessionKey returns the decoded session encryption key. validate guarantees
// the decode cannot fail after LoadConfig.
func (c *GatewayConfig) SessionKey() []byte {
	key, _ := hex.DecodeString(c.SessionEncryptionKey)
	return key
}
