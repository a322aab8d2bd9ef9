package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "secret_key", "password",
}

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8080"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	RedisURL               string `env:"REDIS_URL,required"`
	SigningSecret          string `env:"SIGNING_SECRET,required"`
	TokenTTLMinutes        int    `env:"TOKEN_TTL_MINUTES" envDefault:"30"`
	DeviceTokenTTLMinutes  int    `env:"DEVICE_TOKEN_TTL_MINUTES" envDefault:"10080"`
	PairingTTLMinutes      int    `env:"PAIRING_TTL_MINUTES" envDefault:"5"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
}

// TokenTTL is the lifetime of login bearer tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// DeviceTokenTTL is the lifetime of tokens issued to linked devices. It is
// deliberately longer than the login token TTL: a device link survives until
// revoked.
func (c *Config) DeviceTokenTTL() time.Duration {
	return time.Duration(c.DeviceTokenTTLMinutes) * time.Minute
}

// PairingTTL is the validity window of a QR pairing session.
func (c *Config) PairingTTL() time.Duration {
	return time.Duration(c.PairingTTLMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.PairingTTLMinutes <= 0 {
		return fmt.Errorf("PAIRING_TTL_MINUTES must be positive")
	}

	if isProduction {
		if err := validateSecret("SIGNING_SECRET", c.SigningSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
