// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Bounds for the validity and rotation settings. Values outside these ranges
// are rejected at load time rather than silently clamped.
const (
	minAccessValiditySecs = 10
	maxAccessValiditySecs = 86400

	minRefreshValidityHours = 1
	maxRefreshValidityHours = 8760

	minKeyUpdateIntervalHours = 1
	maxKeyUpdateIntervalHours = 720
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN shared by every process using the session store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AccessTokenValiditySecs is the access token lifetime in seconds (10–86400); default 3600.
	AccessTokenValiditySecs int `mapstructure:"ACCESS_TOKEN_VALIDITY"`
	// RefreshTokenValidityHours is the session lifetime in hours (1–8760); default 2400.
	RefreshTokenValidityHours int `mapstructure:"REFRESH_TOKEN_VALIDITY"`
	// SigningKeyDynamic selects the store-backed rotating signing key; default true.
	// When false, SigningKeyValue must be set and rotation never happens.
	SigningKeyDynamic bool `mapstructure:"SIGNING_KEY_DYNAMIC"`
	// SigningKeyValue is the fixed access token signing key; required when SigningKeyDynamic is false.
	SigningKeyValue string `mapstructure:"SIGNING_KEY_VALUE"`
	// SigningKeyUpdateIntervalHours is how often the dynamic signing key rotates, in hours (1–720); default 24.
	SigningKeyUpdateIntervalHours int `mapstructure:"SIGNING_KEY_UPDATE_INTERVAL"`
	// AntiCSRFEnabled binds each session to an anti-CSRF token; default true.
	AntiCSRFEnabled bool `mapstructure:"ANTI_CSRF_ENABLED"`
	// BlacklistingEnabled makes every access token check hit the store so revocation is immediate; default false.
	BlacklistingEnabled bool `mapstructure:"BLACKLISTING_ENABLED"`
	// SweepInterval is how often the sweeper removes expired sessions (e.g. "12h").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
	// DBTxTimeout bounds a single store operation including lock waits (e.g. "5s").
	DBTxTimeout string `mapstructure:"DB_TX_TIMEOUT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ACCESS_TOKEN_VALIDITY", 3600)
	v.SetDefault("REFRESH_TOKEN_VALIDITY", 2400)
	v.SetDefault("SIGNING_KEY_DYNAMIC", true)
	v.SetDefault("SIGNING_KEY_VALUE", "")
	v.SetDefault("SIGNING_KEY_UPDATE_INTERVAL", 24)
	v.SetDefault("ANTI_CSRF_ENABLED", true)
	v.SetDefault("BLACKLISTING_ENABLED", false)
	v.SetDefault("SWEEP_INTERVAL", "12h")
	v.SetDefault("DB_TX_TIMEOUT", "5s")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("SERVICE_NAME", "session-core")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.AccessTokenValiditySecs < minAccessValiditySecs || cfg.AccessTokenValiditySecs > maxAccessValiditySecs {
		return nil, fmt.Errorf("config: ACCESS_TOKEN_VALIDITY must be between %d and %d seconds", minAccessValiditySecs, maxAccessValiditySecs)
	}
	if cfg.RefreshTokenValidityHours < minRefreshValidityHours || cfg.RefreshTokenValidityHours > maxRefreshValidityHours {
		return nil, fmt.Errorf("config: REFRESH_TOKEN_VALIDITY must be between %d and %d hours", minRefreshValidityHours, maxRefreshValidityHours)
	}
	if cfg.SigningKeyUpdateIntervalHours < minKeyUpdateIntervalHours || cfg.SigningKeyUpdateIntervalHours > maxKeyUpdateIntervalHours {
		return nil, fmt.Errorf("config: SIGNING_KEY_UPDATE_INTERVAL must be between %d and %d hours", minKeyUpdateIntervalHours, maxKeyUpdateIntervalHours)
	}
	if !cfg.SigningKeyDynamic && cfg.SigningKeyValue == "" {
		return nil, errors.New("config: SIGNING_KEY_VALUE must be set when SIGNING_KEY_DYNAMIC=false")
	}

	return &cfg, nil
}

// AccessTokenValidity returns the access token lifetime.
func (c *Config) AccessTokenValidity() time.Duration {
	return time.Duration(c.AccessTokenValiditySecs) * time.Second
}

// RefreshTokenValidity returns the session lifetime.
func (c *Config) RefreshTokenValidity() time.Duration {
	return time.Duration(c.RefreshTokenValidityHours) * time.Hour
}

// SigningKeyUpdateInterval returns the dynamic signing key rotation interval.
func (c *Config) SigningKeyUpdateInterval() time.Duration {
	return time.Duration(c.SigningKeyUpdateIntervalHours) * time.Hour
}

// SweepEvery parses SweepInterval as a time.Duration. Returns 12h if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// TxTimeout parses DBTxTimeout as a time.Duration. Returns 5s if unset or invalid.
func (c *Config) TxTimeout() time.Duration {
	d, err := time.ParseDuration(c.DBTxTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
