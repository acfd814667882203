// Package config loads the server configuration from a YAML file and
// BEACON_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `mapstructure:"listen"`

	// Store selects the KV backend.
	Store StoreConfig `mapstructure:"store"`

	// AdminTokenHash is the argon2id hash of the operator admin token,
	// as produced by `beaconctl hash-token`.
	AdminTokenHash string `mapstructure:"admin_token_hash"`

	// VerifierURL is the endpoint of the signature verification service.
	VerifierURL string `mapstructure:"verifier_url"`

	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`
}

// StoreConfig selects and parameterizes the KV backend. Exactly one backend
// is active: Postgres when DSN is set, SQLite otherwise.
type StoreConfig struct {
	// SqlitePath is the SQLite database file path.
	SqlitePath string `mapstructure:"sqlite_path"`
	// PostgresDSN, when non-empty, switches the store to Postgres.
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// File, when set, also writes rotated logs to this path.
	File string `mapstructure:"file"`
	// Development toggles development-friendly logging options.
	Development bool `mapstructure:"development"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Store: StoreConfig{
			SqlitePath: "data/beacon.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from path (optional) and the environment, on top
// of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("store.sqlite_path", cfg.Store.SqlitePath)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.AdminTokenHash == "" {
		return errors.New("admin_token_hash is required")
	}
	if c.VerifierURL == "" {
		return errors.New("verifier_url is required")
	}
	if c.Store.PostgresDSN == "" && c.Store.SqlitePath == "" {
		return errors.New("store: either postgres_dsn or sqlite_path is required")
	}
	return nil
}
