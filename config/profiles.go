package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// LoadProfile returns a configuration preset for a named deployment profile.
// Environment variables still override the profile values.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch name {
	case "development":
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"

	case "testing":
		cfg.Environment = EnvTesting
		cfg.Storage.Adapter = "memory"
		cfg.Leveling.AutoSave = 0

	case "staging":
		cfg.Environment = EnvStaging
		cfg.Security.EnableRateLimit = true

	case "production":
		cfg.Environment = EnvProduction
		cfg.Logging.Level = "warn"
		cfg.Security.EnableRateLimit = true
		cfg.Server.CORSOrigin = ""
		cfg.Leveling.AutoSave = time.Minute

	default:
		return nil, fmt.Errorf("unknown profile: %s", name)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for profile %s: %w", name, err)
	}

	return cfg, nil
}

// LoadSecretsFromEnv pulls sensitive values from the environment, overriding
// whatever the config file carried. Meant for production, where credentials
// live in the process environment rather than on disk.
func (c *Config) LoadSecretsFromEnv(ctx context.Context) error {
	store := NewEnvironmentSecretStore()

	if dsn := store.GetWithDefault(ctx, "CYBERLEVELS_SQL_DSN", ""); dsn != "" {
		c.Storage.SQL.DSN = dsn
	}
	if password := store.GetWithDefault(ctx, "CYBERLEVELS_REDIS_PASSWORD", ""); password != "" {
		c.Storage.Redis.Password = password
	}
	if keys := store.GetWithDefault(ctx, "CYBERLEVELS_API_KEYS", ""); keys != "" {
		c.Security.APIKeys = strings.Split(keys, ",")
	}
	return nil
}

// SecretStore retrieves sensitive values (DSNs, passwords, API keys) from an
// external source so they can stay out of config files.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, fallback string) string
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

// NewEnvironmentSecretStore returns a SecretStore backed by the environment.
func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{}
}

// Get returns the secret for key, or an error if it is unset or empty.
func (s *EnvironmentSecretStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("secret %s is not set", key)
	}
	return value, nil
}

// GetWithDefault returns the secret for key, or fallback if it is unset.
func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
