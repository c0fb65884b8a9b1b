// Package config loads and validates the application configuration from JSON
// files and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cyberlevels/adapters/redis"
	"cyberlevels/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"CYBERLEVELS_ENV"`
	Profile     string      `json:"profile" env:"CYBERLEVELS_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Leveling policy configuration
	Leveling LevelingConfig `json:"leveling"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Analytics pipeline configuration
	Analytics AnalyticsConfig `json:"analytics"`

	// Outbound webhook configuration
	Webhooks WebhooksConfig `json:"webhooks"`

	// Security configuration
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"CYBERLEVELS_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"CYBERLEVELS_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"CYBERLEVELS_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"CYBERLEVELS_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"CYBERLEVELS_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"CYBERLEVELS_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"CYBERLEVELS_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"CYBERLEVELS_SERVER_SHUTDOWN_TIMEOUT"`
}

// LevelingConfig holds the progression policy. CustomFormulas maps level
// numbers (as strings, for JSON) to required-experience expressions that
// override the default formula.
type LevelingConfig struct {
	// Policy selects the arithmetic representation: "float64" or "decimal".
	Policy string `json:"policy" env:"CYBERLEVELS_LEVELING_POLICY"`

	StartLevel int64 `json:"start_level" env:"CYBERLEVELS_LEVELING_START_LEVEL"`
	StartExp   int64 `json:"start_exp" env:"CYBERLEVELS_LEVELING_START_EXP"`
	MaxLevel   int64 `json:"max_level" env:"CYBERLEVELS_LEVELING_MAX_LEVEL"`

	Formula        string            `json:"formula" env:"CYBERLEVELS_LEVELING_FORMULA"`
	CustomFormulas map[string]string `json:"custom_formulas,omitempty" env:"CYBERLEVELS_LEVELING_CUSTOM_FORMULAS"`

	RoundingEnabled bool `json:"rounding_enabled" env:"CYBERLEVELS_LEVELING_ROUNDING_ENABLED"`
	RoundingDigits  int  `json:"rounding_digits" env:"CYBERLEVELS_LEVELING_ROUNDING_DIGITS"`

	PreventDuplicateRewards bool `json:"prevent_duplicate_rewards" env:"CYBERLEVELS_LEVELING_PREVENT_DUPLICATE_REWARDS"`
	AddLevelRewards         bool `json:"add_level_rewards" env:"CYBERLEVELS_LEVELING_ADD_LEVEL_REWARDS"`

	StackComboExp bool          `json:"stack_combo_exp" env:"CYBERLEVELS_LEVELING_STACK_COMBO_EXP"`
	ComboWindow   time.Duration `json:"combo_window" env:"CYBERLEVELS_LEVELING_COMBO_WINDOW"`

	// AutoSave flushes progression state to storage on this interval.
	AutoSave time.Duration `json:"auto_save" env:"CYBERLEVELS_LEVELING_AUTO_SAVE"`

	ProgressBar ProgressBarConfig `json:"progress_bar"`
}

// ProgressBarConfig holds progress-bar rendering settings.
type ProgressBarConfig struct {
	Bar        string `json:"bar" env:"CYBERLEVELS_LEVELING_PROGRESS_BAR"`
	Complete   string `json:"complete" env:"CYBERLEVELS_LEVELING_PROGRESS_COMPLETE"`
	Incomplete string `json:"incomplete" env:"CYBERLEVELS_LEVELING_PROGRESS_INCOMPLETE"`
	End        string `json:"end" env:"CYBERLEVELS_LEVELING_PROGRESS_END"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"CYBERLEVELS_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"CYBERLEVELS_STORAGE_FILE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"CYBERLEVELS_LOG_LEVEL"`
	Format     string            `json:"format" env:"CYBERLEVELS_LOG_FORMAT"`
	Output     string            `json:"output" env:"CYBERLEVELS_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// AnalyticsConfig holds the KPI aggregation pipeline settings
type AnalyticsConfig struct {
	Enabled        bool          `json:"enabled" env:"CYBERLEVELS_ANALYTICS_ENABLED"`
	ExportURL      string        `json:"export_url,omitempty" env:"CYBERLEVELS_ANALYTICS_EXPORT_URL"`
	ExportAPIKey   string        `json:"export_api_key,omitempty" env:"CYBERLEVELS_ANALYTICS_EXPORT_API_KEY"`
	ExportInterval time.Duration `json:"export_interval" env:"CYBERLEVELS_ANALYTICS_EXPORT_INTERVAL"`
}

// WebhooksConfig holds outbound event delivery configuration
type WebhooksConfig struct {
	Endpoints []string `json:"endpoints,omitempty" env:"CYBERLEVELS_WEBHOOK_ENDPOINTS"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"CYBERLEVELS_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"CYBERLEVELS_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"CYBERLEVELS_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"CYBERLEVELS_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"CYBERLEVELS_SECURITY_RATE_LIMIT_CLEANUP"`
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load from environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	// Validate the path for security
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	// Open the file safely after validation
	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment variables override file values
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Leveling: LevelingConfig{
			Policy:                  "float64",
			StartLevel:              1,
			StartExp:                0,
			MaxLevel:                100,
			Formula:                 "100 + (10 * {level})",
			RoundingEnabled:         true,
			RoundingDigits:          2,
			PreventDuplicateRewards: true,
			AddLevelRewards:         true,
			StackComboExp:           true,
			ComboWindow:             650 * time.Millisecond,
			AutoSave:                5 * time.Minute,
			ProgressBar: ProgressBarConfig{
				Bar:        "||||||||||",
				Complete:   "&a",
				Incomplete: "&7",
				End:        "&r",
			},
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/cyberlevels.json",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Analytics: AnalyticsConfig{
			Enabled:        false,
			ExportInterval: 6 * time.Hour,
		},
		Webhooks: WebhooksConfig{},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	// Validate environment
	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	// Validate server config
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	// Validate leveling config
	if err := c.Leveling.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("leveling config: %v", err))
	}

	// Validate storage config
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	// Validate logging config
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	// Validate security config
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	// Create a copy for redaction
	cfg := *c

	// Redact sensitive information
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if cfg.Analytics.ExportAPIKey != "" {
		cfg.Analytics.ExportAPIKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
