package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Auth         AuthConfig         `yaml:"auth"`
	Import       ImportConfig       `yaml:"import"`
	Verification VerificationConfig `yaml:"verification"`
	Dedup        DedupConfig        `yaml:"dedup"`
	Watchdog     WatchdogConfig     `yaml:"watchdog"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the configured connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// RedisConfig holds Redis settings. Redis is optional; without it progress
// snapshots and merge locks fall back to in-process state.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	APIToken string `yaml:"api_token"`
}

// ImportConfig holds CSV import settings
type ImportConfig struct {
	CleanValues    bool `yaml:"clean_values"`
	PreviewRows    int  `yaml:"preview_rows"`
	MaxUploadBytes int  `yaml:"max_upload_bytes"`
}

// VerificationConfig holds email verification settings
type VerificationConfig struct {
	Provider             string `yaml:"provider"` // "mx" is the only built-in
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
	CountErrorsAsUnknown bool   `yaml:"count_errors_as_unknown"`
}

// Timeout returns the configured per-lookup timeout as a duration
func (c VerificationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DedupConfig holds duplicate merge settings
type DedupConfig struct {
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the merge lock TTL as a duration
func (c DedupConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// WatchdogConfig holds stalled-job watchdog settings
type WatchdogConfig struct {
	Enabled           bool `yaml:"enabled"`
	IntervalSeconds   int  `yaml:"interval_seconds"`
	StaleAfterSeconds int  `yaml:"stale_after_seconds"`
}

// Interval returns the scan interval as a duration
func (c WatchdogConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// StaleAfter returns the stall threshold as a duration
func (c WatchdogConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Import.PreviewRows == 0 {
		cfg.Import.PreviewRows = 10
	}
	if cfg.Import.MaxUploadBytes == 0 {
		cfg.Import.MaxUploadBytes = 50 << 20
	}
	if cfg.Verification.Provider == "" {
		cfg.Verification.Provider = "mx"
	}
	if cfg.Verification.TimeoutSeconds == 0 {
		cfg.Verification.TimeoutSeconds = 5
	}
	if cfg.Dedup.LockTTLSeconds == 0 {
		cfg.Dedup.LockTTLSeconds = 60
	}
	if cfg.Watchdog.IntervalSeconds == 0 {
		cfg.Watchdog.IntervalSeconds = 120
	}
	if cfg.Watchdog.StaleAfterSeconds == 0 {
		cfg.Watchdog.StaleAfterSeconds = 600
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Database override (critical for deployments where config.yaml has
	// local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Auth.APIToken = v
	}
	if v := os.Getenv("IMPORT_CLEAN_VALUES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Import.CleanValues = b
		}
	}
	if v := os.Getenv("VERIFICATION_PROVIDER"); v != "" {
		cfg.Verification.Provider = v
	}

	return cfg, nil
}
