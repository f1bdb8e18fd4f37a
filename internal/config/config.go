// Package config provides configuration management for forumlens.
// Settings come from an optional YAML file with FORUMLENS_* environment
// variables layered on top; every field has a sensible default.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration settings for forumlens.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Backup  BackupConfig  `yaml:"backup"`
	Breaker BreakerConfig `yaml:"breaker"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"FORUMLENS_HOST" env-default:"127.0.0.1"`
	Port            int           `yaml:"port" env:"FORUMLENS_PORT" env-default:"8050"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"FORUMLENS_RATE_LIMIT_RPS" env-default:"20"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"FORUMLENS_RATE_LIMIT_BURST" env-default:"40"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"FORUMLENS_SHUTDOWN_TIMEOUT" env-default:"10s"`

	// UserHeader carries the authenticated user id set by the auth proxy.
	UserHeader string `yaml:"user_header" env:"FORUMLENS_USER_HEADER" env-default:"X-User-ID"`

	// AllowedOrigins lists extra hosts (glob patterns) allowed to open the
	// live events websocket. Same-host pages are always allowed.
	AllowedOrigins []string `yaml:"allowed_origins" env:"FORUMLENS_ALLOWED_ORIGINS" env-separator:","`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	DataPath      string `yaml:"data_path" env:"FORUMLENS_DATA_PATH" env-default:"./data"`
	DBFile        string `yaml:"db_file" env:"FORUMLENS_DB_FILE" env-default:"forumlens.db"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" env:"FORUMLENS_BUSY_TIMEOUT_MS" env-default:"5000"`
}

// DSN returns the SQLite database path.
func (s StorageConfig) DSN() string {
	return filepath.Join(s.DataPath, s.DBFile)
}

// IngestConfig contains upload pipeline settings.
type IngestConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"FORUMLENS_MAX_UPLOAD_BYTES" env-default:"26214400"`

	// SeedTagsPath points to a YAML file mapping cluster ids to tags.
	// Empty disables cluster-based tag seeding.
	SeedTagsPath string `yaml:"seed_tags_path" env:"FORUMLENS_SEED_TAGS_PATH" env-default:""`

	// ModelVersion labels AI questions seeded from upload columns.
	ModelVersion string `yaml:"model_version" env:"FORUMLENS_SEED_MODEL_VERSION" env-default:"upload_v1"`
}

// BackupConfig contains backup configuration.
type BackupConfig struct {
	Path   string `yaml:"path" env:"FORUMLENS_BACKUP_PATH" env-default:"./backups"`
	Verify bool   `yaml:"verify" env:"FORUMLENS_BACKUP_VERIFY" env-default:"true"`
	Keep   int    `yaml:"keep" env:"FORUMLENS_BACKUP_KEEP" env-default:"10"`

	// Interval schedules snapshots from the web process. Zero disables them.
	Interval time.Duration `yaml:"interval" env:"FORUMLENS_BACKUP_INTERVAL" env-default:"0s"`
}

// BreakerConfig tunes the circuit breaker guarding dashboard writes.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures" env:"FORUMLENS_BREAKER_MAX_FAILURES" env-default:"5"`
	OpenTimeout time.Duration `yaml:"open_timeout" env:"FORUMLENS_BREAKER_OPEN_TIMEOUT" env-default:"30s"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Level       string `yaml:"level" env:"FORUMLENS_LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"FORUMLENS_LOG_DEVELOPMENT" env-default:"false"`
}

// Load reads configuration from the YAML file at path, with environment
// variable overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration with every default applied and no
// environment or file input.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8050,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			ShutdownTimeout: 10 * time.Second,
			UserHeader:      "X-User-ID",
		},
		Storage: StorageConfig{DataPath: "./data", DBFile: "forumlens.db", BusyTimeoutMS: 5000},
		Ingest:  IngestConfig{MaxUploadBytes: 25 << 20, ModelVersion: "upload_v1"},
		Backup:  BackupConfig{Path: "./backups", Verify: true, Keep: 10},
		Breaker: BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second},
		Log:     LogConfig{Level: "info"},
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	if c.Storage.DBFile == "" {
		errs = append(errs, errors.New("storage db_file is required"))
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("ingest max_upload_bytes must be positive"))
	}
	if c.Backup.Keep < 1 {
		errs = append(errs, errors.New("backup keep must be at least 1"))
	}
	return errors.Join(errs...)
}
