package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Media    MediaConfig    `yaml:"media"`
	Status   StatusConfig   `yaml:"status"`
	Log      LogConfig      `yaml:"log"`
}

// RemoteConfig contains the remote endpoint settings.
type RemoteConfig struct {
	BaseURL     string   `yaml:"base_url"`
	AccessToken string   `yaml:"-"` // env-only, never in YAML
	Timeout     Duration `yaml:"timeout"`
}

// DatabaseConfig contains local store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig contains sync coordinator settings.
type SyncConfig struct {
	Interval         Duration `yaml:"interval"`
	PushBatchSize    int      `yaml:"push_batch_size"`
	MaxAttempts      int      `yaml:"max_attempts"`
	RetryBaseDelay   Duration `yaml:"retry_base_delay"`
	RetryMaxAttempts int      `yaml:"retry_max_attempts"`
	OutboxRetention  Duration `yaml:"outbox_retention"`
	ProbeURL         string   `yaml:"probe_url"`
	ProbeInterval    Duration `yaml:"probe_interval"`
}

// MediaConfig contains media upload pipeline settings.
type MediaConfig struct {
	Disabled    bool           `yaml:"disabled"`
	BatchSize   int            `yaml:"batch_size"`
	MaxAttempts int            `yaml:"max_attempts"`
	S3          S3UploadConfig `yaml:"s3"`
}

// S3UploadConfig enables the direct-S3 upload backend. When Bucket is empty
// the signed-URL backend is used instead.
type S3UploadConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool  `yaml:"use_ssl"`
}

// StatusConfig contains the local status API settings.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("FIELDSYNC_CONFIG_PATH", "config/fieldsync.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Remote: RemoteConfig{
			Timeout: Duration(30 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/fieldsync.db",
		},
		Sync: SyncConfig{
			Interval:         Duration(30 * time.Second),
			PushBatchSize:    50,
			MaxAttempts:      5,
			RetryBaseDelay:   Duration(500 * time.Millisecond),
			RetryMaxAttempts: 3,
			OutboxRetention:  Duration(7 * 24 * time.Hour),
			ProbeInterval:    Duration(15 * time.Second),
		},
		Media: MediaConfig{
			BatchSize:   5,
			MaxAttempts: 5,
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:7423",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Remote
	if v := os.Getenv("FIELDSYNC_REMOTE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("FIELDSYNC_ACCESS_TOKEN"); v != "" {
		cfg.Remote.AccessToken = v
	}
	if v := os.Getenv("FIELDSYNC_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("FIELDSYNC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Sync
	if v := os.Getenv("FIELDSYNC_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = Duration(d)
		}
	}
	if v := os.Getenv("FIELDSYNC_PUSH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.PushBatchSize = n
		}
	}
	if v := os.Getenv("FIELDSYNC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MaxAttempts = n
		}
	}
	if v := os.Getenv("FIELDSYNC_PROBE_URL"); v != "" {
		cfg.Sync.ProbeURL = v
	}

	// Media
	if v := os.Getenv("FIELDSYNC_MEDIA_DISABLED"); v != "" {
		cfg.Media.Disabled = v == "true"
	}
	if v := os.Getenv("FIELDSYNC_MEDIA_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Media.BatchSize = n
		}
	}
	if v := os.Getenv("FIELDSYNC_S3_ACCESS_KEY"); v != "" {
		cfg.Media.S3.AccessKey = v
	}
	if v := os.Getenv("FIELDSYNC_S3_SECRET_KEY"); v != "" {
		cfg.Media.S3.SecretKey = v
	}

	// Status
	if v := os.Getenv("FIELDSYNC_STATUS_ADDR"); v != "" {
		cfg.Status.Addr = v
	}

	// Log
	if v := os.Getenv("FIELDSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FIELDSYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (FIELDSYNC_DEV_MODE=true), remote validation is skipped so the
// engine can run fully offline against a local database.
func (c *Config) validate() error {
	if os.Getenv("FIELDSYNC_DEV_MODE") == "true" {
		return nil
	}

	if c.Remote.BaseURL == "" {
		return errors.New("FIELDSYNC_REMOTE_URL is required")
	}
	if c.Remote.AccessToken == "" {
		return errors.New("FIELDSYNC_ACCESS_TOKEN is required")
	}
	if c.Sync.PushBatchSize <= 0 {
		return errors.New("sync.push_batch_size must be positive")
	}
	if c.Media.BatchSize <= 0 {
		return errors.New("media.batch_size must be positive")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
