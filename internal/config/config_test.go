package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Helper to clear all config-related env vars
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"FIELDSYNC_CONFIG_PATH",
		"FIELDSYNC_REMOTE_URL",
		"FIELDSYNC_ACCESS_TOKEN",
		"FIELDSYNC_REMOTE_TIMEOUT",
		"FIELDSYNC_DB_PATH",
		"FIELDSYNC_SYNC_INTERVAL",
		"FIELDSYNC_PUSH_BATCH_SIZE",
		"FIELDSYNC_MAX_ATTEMPTS",
		"FIELDSYNC_PROBE_URL",
		"FIELDSYNC_MEDIA_BATCH_SIZE",
		"FIELDSYNC_S3_ACCESS_KEY",
		"FIELDSYNC_S3_SECRET_KEY",
		"FIELDSYNC_STATUS_ADDR",
		"FIELDSYNC_LOG_LEVEL",
		"FIELDSYNC_LOG_FORMAT",
		"FIELDSYNC_DEV_MODE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func setDevModeEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FIELDSYNC_DEV_MODE", "true")
}

func setProdEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FIELDSYNC_REMOTE_URL", "https://api.example.com")
	t.Setenv("FIELDSYNC_ACCESS_TOKEN", "test-token")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Sync.PushBatchSize != 50 {
		t.Errorf("expected push batch 50, got %d", cfg.Sync.PushBatchSize)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("expected max attempts 5, got %d", cfg.Sync.MaxAttempts)
	}
	if time.Duration(cfg.Sync.Interval) != 30*time.Second {
		t.Errorf("expected 30s interval, got %v", time.Duration(cfg.Sync.Interval))
	}
	if cfg.Media.BatchSize != 5 {
		t.Errorf("expected media batch 5, got %d", cfg.Media.BatchSize)
	}
	if cfg.Status.Addr != "127.0.0.1:7423" {
		t.Errorf("expected loopback default addr, got %q", cfg.Status.Addr)
	}
	if time.Duration(cfg.Sync.OutboxRetention) != 7*24*time.Hour {
		t.Errorf("expected 7d retention, got %v", time.Duration(cfg.Sync.OutboxRetention))
	}
}

func TestLoad_RequiresRemoteOutsideDevMode(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "FIELDSYNC_REMOTE_URL") {
		t.Fatalf("expected missing remote URL error, got %v", err)
	}

	t.Setenv("FIELDSYNC_REMOTE_URL", "https://api.example.com")
	_, err = Load()
	if err == nil || !strings.Contains(err.Error(), "FIELDSYNC_ACCESS_TOKEN") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	setProdEnv(t)
	t.Setenv("FIELDSYNC_SYNC_INTERVAL", "2m")
	t.Setenv("FIELDSYNC_PUSH_BATCH_SIZE", "25")
	t.Setenv("FIELDSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if time.Duration(cfg.Sync.Interval) != 2*time.Minute {
		t.Errorf("expected 2m interval, got %v", time.Duration(cfg.Sync.Interval))
	}
	if cfg.Sync.PushBatchSize != 25 {
		t.Errorf("expected batch 25, got %d", cfg.Sync.PushBatchSize)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug, got %q", cfg.Log.Level)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	clearEnv(t)
	setProdEnv(t)

	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	yaml := `
remote:
  base_url: https://yaml.example.com
  timeout: 45s
sync:
  interval: 1m
  push_batch_size: 10
media:
  batch_size: 3
status:
  addr: 127.0.0.1:9999
log:
  level: warn
  format: text
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Env var wins over YAML for the remote URL.
	if cfg.Remote.BaseURL != "https://api.example.com" {
		t.Errorf("env should override yaml, got %q", cfg.Remote.BaseURL)
	}
	if time.Duration(cfg.Remote.Timeout) != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", time.Duration(cfg.Remote.Timeout))
	}
	if cfg.Sync.PushBatchSize != 10 {
		t.Errorf("expected batch 10, got %d", cfg.Sync.PushBatchSize)
	}
	if cfg.Status.Addr != "127.0.0.1:9999" {
		t.Errorf("expected yaml addr, got %q", cfg.Status.Addr)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected text format, got %q", cfg.Log.Format)
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)

	path := filepath.Join(t.TempDir(), "fieldsync.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  interval: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected duration parse error, got %v", err)
	}
}

func TestLoad_RejectsNonPositiveBatches(t *testing.T) {
	clearEnv(t)
	setProdEnv(t)
	t.Setenv("FIELDSYNC_PUSH_BATCH_SIZE", "0")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "push_batch_size") {
		t.Fatalf("expected batch size validation error, got %v", err)
	}
}
