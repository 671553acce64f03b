package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CONFIG_FILE", "")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.NumWorkers != 50 {
		t.Errorf("NumWorkers = %d, want 50", cfg.NumWorkers)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if len(cfg.Backoff) != 3 || cfg.Backoff[0] != 30*time.Second {
		t.Errorf("Backoff = %v, want the default schedule", cfg.Backoff)
	}
	if cfg.DefaultBatchSize != 100 {
		t.Errorf("DefaultBatchSize = %d, want 100", cfg.DefaultBatchSize)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("NUM_WORKERS", "10")
	t.Setenv("MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.NumWorkers != 10 {
		t.Errorf("NumWorkers = %d, want 10", cfg.NumWorkers)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("Load should fail without DATABASE_URL")
	}
}

func TestLoad_RequiresRedisURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_URL", "")

	if _, err := Load(); err == nil {
		t.Error("Load should fail without REDIS_URL")
	}
}

func TestLoad_RejectsNonPositiveWorkers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NUM_WORKERS", "0")

	if _, err := Load(); err == nil {
		t.Error("Load should reject NUM_WORKERS=0")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("port: \"7070\"\nnum_workers: 8\ndefault_batch_size: 25\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("Port = %q, want the file value", cfg.Port)
	}
	if cfg.NumWorkers != 8 {
		t.Errorf("NumWorkers = %d, want 8", cfg.NumWorkers)
	}
	if cfg.DefaultBatchSize != 25 {
		t.Errorf("DefaultBatchSize = %d, want 25", cfg.DefaultBatchSize)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: \"7070\"\n"), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "6060" {
		t.Errorf("Port = %q, want the env value to win", cfg.Port)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\tnot yaml"), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Error("Load should fail on a malformed config file")
	}
}
