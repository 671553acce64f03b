package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
//
// Values are read from an optional YAML file first (CONFIG_FILE), then
// overridden by environment variables, so containers can tweak single
// settings without shipping a new file.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	NumWorkers  int    `yaml:"num_workers"`

	MaxAttempts int           `yaml:"max_attempts"`
	SendTimeout time.Duration `yaml:"send_timeout"`
	// Backoff holds the delay before each retry attempt; retries past the
	// end of the slice reuse the last entry.
	Backoff []time.Duration `yaml:"backoff"`

	DefaultBatchSize  int           `yaml:"default_batch_size"`
	DefaultBatchDelay time.Duration `yaml:"default_batch_delay"`

	// TrackingBaseURL is the public base URL for open and click tracking
	// links rendered into outgoing mail.
	TrackingBaseURL string `yaml:"tracking_base_url"`
	// SMTPHelloName is the hostname announced in the SMTP HELO/EHLO.
	SMTPHelloName string `yaml:"smtp_hello_name"`
}

// Load reads configuration from CONFIG_FILE (if set) and the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              "8080",
		NumWorkers:        50,
		MaxAttempts:       3,
		SendTimeout:       30 * time.Second,
		Backoff:           []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute},
		DefaultBatchSize:  100,
		DefaultBatchDelay: time.Second,
		TrackingBaseURL:   "http://localhost:8080",
		SMTPHelloName:     "localhost",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.NumWorkers = getEnvInt("NUM_WORKERS", cfg.NumWorkers)
	cfg.MaxAttempts = getEnvInt("MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.DefaultBatchSize = getEnvInt("DEFAULT_BATCH_SIZE", cfg.DefaultBatchSize)
	cfg.TrackingBaseURL = getEnv("TRACKING_BASE_URL", cfg.TrackingBaseURL)
	cfg.SMTPHelloName = getEnv("SMTP_HELLO_NAME", cfg.SMTPHelloName)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("NUM_WORKERS must be positive, got %d", cfg.NumWorkers)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
