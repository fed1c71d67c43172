// Package config loads engine configuration from a YAML file with
// environment-variable overrides. Secrets (API keys, the dispatch token)
// come from the environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the follow-up engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Content     ContentConfig     `yaml:"content"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Attachments AttachmentsConfig `yaml:"attachments"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis connection. When empty, the engine
// falls back to in-process rate limiting and Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DispatchConfig holds dispatcher tuning and the trigger endpoint secret.
type DispatchConfig struct {
	BatchSize      int    `yaml:"batch_size"`
	QueueSecret    string `yaml:"queue_secret"`
	LockTTLMinutes int    `yaml:"lock_ttl_minutes"`
}

// ContentConfig holds content-generation service settings.
type ContentConfig struct {
	AnthropicKey      string `yaml:"anthropic_key"`
	OpenAIKey         string `yaml:"openai_key"`
	Model             string `yaml:"model"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// DeliveryConfig holds provider credentials and the retry policy.
type DeliveryConfig struct {
	FromName           string `yaml:"from_name"`
	FromEmail          string `yaml:"from_email"`
	SESAccessKey       string `yaml:"ses_access_key"`
	SESSecretKey       string `yaml:"ses_secret_key"`
	SESRegion          string `yaml:"ses_region"`
	SparkPostKey       string `yaml:"sparkpost_key"`
	MaxAttempts        int    `yaml:"max_attempts"`
	AttemptTimeoutSecs int    `yaml:"attempt_timeout_seconds"`
	// SimulationFallback keeps a terminal always-succeeding provider at
	// the end of the chain. Leave on outside production.
	SimulationFallback bool `yaml:"simulation_fallback"`
}

// AttachmentsConfig holds the S3 location of rendered invoice PDFs.
type AttachmentsConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
}

// Load reads configuration from the given YAML path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads the YAML config (if path is non-empty and exists) and
// then overlays environment variables. A .env file is honored when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := Load(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DISPATCH_QUEUE_SECRET"); v != "" {
		cfg.Dispatch.QueueSecret = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Content.AnthropicKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Content.OpenAIKey = v
	}
	if v := os.Getenv("SPARKPOST_API_KEY"); v != "" {
		cfg.Delivery.SparkPostKey = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Delivery.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Delivery.SESSecretKey = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5
	}
	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 25
	}
	if c.Dispatch.LockTTLMinutes == 0 {
		c.Dispatch.LockTTLMinutes = 10
	}
	if c.Content.Model == "" {
		c.Content.Model = "claude-sonnet-4-20250514"
	}
	if c.Content.TimeoutSeconds == 0 {
		c.Content.TimeoutSeconds = 10
	}
	if c.Content.RequestsPerMinute == 0 {
		c.Content.RequestsPerMinute = 20
	}
	if c.Delivery.SESRegion == "" {
		c.Delivery.SESRegion = "us-east-1"
	}
	if c.Delivery.MaxAttempts == 0 {
		c.Delivery.MaxAttempts = 3
	}
	if c.Delivery.AttemptTimeoutSecs == 0 {
		c.Delivery.AttemptTimeoutSecs = 10
	}
	if c.Attachments.S3Region == "" {
		c.Attachments.S3Region = "us-east-1"
	}
}

// ConnMaxLifetimeDuration returns the configured connection lifetime.
func (d DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Minute
}

// Timeout returns the content-generation timeout as a duration.
func (c ContentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AttemptTimeout returns the per-attempt delivery timeout as a duration.
func (d DeliveryConfig) AttemptTimeout() time.Duration {
	return time.Duration(d.AttemptTimeoutSecs) * time.Second
}

// LockTTL returns the dispatch lock TTL as a duration.
func (d DispatchConfig) LockTTL() time.Duration {
	return time.Duration(d.LockTTLMinutes) * time.Minute
}
