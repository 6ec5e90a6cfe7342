// Package config loads engine configuration from a YAML file with
// environment-variable overrides for secrets and deploy-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine binaries.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SES      SESConfig      `yaml:"ses"`
	Tracking TrackingConfig `yaml:"tracking"`
	Queue    QueueConfig    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection settings for the rate limiter.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES transport settings.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// TrackingConfig holds tracking token and endpoint settings.
type TrackingConfig struct {
	BaseURL    string `yaml:"base_url"`
	SigningKey string `yaml:"signing_key"`
	Port       int    `yaml:"port"`
}

// QueueConfig holds delivery queue tuning.
type QueueConfig struct {
	Workers           int           `yaml:"workers"`
	RatePerSecond     int           `yaml:"rate_per_second"`
	BatchSize         int           `yaml:"batch_size"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads the YAML file (if present) and then overlays environment
// variables. A missing file is not an error so containers can run on env alone.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.SES.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.SES.SecretAccessKey = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SECRET"); v != "" {
		cfg.Tracking.SigningKey = v
	}
	if v := os.Getenv("EMAIL_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.RatePerSecond = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
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
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.SES.Region == "" {
		c.SES.Region = "us-east-1"
	}
	if c.SES.TimeoutSeconds == 0 {
		c.SES.TimeoutSeconds = 30
	}
	if c.Tracking.Port == 0 {
		c.Tracking.Port = 8081
	}
	if c.Tracking.BaseURL == "" {
		c.Tracking.BaseURL = fmt.Sprintf("http://localhost:%d", c.Tracking.Port)
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 5
	}
	if c.Queue.RatePerSecond == 0 {
		c.Queue.RatePerSecond = 14
	}
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = 50
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = 500 * time.Millisecond
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 5
	}
	if c.Queue.BaseDelay == 0 {
		c.Queue.BaseDelay = 2 * time.Second
	}
	if c.Queue.BackoffMultiplier == 0 {
		c.Queue.BackoffMultiplier = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
}
