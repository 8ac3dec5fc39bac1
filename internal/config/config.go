// Package config loads engine configuration from a YAML file with .env and
// environment variable overrides. Provider credentials always come from the
// environment in deployed environments; the YAML file carries operational
// defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the notification engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	SES        SESConfig        `yaml:"ses"`
	SMSGateway SMSGatewayConfig `yaml:"sms_gateway"`
	Notify     NotifyConfig     `yaml:"notify"`
	Worker     WorkerConfig     `yaml:"worker"`
	EventLog   EventLogConfig   `yaml:"event_log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection used for channel rate limiting.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// SESConfig holds AWS SES credentials for the email channel.
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Configured reports whether credentials are present.
func (c SESConfig) Configured() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// SMSGatewayConfig holds the SMS gateway API credentials.
type SMSGatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	AccountID      string `yaml:"account_id"`
	AuthToken      string `yaml:"auth_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c SMSGatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Configured reports whether credentials are present.
func (c SMSGatewayConfig) Configured() bool {
	return c.AccountID != "" && c.AuthToken != ""
}

// NotifyConfig holds delivery behavior settings.
type NotifyConfig struct {
	DefaultFromEmail  string `yaml:"default_from_email"`
	DefaultFromName   string `yaml:"default_from_name"`
	DefaultFromNumber string `yaml:"default_from_number"`

	// Debug mode redirects every SMS to DebugPhone with an envelope
	// identifying the original recipient.
	DebugMode  bool   `yaml:"debug_mode"`
	DebugPhone string `yaml:"debug_phone"`
	DebugEmail string `yaml:"debug_email"`

	MaxRetries         int `yaml:"max_retries"`
	BackoffBaseSeconds int `yaml:"backoff_base_seconds"`

	SMSPartDelaySeconds        int `yaml:"sms_part_delay_seconds"`
	SMSStatusCheckDelaySeconds int `yaml:"sms_status_check_delay_seconds"`
}

// BackoffBase returns the base duration for exponential retry backoff.
func (c NotifyConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// SMSPartDelay returns the fixed delay between multipart SMS parts.
func (c NotifyConfig) SMSPartDelay() time.Duration {
	return time.Duration(c.SMSPartDelaySeconds) * time.Second
}

// SMSStatusCheckDelay returns the delay before the async delivery-status
// re-check.
func (c NotifyConfig) SMSStatusCheckDelay() time.Duration {
	return time.Duration(c.SMSStatusCheckDelaySeconds) * time.Second
}

// WorkerConfig holds dispatcher worker pool settings.
type WorkerConfig struct {
	NumWorkers     int `yaml:"num_workers"`
	BatchSize      int `yaml:"batch_size"`
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// PollInterval returns the queue poll interval as a duration.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// EventLogConfig selects the event log backend.
type EventLogConfig struct {
	Backend       string `yaml:"backend"` // "postgres" or "dynamodb"
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
}

// Load reads and parses the configuration file and applies defaults.
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
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SMSGateway.TimeoutSeconds == 0 {
		cfg.SMSGateway.TimeoutSeconds = 30
	}
	if cfg.Notify.MaxRetries == 0 {
		cfg.Notify.MaxRetries = 3
	}
	if cfg.Notify.BackoffBaseSeconds == 0 {
		cfg.Notify.BackoffBaseSeconds = 60
	}
	if cfg.Notify.SMSPartDelaySeconds == 0 {
		cfg.Notify.SMSPartDelaySeconds = 1
	}
	if cfg.Notify.SMSStatusCheckDelaySeconds == 0 {
		cfg.Notify.SMSStatusCheckDelaySeconds = 10
	}
	if cfg.Worker.NumWorkers == 0 {
		cfg.Worker.NumWorkers = 4
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 25
	}
	if cfg.Worker.PollIntervalMS == 0 {
		cfg.Worker.PollIntervalMS = 500
	}
	if cfg.EventLog.Backend == "" {
		cfg.EventLog.Backend = "postgres"
	}
	if cfg.EventLog.AWSRegion == "" {
		cfg.EventLog.AWSRegion = cfg.SES.Region
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

	// Override with environment variables if present
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("SMS_GATEWAY_BASE_URL"); v != "" {
		cfg.SMSGateway.BaseURL = v
	}
	if v := os.Getenv("SMS_GATEWAY_ACCOUNT_ID"); v != "" {
		cfg.SMSGateway.AccountID = v
	}
	if v := os.Getenv("SMS_GATEWAY_AUTH_TOKEN"); v != "" {
		cfg.SMSGateway.AuthToken = v
	}
	if v := os.Getenv("NOTIFY_FROM_EMAIL"); v != "" {
		cfg.Notify.DefaultFromEmail = v
	}
	if v := os.Getenv("NOTIFY_FROM_NUMBER"); v != "" {
		cfg.Notify.DefaultFromNumber = v
	}
	if v := os.Getenv("NOTIFY_DEBUG_MODE"); v != "" {
		cfg.Notify.DebugMode, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("NOTIFY_DEBUG_PHONE"); v != "" {
		cfg.Notify.DebugPhone = v
	}
	if v := os.Getenv("NOTIFY_DEBUG_EMAIL"); v != "" {
		cfg.Notify.DebugEmail = v
	}
	if v := os.Getenv("EVENT_LOG_BACKEND"); v != "" {
		cfg.EventLog.Backend = v
	}
	if v := os.Getenv("EVENT_LOG_DYNAMODB_TABLE"); v != "" {
		cfg.EventLog.DynamoDBTable = v
	}

	return cfg, nil
}
