package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eshway/mailing-engine/internal/dispatch"
)

// Config holds all configuration for the application
type Config struct {
	Provider string         `yaml:"provider"` // "ses" or "mailgun"
	Identity IdentityConfig `yaml:"identity"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	SES      SESConfig      `yaml:"ses"`
	Mailgun  MailgunConfig  `yaml:"mailgun"`
	Tracking TrackingConfig `yaml:"tracking"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// IdentityConfig holds the default sender identity, used when a campaign
// message does not carry its own.
type IdentityConfig struct {
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	ReplyTo   string `yaml:"reply_to"`
}

// DispatchConfig holds the engine tuning knobs. Zero values fall back to the
// engine defaults, so an empty section is a valid production configuration.
type DispatchConfig struct {
	BatchThreshold        int  `yaml:"batch_threshold"`
	BatchSize             int  `yaml:"batch_size"`
	RateLimitPerSecond    int  `yaml:"rate_limit_per_second"`
	MaxRetries            int  `yaml:"max_retries"`
	RetryDelayBaseMs      int  `yaml:"retry_delay_base_ms"`
	InterBatchDelayMs     int  `yaml:"inter_batch_delay_ms"`
	InterChunkDelayMs     int  `yaml:"inter_chunk_delay_ms"`
	IntraBatchConcurrency int  `yaml:"intra_batch_concurrency"`
	RetryOnlyFailedJobs   bool `yaml:"retry_only_failed_jobs"`
}

// Options converts the config section to engine options.
func (c DispatchConfig) Options() dispatch.Options {
	return dispatch.Options{
		BatchThreshold:        c.BatchThreshold,
		BatchSize:             c.BatchSize,
		RateLimitPerSecond:    c.RateLimitPerSecond,
		MaxRetries:            c.MaxRetries,
		RetryDelayBase:        time.Duration(c.RetryDelayBaseMs) * time.Millisecond,
		InterBatchDelay:       time.Duration(c.InterBatchDelayMs) * time.Millisecond,
		InterChunkDelay:       time.Duration(c.InterChunkDelayMs) * time.Millisecond,
		IntraBatchConcurrency: c.IntraBatchConcurrency,
		RetryOnlyFailedJobs:   c.RetryOnlyFailedJobs,
	}
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// MailgunConfig holds Mailgun API configuration
type MailgunConfig struct {
	APIKey         string `yaml:"api_key"`
	Domain         string `yaml:"domain"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MailgunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TrackingConfig holds the tracking service and link-generation settings.
// SigningKey signs every tracking URL; it must match between the dispatch
// and tracking processes.
type TrackingConfig struct {
	BaseURL    string `yaml:"base_url"`
	SigningKey string `yaml:"signing_key"`
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig holds the Postgres send-log connection.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the Redis connection shared by the rate limiter and the
// tracking event stream. Optional; both features are off when URL is empty.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LogConfig holds logging configuration. Email redaction is on unless
// explicitly disabled.
type LogConfig struct {
	Level            string `yaml:"level"`
	DisableRedaction bool   `yaml:"disable_redaction"`
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
	if cfg.Provider == "" {
		cfg.Provider = "ses"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Mailgun.BaseURL == "" {
		cfg.Mailgun.BaseURL = "https://api.mailgun.net/v3"
	}
	if cfg.Mailgun.TimeoutSeconds == 0 {
		cfg.Mailgun.TimeoutSeconds = 30
	}
	if cfg.Tracking.ListenAddr == "" {
		cfg.Tracking.ListenAddr = ":8081"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Provider = v
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
	if v := os.Getenv("MAILGUN_API_KEY"); v != "" {
		cfg.Mailgun.APIKey = v
	}
	if v := os.Getenv("MAILGUN_DOMAIN"); v != "" {
		cfg.Mailgun.Domain = v
	}
	if v := os.Getenv("MAILGUN_BASE_URL"); v != "" {
		cfg.Mailgun.BaseURL = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SIGNING_KEY"); v != "" {
		cfg.Tracking.SigningKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("FROM_NAME"); v != "" {
		cfg.Identity.FromName = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Identity.FromEmail = v
	}
	if v := os.Getenv("REPLY_TO"); v != "" {
		cfg.Identity.ReplyTo = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// Validate checks that the chosen provider has the credentials it needs.
func (c *Config) Validate() error {
	switch c.Provider {
	case "ses":
		if c.SES.AccessKey == "" || c.SES.SecretKey == "" {
			return fmt.Errorf("ses provider selected but AWS_SES_ACCESS_KEY/AWS_SES_SECRET_KEY are not set")
		}
	case "mailgun":
		if c.Mailgun.APIKey == "" || c.Mailgun.Domain == "" {
			return fmt.Errorf("mailgun provider selected but api key or domain is missing")
		}
	default:
		return fmt.Errorf("unknown provider %q (want ses or mailgun)", c.Provider)
	}
	if c.Identity.FromEmail == "" {
		return fmt.Errorf("identity.from_email is required")
	}
	return nil
}
