package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"oddswatch"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"oddswatch"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"oddswatch"`

	// Scheduler cadence
	PollIntervalMinutes    int `env:"POLL_INTERVAL_MINUTES" envDefault:"5"`
	DiscoveryIntervalHours int `env:"DISCOVERY_INTERVAL_HOURS" envDefault:"2"`
	PreStartWindowMinutes  int `env:"PRE_START_WINDOW_MINUTES" envDefault:"30"`
	WorkerPoolSize         int `env:"WORKER_POOL_SIZE" envDefault:"4"`

	// Display timezone. Internal state stays in UTC.
	Timezone string `env:"TIMEZONE" envDefault:"America/Mexico_City"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE" envDefault:"sofascore_odds.log"`

	// Upstream client
	RequestDelaySeconds float64 `env:"REQUEST_DELAY_SECONDS" envDefault:"1"`
	MaxRetries          int     `env:"MAX_RETRIES" envDefault:"3"`

	// Notifications
	NotificationsEnabled bool   `env:"NOTIFICATIONS_ENABLED" envDefault:"false"`
	TelegramBotToken     string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID       int64  `env:"TELEGRAM_CHAT_ID"`

	// Rotating proxy
	ProxyEnabled  bool   `env:"PROXY_ENABLED" envDefault:"false"`
	ProxyUsername string `env:"PROXY_USERNAME"`
	ProxyPassword string `env:"PROXY_PASSWORD"`
	ProxyEndpoint string `env:"PROXY_ENDPOINT"`

	// Timestamp correction
	EnableTimestampCorrection bool `env:"ENABLE_TIMESTAMP_CORRECTION" envDefault:"true"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency before anything boots.
func (c *Config) Validate() error {
	if c.PollIntervalMinutes <= 0 || c.PollIntervalMinutes > 60 {
		return fmt.Errorf("POLL_INTERVAL_MINUTES must be in 1..60, got %d", c.PollIntervalMinutes)
	}
	if c.DiscoveryIntervalHours <= 0 || c.DiscoveryIntervalHours > 24 {
		return fmt.Errorf("DISCOVERY_INTERVAL_HOURS must be in 1..24, got %d", c.DiscoveryIntervalHours)
	}
	if c.PreStartWindowMinutes < 5 {
		return fmt.Errorf("PRE_START_WINDOW_MINUTES must be at least 5, got %d", c.PreStartWindowMinutes)
	}
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive, got %d", c.WorkerPoolSize)
	}
	if c.RequestDelaySeconds < 0 {
		return fmt.Errorf("REQUEST_DELAY_SECONDS must not be negative, got %v", c.RequestDelaySeconds)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.NotificationsEnabled {
		if c.TelegramBotToken == "" {
			return fmt.Errorf("NOTIFICATIONS_ENABLED requires TELEGRAM_BOT_TOKEN")
		}
		if c.TelegramChatID == 0 {
			return fmt.Errorf("NOTIFICATIONS_ENABLED requires TELEGRAM_CHAT_ID")
		}
	}
	if c.ProxyEnabled && c.ProxyEndpoint == "" {
		return fmt.Errorf("PROXY_ENABLED requires PROXY_ENDPOINT")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// Location returns the configured display timezone. Validate has already
// rejected unknown zone names, so failures here fall back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PollInterval is the pre-start sweep cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// DiscoveryInterval is the catalog discovery cadence.
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.DiscoveryIntervalHours) * time.Hour
}

// PreStartWindow is the upper bound of the pre-start window.
func (c *Config) PreStartWindow() time.Duration {
	return time.Duration(c.PreStartWindowMinutes) * time.Minute
}

// RequestDelay is the minimum spacing between upstream calls.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds * float64(time.Second))
}
