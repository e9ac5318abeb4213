package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration
type Config struct {
	Server    ServerConfig
	Extension ExtensionConfig
	Billing   BillingConfig
	Analytics AnalyticsConfig
	RateLimit RateLimitConfig
	Logging   LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `envconfig:"REVIEW_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"REVIEW_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"REVIEW_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"REVIEW_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"REVIEW_SHUTDOWN_TIMEOUT" default:"10s"`
}

// ExtensionConfig describes the extension the service backs
type ExtensionConfig struct {
	// BaseURL is the chrome-extension://<id>/ origin; the proxy path hangs off it.
	BaseURL   string        `envconfig:"REVIEW_EXTENSION_URL" default:"chrome-extension://review/"`
	ProxyPath string        `envconfig:"REVIEW_PROXY_PATH" default:"proxy"`
	UATTL     time.Duration `envconfig:"REVIEW_UA_TTL" default:"1h"`
}

// ProxyPrefix returns the URL prefix of the reserved proxy path
func (e ExtensionConfig) ProxyPrefix() string {
	return e.BaseURL + e.ProxyPath
}

// BillingConfig holds in-app payment provider configuration
type BillingConfig struct {
	URL         string        `envconfig:"REVIEW_BILLING_URL" default:"http://localhost:8090"`
	Environment string        `envconfig:"REVIEW_BILLING_ENV" default:"prod"`
	SKU         string        `envconfig:"REVIEW_DONATION_SKU" default:"re_view"`
	Timeout     time.Duration `envconfig:"REVIEW_BILLING_TIMEOUT" default:"60s"`
}

// AnalyticsConfig holds analytics relay configuration
type AnalyticsConfig struct {
	TrackingID      string `envconfig:"REVIEW_ANALYTICS_ID" default:"UA-4523560-10"`
	URL             string `envconfig:"REVIEW_ANALYTICS_URL" default:"https://www.google-analytics.com/collect"`
	MaxInFlight     int64  `envconfig:"REVIEW_ANALYTICS_INFLIGHT" default:"8"`
	EventsPerMinute int    `envconfig:"REVIEW_EVENTS_PER_MINUTE" default:"60"`
}

// RateLimitConfig holds HTTP API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"REVIEW_API_RPS" default:"20"`
	Burst             int  `envconfig:"REVIEW_API_BURST" default:"40"`
	Enabled           bool `envconfig:"REVIEW_API_RATE_LIMIT" default:"true"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load reads an optional .env file and then the process environment.
// It reports whether a .env file was found.
func Load(files ...string) (*Config, bool, error) {
	foundEnv := godotenv.Load(files...) == nil

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, foundEnv, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, foundEnv, err
	}
	return &cfg, foundEnv, nil
}

// Validate checks values envconfig cannot constrain
func (c *Config) Validate() error {
	if c.Extension.BaseURL == "" {
		return fmt.Errorf("REVIEW_EXTENSION_URL is required")
	}
	if c.Extension.UATTL <= 0 {
		return fmt.Errorf("REVIEW_UA_TTL must be positive, got %s", c.Extension.UATTL)
	}
	if c.Billing.SKU == "" {
		return fmt.Errorf("REVIEW_DONATION_SKU is required")
	}
	if c.Analytics.MaxInFlight < 1 {
		return fmt.Errorf("REVIEW_ANALYTICS_INFLIGHT must be at least 1")
	}
	return nil
}
