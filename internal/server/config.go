package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/syntrixbase/msgstore/internal/server/ratelimit"
)

// Config holds the configuration for the HTTP server.
type Config struct {
	Host string `yaml:"host"`

	HTTPPort         int           `yaml:"port"`
	HTTPReadTimeout  time.Duration `yaml:"read_timeout"`
	HTTPWriteTimeout time.Duration `yaml:"write_timeout"`
	HTTPIdleTimeout  time.Duration `yaml:"idle_timeout"`

	// CORS
	EnableCORS       bool     `yaml:"enable_cors"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	CORSMaxAge       int      `yaml:"cors_max_age"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RateLimitConfig limits requests per client IP. Export requests get their
// own, stricter bucket.
type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Requests       int           `yaml:"requests"`
	Window         time.Duration `yaml:"window"`
	ExportRequests int           `yaml:"export_requests"`
	ExportWindow   time.Duration `yaml:"export_window"`
}

// DefaultConfig returns safe defaults for development.
func DefaultConfig() Config {
	general, export := ratelimit.DefaultConfig(), ratelimit.ExportConfig()
	return Config{
		Host:             "127.0.0.1",
		HTTPPort:         8080,
		HTTPReadTimeout:  30 * time.Second,
		HTTPWriteTimeout: 5 * time.Minute,
		HTTPIdleTimeout:  60 * time.Second,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		CORSMaxAge:       86400,
		RateLimit: RateLimitConfig{
			Requests:       general.Requests,
			Window:         general.Window,
			ExportRequests: export.Requests,
			ExportWindow:   export.Window,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = defaults.HTTPPort
	}
	if c.HTTPReadTimeout == 0 {
		c.HTTPReadTimeout = defaults.HTTPReadTimeout
	}
	if c.HTTPWriteTimeout == 0 {
		c.HTTPWriteTimeout = defaults.HTTPWriteTimeout
	}
	if c.HTTPIdleTimeout == 0 {
		c.HTTPIdleTimeout = defaults.HTTPIdleTimeout
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = defaults.AllowedMethods
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = defaults.AllowedHeaders
	}
	if c.CORSMaxAge == 0 {
		c.CORSMaxAge = defaults.CORSMaxAge
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = defaults.RateLimit.Requests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = defaults.RateLimit.Window
	}
	if c.RateLimit.ExportRequests == 0 {
		c.RateLimit.ExportRequests = defaults.RateLimit.ExportRequests
	}
	if c.RateLimit.ExportWindow == 0 {
		c.RateLimit.ExportWindow = defaults.RateLimit.ExportWindow
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("MSGSTORE_HOST"); val != "" {
		c.Host = val
	}
	if val := os.Getenv("MSGSTORE_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.HTTPPort = port
		}
	}
}

// ResolvePaths is a no-op; the server config holds no paths.
func (c *Config) ResolvePaths(_, _ string) { _ = c }

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.HTTPPort)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("server.rate_limit requires positive requests and window")
		}
		if c.RateLimit.ExportRequests <= 0 || c.RateLimit.ExportWindow <= 0 {
			return fmt.Errorf("server.rate_limit requires positive export_requests and export_window")
		}
	}
	return nil
}
