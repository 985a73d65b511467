package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	ProviderNone   = "none"
	ProviderMemory = "memory"
	ProviderNATS   = "nats"
)

// Config configures lifecycle event publishing. The memory provider delivers
// events to in-process subscribers only; the nats provider additionally
// publishes them to a NATS server.
type Config struct {
	Provider      string `yaml:"provider"`
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	BufferSize    int    `yaml:"buffer_size"`
}

func DefaultConfig() Config {
	return Config{
		Provider:      ProviderNone,
		NATSURL:       "nats://localhost:4222",
		SubjectPrefix: "msgstore",
		BufferSize:    100,
	}
}

// Enabled reports whether events are published at all.
func (c *Config) Enabled() bool {
	return c.Provider != ProviderNone
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Provider == "" {
		c.Provider = defaults.Provider
	}
	if c.NATSURL == "" {
		c.NATSURL = defaults.NATSURL
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaults.SubjectPrefix
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaults.BufferSize
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("MSGSTORE_EVENTS_PROVIDER"); val != "" {
		c.Provider = val
	}
	if val := os.Getenv("MSGSTORE_NATS_URL"); val != "" {
		c.NATSURL = val
	}
	if val := os.Getenv("MSGSTORE_EVENTS_SUBJECT_PREFIX"); val != "" {
		c.SubjectPrefix = val
	}
	if val := os.Getenv("MSGSTORE_EVENTS_BUFFER_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.BufferSize = n
		}
	}
}

// ResolvePaths is a no-op; events have no paths.
func (c *Config) ResolvePaths(_, _ string) { _ = c }

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("events.nats_url is required for the nats provider")
		}
	default:
		return fmt.Errorf("events.provider: unknown provider %q", c.Provider)
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("events.buffer_size must be non-negative")
	}
	return nil
}
