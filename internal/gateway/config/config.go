package config

import (
	"fmt"
	"os"
	"strings"
)

type GatewayConfig struct {
	Realtime RealtimeConfig `yaml:"realtime"`
}

type RealtimeConfig struct {
	// AllowedOrigins lists cross-site origins allowed to open the websocket.
	// Same-host origins and clients without an Origin header are always allowed.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// AllowDevOrigin additionally allows any localhost origin.
	AllowDevOrigin bool `yaml:"allow_dev_origin"`
	// MaxMessageSize bounds a single command frame in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Realtime: RealtimeConfig{
			AllowDevOrigin: true,
			MaxMessageSize: 4 << 20,
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (g *GatewayConfig) ApplyDefaults() {
	defaults := DefaultGatewayConfig()
	if g.Realtime.MaxMessageSize == 0 {
		g.Realtime.MaxMessageSize = defaults.Realtime.MaxMessageSize
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (g *GatewayConfig) ApplyEnvOverrides() {
	if val := os.Getenv("MSGSTORE_REALTIME_ALLOWED_ORIGINS"); val != "" {
		var origins []string
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		g.Realtime.AllowedOrigins = origins
	}
}

// ResolvePaths resolves relative paths using the given directories.
// No paths to resolve in gateway config.
func (g *GatewayConfig) ResolvePaths(_, _ string) { _ = g }

// Validate returns an error if the configuration is invalid.
func (g *GatewayConfig) Validate() error {
	if g.Realtime.MaxMessageSize < 0 {
		return fmt.Errorf("gateway.realtime.max_message_size must be non-negative")
	}
	for _, o := range g.Realtime.AllowedOrigins {
		if o == "" {
			return fmt.Errorf("gateway.realtime.allowed_origins must not contain empty entries")
		}
	}
	return nil
}
