package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultGatewayConfig(t *testing.T) {
	cfg := DefaultGatewayConfig()

	assert.Empty(t, cfg.Realtime.AllowedOrigins)
	assert.True(t, cfg.Realtime.AllowDevOrigin)
	assert.Equal(t, int64(4<<20), cfg.Realtime.MaxMessageSize)
}

func TestGatewayConfig_ApplyDefaults(t *testing.T) {
	cfg := &GatewayConfig{}
	cfg.ApplyDefaults()
	assert.Equal(t, int64(4<<20), cfg.Realtime.MaxMessageSize)

	cfg = &GatewayConfig{Realtime: RealtimeConfig{MaxMessageSize: 10}}
	cfg.ApplyDefaults()
	assert.Equal(t, int64(10), cfg.Realtime.MaxMessageSize)
}

func TestGatewayConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("MSGSTORE_REALTIME_ALLOWED_ORIGINS", "https://a.example, https://b.example,,")

	cfg := DefaultGatewayConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Realtime.AllowedOrigins)
}

func TestGatewayConfig_ResolvePaths(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.ResolvePaths("config", "data")
	assert.Equal(t, DefaultGatewayConfig(), cfg)
}

func TestGatewayConfig_Validate(t *testing.T) {
	cfg := DefaultGatewayConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Realtime.MaxMessageSize = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultGatewayConfig()
	cfg.Realtime.AllowedOrigins = []string{""}
	assert.Error(t, cfg.Validate())
}
