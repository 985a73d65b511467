package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syntrixbase/msgstore/internal/gateway/config"
)

func TestCheckAllowedOrigin(t *testing.T) {
	cfg := config.RealtimeConfig{AllowedOrigins: []string{"https://app.example/"}}
	dev := config.RealtimeConfig{AllowDevOrigin: true}

	tests := []struct {
		name    string
		origin  string
		host    string
		cfg     config.RealtimeConfig
		allowed bool
	}{
		{"no origin", "", "store:8080", cfg, true},
		{"same host", "http://store:3000", "store:8080", cfg, true},
		{"listed", "https://app.example", "store:8080", cfg, true},
		{"unlisted", "https://evil.example", "store:8080", cfg, false},
		{"localhost without dev", "http://localhost:5173", "store:8080", cfg, false},
		{"localhost with dev", "http://localhost:5173", "store:8080", dev, true},
		{"unparseable", "http://%zz", "store:8080", dev, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkAllowedOrigin(tt.origin, tt.host, tt.cfg)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errOriginNotAllowed)
			}
		})
	}
}
