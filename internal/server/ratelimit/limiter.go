// Package ratelimit throttles HTTP clients by key, usually the client IP.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow consumes one token for key and reports whether one was available.
	Allow(key string) bool

	// Reset forgets all state for key.
	Reset(key string)
}

// Stoppable is a Limiter holding background resources.
type Stoppable interface {
	Limiter
	Stop()
}

// Config sizes one token bucket per key.
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// DefaultConfig is the general API bucket.
func DefaultConfig() Config {
	return Config{Enabled: true, Requests: 1000, Window: time.Minute}
}

// ExportConfig is the stricter bucket for export requests, which move the
// whole store to disk.
func ExportConfig() Config {
	return Config{Enabled: true, Requests: 5, Window: time.Minute}
}

// GetClientIP returns the originating client address, preferring
// X-Forwarded-For, then X-Real-IP, then RemoteAddr.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
