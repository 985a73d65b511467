package server

import (
	"log/slog"
	"net/http"
)

var (
	defaultService Service
)

// InitDefault initializes the global default server instance.
// This should be called once at application startup.
func InitDefault(cfg Config, logger *slog.Logger) {
	defaultService = New(cfg, logger)
}

// Default returns the global default server instance, or nil before InitDefault.
func Default() Service {
	return defaultService
}

// SetDefault replaces the global default server instance.
func SetDefault(s Service) {
	defaultService = s
}

// RegisterHTTP registers an HTTP handler with the default server.
func RegisterHTTP(pattern string, handler http.Handler) {
	if s := Default(); s != nil {
		s.RegisterHTTPHandler(pattern, handler)
	}
}

// HandleFunc registers an HTTP handler function with the default server.
func HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	RegisterHTTP(pattern, http.HandlerFunc(handler))
}
