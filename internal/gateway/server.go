// Package gateway registers the public API surface: the REST handlers and
// the realtime websocket.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/syntrixbase/msgstore/internal/gateway/realtime"
	"github.com/syntrixbase/msgstore/internal/gateway/rest"
)

// Server is a route registrar for the API layer.
type Server struct {
	rest     *rest.Handler
	realtime *realtime.Server
}

// ServerOption is a function that configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the REST handler.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// NewServer creates a new API Server (route registrar). rt may be nil to
// serve REST only.
func NewServer(svc rest.Service, rt *realtime.Server, opts ...ServerOption) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Server{
		rest:     rest.NewHandler(svc, cfg.logger),
		realtime: rt,
	}
}

// RegisterRoutes registers all API routes to the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.rest.RegisterRoutes(mux)

	if s.realtime != nil {
		s.realtime.RegisterRoutes(mux)
	}
}
