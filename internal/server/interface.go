package server

import (
	"context"
	"net/http"
)

// Service is the HTTP network layer.
type Service interface {
	// Start listens and serves until a fatal error occurs or ctx is canceled.
	Start(ctx context.Context) error

	// Stop gracefully shuts the server down, waiting for active requests to
	// drain or for ctx to expire.
	Stop(ctx context.Context) error

	// RegisterHTTPHandler registers a handler for a pattern. Call before Start.
	RegisterHTTPHandler(pattern string, handler http.Handler)

	// HTTPMux returns the underlying ServeMux. Call before Start.
	HTTPMux() *http.ServeMux

	// Addr returns the bound listen address once started, or the configured
	// address before.
	Addr() string
}
