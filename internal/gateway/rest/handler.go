package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/priority"
	"github.com/syntrixbase/msgstore/internal/engine"
	"github.com/syntrixbase/msgstore/internal/server"
	"github.com/syntrixbase/msgstore/internal/wire"
)

// Service is the engine surface the HTTP and realtime gateways drive.
type Service interface {
	FileStorageEnabled() bool
	Halted() bool

	Insert(ctx context.Context, sub *wire.Submission) (msgid.ID, error)
	Retrieve(ctx context.Context, sel priority.Selector) (*wire.Stream, error)
	Delete(ctx context.Context, id msgid.ID) error

	Groups(prio *uint32, includeMessages bool) []priority.GroupView
	DeleteGroup(ctx context.Context, prio uint32) (int, error)
	GroupDefaults(prio *uint32) []priority.GroupDefault
	SetGroupDefault(ctx context.Context, prio, maxByteSize uint32) (int, error)
	DeleteGroupDefault(ctx context.Context, prio uint32) (bool, error)

	StoreSnapshot(includeMessages bool) priority.StoreView
	SetStoreMax(ctx context.Context, maxByteSize *uint32) (int, error)

	Stats() engine.Stats
	AddStats(u engine.StatsUpdate) engine.Stats
	ReplaceStats(u engine.StatsUpdate) engine.Stats
	ResetStats() engine.Stats

	Export(ctx context.Context, dir string) (engine.ExportResult, error)
}

var _ Service = (*engine.Engine)(nil)

// Default request limits
const (
	DefaultMaxBodySize    = 1 << 20 // JSON bodies only; message uploads are unbounded
	DefaultRequestTimeout = 30 * time.Second
)

// Handler serves the msgstore HTTP API.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if svc == nil {
		panic("engine service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger.With("component", "rest")}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Messages. Uploads and downloads stream, so no body limit or timeout.
	mux.HandleFunc("POST /api/msg", h.handlePostMsg)
	mux.HandleFunc("GET /api/msg", h.handleGetMsg)
	mux.HandleFunc("DELETE /api/msg", withTimeout(h.handleDeleteMsg, DefaultRequestTimeout))

	// Groups
	mux.HandleFunc("GET /api/group", h.handleGetGroup)
	mux.HandleFunc("DELETE /api/group", withTimeout(h.handleDeleteGroup, DefaultRequestTimeout))

	// Group defaults
	mux.HandleFunc("GET /api/group-defaults", h.handleGetGroupDefaults)
	mux.HandleFunc("POST /api/group-defaults", withTimeout(maxBodySize(h.handlePostGroupDefaults, DefaultMaxBodySize), DefaultRequestTimeout))
	mux.HandleFunc("DELETE /api/group-defaults", withTimeout(h.handleDeleteGroupDefaults, DefaultRequestTimeout))

	// Store
	mux.HandleFunc("GET /api/store", h.handleGetStore)
	mux.HandleFunc("PUT /api/store", withTimeout(maxBodySize(h.handlePutStore, DefaultMaxBodySize), DefaultRequestTimeout))

	// Stats
	mux.HandleFunc("GET /api/stats", h.handleGetStats)
	mux.HandleFunc("PUT /api/stats", maxBodySize(h.handlePutStats, DefaultMaxBodySize))
	mux.HandleFunc("DELETE /api/stats", h.handleDeleteStats)

	// Export runs as long as it needs to.
	mux.HandleFunc("GET /api/export", h.handleExport)
	mux.HandleFunc("POST /api/export", maxBodySize(h.handleExport, DefaultMaxBodySize))

	mux.HandleFunc("GET /health", h.handleHealth)
}

// writeJSON writes a JSON response with proper error handling
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

// writeError writes a structured JSON error response
func writeError(w http.ResponseWriter, status int, code string, message string) {
	server.WriteError(w, status, code, message)
}

// maxBodySize wraps a handler with request body size limiting
func maxBodySize(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}

// withTimeout wraps a handler with a context timeout
func withTimeout(next http.HandlerFunc, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}
