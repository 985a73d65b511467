// Package services wires the store together: it rebuilds state from the
// configured backends at startup, serves the gateway and tears everything
// down again on shutdown or after a fatal store error.
package services

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/syntrixbase/msgstore/internal/config"
	"github.com/syntrixbase/msgstore/internal/core/blob"
	"github.com/syntrixbase/msgstore/internal/core/pubsub"
	"github.com/syntrixbase/msgstore/internal/core/pubsub/memory"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
	"github.com/syntrixbase/msgstore/internal/engine"
	"github.com/syntrixbase/msgstore/internal/gateway/realtime"
	"github.com/syntrixbase/msgstore/internal/server"
)

type Options struct {
	// ConfigDir receives budget changes made at runtime.
	ConfigDir string
	// NoConfig disables writing budget changes back to ConfigDir.
	NoConfig bool

	// Exit is called with a non-zero code after a fatal store error has
	// been handled. Defaults to os.Exit.
	Exit func(code int)
}

type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	records   types.RecordStore
	blobs     *blob.Store
	broker    *memory.Broker
	nats      natsProvider
	publisher pubsub.Publisher
	engine    *engine.Engine
	rtServer  *realtime.Server
	server    server.Service

	// serveCancel stops the realtime background tasks and the server loop.
	serveCancel context.CancelFunc
	wg          sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

func NewManager(cfg *config.Config, opts Options) *Manager {
	if opts.ConfigDir == "" {
		opts.ConfigDir = config.DefaultConfigDir
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		logger: slog.Default().With("component", "services"),
	}
}

// Engine returns the store engine, or nil before Init.
func (m *Manager) Engine() *engine.Engine {
	return m.engine
}

// Addr returns the bound HTTP address once started.
func (m *Manager) Addr() string {
	if m.server == nil {
		return ""
	}
	return m.server.Addr()
}
