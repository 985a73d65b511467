// Package realtime serves the store API over a websocket and pushes
// lifecycle events to subscribed clients.
package realtime

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/syntrixbase/msgstore/internal/core/pubsub"
	"github.com/syntrixbase/msgstore/internal/gateway/config"
	"github.com/syntrixbase/msgstore/internal/gateway/rest"
)

type Server struct {
	hub      *Hub
	svc      rest.Service
	events   pubsub.Subscriber
	pattern  string
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a realtime server. events may be nil, in which case
// subscriptions are accepted but never receive anything.
func NewServer(svc rest.Service, events pubsub.Subscriber, subjectPrefix string, cfg config.RealtimeConfig) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = config.DefaultGatewayConfig().Realtime.MaxMessageSize
	}
	s := &Server{
		hub:     NewHub(),
		svc:     svc,
		events:  events,
		pattern: pubsub.JoinSubject(subjectPrefix, ">"),
		cfg:     cfg,
		logger:  slog.Default().With("component", "realtime"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return checkAllowedOrigin(r.Header.Get("Origin"), r.Host, s.cfg) == nil
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/ws", s.ServeWs)
}

// StartBackgroundTasks starts the hub and the event forwarder. Both run
// until ctx is cancelled.
func (s *Server) StartBackgroundTasks(ctx context.Context) error {
	go s.hub.Run(ctx)

	if s.events == nil {
		return nil
	}
	stream, err := s.events.Subscribe(ctx, s.pattern)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					s.logger.Info("Event stream closed")
					return
				}
				s.hub.Broadcast(ctx, msg)
			}
		}
	}()
	return nil
}

// ServeWs upgrades the request and starts the client pumps.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote an error response.
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	client := newClient(s.hub, s.svc, conn, s.cfg.MaxMessageSize, s.logger)
	if !s.hub.Register(client) {
		client.close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}
