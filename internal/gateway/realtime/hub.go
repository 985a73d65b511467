package realtime

import (
	"context"
	"log/slog"
	"strings"

	"github.com/syntrixbase/msgstore/internal/core/pubsub"
	"github.com/syntrixbase/msgstore/internal/metrics"
)

// Hub maintains the set of active clients and pushes events to the ones
// that subscribed.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Events to fan out.
	broadcast chan pubsub.Message

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// done is closed when Run returns.
	done chan struct{}

	logger *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan pubsub.Message, pubsub.DefaultChannelBufSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     slog.Default().With("component", "realtime-hub"),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client connection. Run must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			metrics.WebsocketClients.Set(0)
			return
		case client := <-h.register:
			h.clients[client] = true
			metrics.WebsocketClients.Set(float64(len(h.clients)))
		case client := <-h.unregister:
			delete(h.clients, client)
			metrics.WebsocketClients.Set(float64(len(h.clients)))
		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *Hub) fanout(msg pubsub.Message) {
	name := eventName(msg.Subject)
	frame, err := encodeEvent(msg.Data)
	if err != nil {
		h.logger.Warn("Dropping malformed event", "subject", msg.Subject, "error", err)
		return
	}
	for client := range h.clients {
		if !client.wants(name) {
			continue
		}
		select {
		case client.send <- frame:
		default:
			// Slow client; it misses the event.
		}
	}
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues an event for delivery.
func (h *Hub) Broadcast(ctx context.Context, msg pubsub.Message) {
	select {
	case h.broadcast <- msg:
	case <-ctx.Done():
	case <-h.done:
	}
}

// eventName is the last token of a subject.
func eventName(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}
