package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/metrics"
)

// Event names, used as the publish subject.
const (
	EventInserted = "inserted"
	EventDeleted  = "deleted"
	EventPruned   = "pruned"
	EventExported = "exported"
)

// Event is the published payload.
type Event struct {
	Event    string    `json:"event"`
	UUID     *msgid.ID `json:"uuid,omitempty"`
	Priority *uint32   `json:"priority,omitempty"`
	ByteSize *uint32   `json:"byteSize,omitempty"`
	Count    int       `json:"count,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

func messageEvent(name string, id msgid.ID, prio, size uint32, reason string) Event {
	return Event{Event: name, UUID: &id, Priority: &prio, ByteSize: &size, Reason: reason}
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		e.logger.Warn("Failed to encode event", "event", ev.Event, "error", err)
		return
	}
	start := time.Now()
	err = e.publisher.Publish(context.WithoutCancel(ctx), ev.Event, data)
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		e.logger.Warn("Failed to publish event", "event", ev.Event, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}
