// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Messages
	MessagesInserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstore_messages_inserted_total",
		Help: "The total number of messages inserted",
	}, []string{"kind"})

	MessagesDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstore_messages_deleted_total",
		Help: "The total number of messages deleted",
	}, []string{"reason"})

	MessagesPruned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstore_messages_pruned_total",
		Help: "The total number of messages pruned by a budget change",
	}, []string{"reason"})

	InsertLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "msgstore_insert_latency_seconds",
		Help: "The latency of message inserts",
	}, []string{"kind"})

	InsertRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstore_insert_rejected_total",
		Help: "The total number of rejected inserts",
	}, []string{"code"})

	// Store
	StoreBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "msgstore_store_bytes",
		Help: "The accounted byte size of live messages",
	})

	StoreMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "msgstore_store_messages",
		Help: "The number of live messages",
	})

	// Export
	Exports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstore_exports_total",
		Help: "The total number of export runs",
	}, []string{"result"})

	// Events
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstore_events_published_total",
		Help: "The total number of lifecycle events published",
	}, []string{"result"})

	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "msgstore_event_publish_latency_seconds",
		Help: "The latency of event publishing",
	})

	// Transport
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstore_http_requests_total",
		Help: "The total number of HTTP requests",
	}, []string{"method", "status"})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "msgstore_websocket_clients",
		Help: "The number of connected websocket clients",
	})
)

func init() {
	prometheus.MustRegister(MessagesInserted)
	prometheus.MustRegister(MessagesDeleted)
	prometheus.MustRegister(MessagesPruned)
	prometheus.MustRegister(InsertLatency)
	prometheus.MustRegister(InsertRejected)
	prometheus.MustRegister(StoreBytes)
	prometheus.MustRegister(StoreMessages)
	prometheus.MustRegister(Exports)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(PublishLatency)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(WebsocketClients)
}
