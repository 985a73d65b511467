package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/syntrixbase/msgstore/internal/core/pubsub"
)

var (
	_ pubsub.Subscriber = (*Broker)(nil)
)

// Broker routes published messages to in-process subscribers. Delivery never
// blocks the publisher: a subscriber whose buffer is full misses the message.
type Broker struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        uint64
	bufSize       int
	closed        atomic.Bool
	logger        *slog.Logger
}

type subscription struct {
	pattern string
	msgCh   chan pubsub.Message
	dropped atomic.Uint64
}

// New creates a broker whose subscription channels hold bufSize messages.
func New(bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = pubsub.DefaultChannelBufSize
	}
	return &Broker{
		subscriptions: make(map[uint64]*subscription),
		bufSize:       bufSize,
		logger:        slog.Default().With("component", "event-broker"),
	}
}

func (b *Broker) publish(subject string, data []byte) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subscriptions {
		if !matchSubject(sub.pattern, subject) {
			continue
		}
		select {
		case sub.msgCh <- pubsub.Message{Subject: subject, Data: data}:
		default:
			if sub.dropped.Add(1) == 1 {
				b.logger.Warn("Subscriber buffer full, dropping events", "subscription", id, "pattern", sub.pattern)
			}
		}
	}
	return nil
}

// Subscribe returns a channel of messages matching pattern. NATS-style
// wildcards are supported.
func (b *Broker) Subscribe(ctx context.Context, pattern string) (<-chan pubsub.Message, error) {
	if b.closed.Load() {
		return nil, ErrBrokerClosed
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscription{pattern: pattern, msgCh: make(chan pubsub.Message, b.bufSize)}
	b.subscriptions[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()

	return sub.msgCh, nil
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscriptions[id]; ok {
		delete(b.subscriptions, id)
		close(sub.msgCh)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// NewPublisher creates a publisher that delivers into this broker.
func (b *Broker) NewPublisher(opts pubsub.PublisherOptions) pubsub.Publisher {
	return &memoryPublisher{broker: b, opts: opts}
}

// Close shuts down the broker and closes every subscription channel.
func (b *Broker) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscriptions {
		close(sub.msgCh)
		delete(b.subscriptions, id)
	}
	return nil
}
