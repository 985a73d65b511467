// Package pubsub provides a small publish/subscribe abstraction used to
// announce store lifecycle events.
package pubsub

import (
	"context"
	"errors"
)

// Message is a delivered event.
type Message struct {
	Subject string
	Data    []byte
}

// Publisher publishes messages to a subject.
type Publisher interface {
	// Publish sends data to subject. Implementations prepend their configured
	// subject prefix.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases resources.
	Close() error
}

// Subscriber delivers messages whose subject matches a pattern.
type Subscriber interface {
	// Subscribe returns a channel of matching messages. The channel is closed
	// when ctx is cancelled or the subscriber is closed.
	Subscribe(ctx context.Context, pattern string) (<-chan Message, error)
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, subject string, data []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Close() error                                  { return nil }

// JoinSubject prefixes subject with prefix and a dot.
func JoinSubject(prefix, subject string) string {
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}
