package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/msgstore/internal/core/pubsub"
)

// memoryPublisher implements pubsub.Publisher using an in-memory broker.
type memoryPublisher struct {
	broker *Broker
	opts   pubsub.PublisherOptions
	closed atomic.Bool
}

// Publish sends a message to the specified subject.
func (p *memoryPublisher) Publish(_ context.Context, subject string, data []byte) error {
	if p.closed.Load() {
		return ErrBrokerClosed
	}

	start := time.Now()
	fullSubject := pubsub.JoinSubject(p.opts.SubjectPrefix, subject)

	err := p.broker.publish(fullSubject, data)

	if p.opts.OnPublish != nil {
		p.opts.OnPublish(fullSubject, err, time.Since(start))
	}

	return err
}

// Close releases resources. The broker stays open.
func (p *memoryPublisher) Close() error {
	p.closed.Store(true)
	return nil
}
