package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/syntrixbase/msgstore/internal/core/pubsub"
)

// natsPublisher implements pubsub.Publisher with fire-and-forget core NATS
// publishes.
type natsPublisher struct {
	nc   natsConnection
	opts pubsub.PublisherOptions
}

// Publish sends a message to the specified subject.
func (p *natsPublisher) Publish(_ context.Context, subject string, data []byte) error {
	start := time.Now()
	fullSubject := pubsub.JoinSubject(p.opts.SubjectPrefix, subject)

	err := p.nc.Publish(fullSubject, data)

	if p.opts.OnPublish != nil {
		p.opts.OnPublish(fullSubject, err, time.Since(start))
	}

	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", fullSubject, err)
	}
	return nil
}

// Close flushes buffered publishes. The connection is owned by the Provider.
func (p *natsPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.nc.FlushWithContext(ctx)
}
