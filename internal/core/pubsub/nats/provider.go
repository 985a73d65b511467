// Package nats publishes events over core NATS.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/msgstore/internal/core/pubsub"
)

// natsConnection abstracts the nats.Conn for testing purposes.
type natsConnection interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// natsConnectFunc is a function type for connecting to NATS (injectable for testing).
type natsConnectFunc func(url string, opts ...nats.Option) (natsConnection, error)

var defaultNatsConnect natsConnectFunc = func(url string, opts ...nats.Option) (natsConnection, error) {
	return nats.Connect(url, opts...)
}

// Provider manages the NATS connection lifecycle.
type Provider struct {
	url         string
	name        string
	nc          natsConnection
	natsConnect natsConnectFunc // injectable for testing
}

// NewProvider creates a provider for url. Call Connect before NewPublisher.
func NewProvider(url, name string) *Provider {
	return &Provider{
		url:         url,
		name:        name,
		natsConnect: defaultNatsConnect,
	}
}

// Connect establishes the NATS connection.
func (p *Provider) Connect(_ context.Context) error {
	nc, err := p.natsConnect(p.url,
		nats.Name(p.name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.nc = nc
	slog.Info("Connected to NATS", "url", p.url)
	return nil
}

// NewPublisher creates a Publisher on the shared connection.
func (p *Provider) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if p.nc == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return &natsPublisher{nc: p.nc, opts: opts}, nil
}

// Close closes the NATS connection.
func (p *Provider) Close() error {
	if p.nc != nil {
		slog.Info("Closing NATS connection...")
		p.nc.Close()
		p.nc = nil
	}
	return nil
}
