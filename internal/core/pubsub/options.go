package pubsub

import "time"

// PublisherOptions configures publisher behavior.
type PublisherOptions struct {
	// SubjectPrefix is prepended to all subjects.
	SubjectPrefix string

	// OnPublish is called after each publish attempt (for metrics).
	OnPublish func(subject string, err error, latency time.Duration)
}

// DefaultChannelBufSize is the buffer size of subscription channels.
const DefaultChannelBufSize = 100
