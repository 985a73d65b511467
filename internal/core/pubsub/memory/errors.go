// Package memory provides an in-process pubsub broker.
package memory

import "errors"

// ErrBrokerClosed is returned when operating on a closed broker.
var ErrBrokerClosed = errors.New("broker is closed")
