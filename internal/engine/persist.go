package engine

import (
	"github.com/syntrixbase/msgstore/internal/core/priority"
)

// StoreDefaults is the budget configuration held by the priority index.
type StoreDefaults struct {
	MaxByteSize *uint32
	Groups      []priority.GroupDefault
}

// DefaultsPersister writes budget changes back to durable configuration.
type DefaultsPersister interface {
	PersistDefaults(defaults StoreDefaults) error
}

// DefaultsPersisterFunc adapts a function to DefaultsPersister.
type DefaultsPersisterFunc func(StoreDefaults) error

func (f DefaultsPersisterFunc) PersistDefaults(d StoreDefaults) error { return f(d) }

func (e *Engine) persistDefaults() error {
	if e.persister == nil {
		return nil
	}
	defaults := StoreDefaults{
		MaxByteSize: e.index.MaxByteSize(),
		Groups:      e.index.GroupDefaults(nil),
	}
	if err := e.persister.PersistDefaults(defaults); err != nil {
		e.logger.Error("Failed to persist store defaults", "error", err)
		return err
	}
	return nil
}
