package types

import (
	"context"
	"errors"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
)

var (
	// ErrNotFound is returned by Get when no record exists for an id.
	ErrNotFound = errors.New("record not found")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("record store closed")
)

// Kind names a record store backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindPebble Kind = "pebble"
)

// ParseKind maps a configured backend name, including legacy aliases, to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "memory", "mem", "":
		return KindMemory, true
	case "pebble", "leveldb":
		return KindPebble, true
	}
	return "", false
}

// Record is a stored message. Payload is the inline body, or the echoed
// metadata for messages whose body lives in the blob store.
type Record struct {
	ID       msgid.ID
	Priority uint32
	Payload  []byte
	ByteSize uint32
	// HasBlob marks a record whose body lives in the blob store.
	HasBlob bool
}

// RecordMeta is the subset of a record needed to rebuild the priority index.
type RecordMeta struct {
	ID       msgid.ID
	Priority uint32
	ByteSize uint32
	HasBlob  bool
}

// RecordStore is durable id -> record storage.
type RecordStore interface {
	// Put stores rec, replacing any record with the same id.
	Put(ctx context.Context, rec Record) error
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, id msgid.ID) (Record, error)
	// Delete is a no-op for absent ids.
	Delete(ctx context.Context, id msgid.ID) error
	// FetchAll returns every record's metadata in id order.
	FetchAll(ctx context.Context) ([]RecordMeta, error)
	// Kind reports the backend.
	Kind() Kind
	Close() error
}
