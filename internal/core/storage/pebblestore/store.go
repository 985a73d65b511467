// Package pebblestore provides a record store on the embedded pebble LSM.
package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
)

// Key layout:
//
//	m/<20-byte id> -> bson {priority, byte_size, has_blob}
//	p/<20-byte id> -> payload
var (
	metaPrefix    = []byte("m/")
	payloadPrefix = []byte("p/")
)

// Config configures the Store.
type Config struct {
	// Path is the database directory.
	Path string

	// BlockCacheSize is the size of the block cache in bytes.
	BlockCacheSize int64

	Logger *slog.Logger
}

type recordMeta struct {
	Priority uint32 `bson:"priority"`
	ByteSize uint32 `bson:"byte_size"`
	HasBlob  bool   `bson:"has_blob,omitempty"`
}

type pebbleBatch interface {
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
	Commit(opts *pebble.WriteOptions) error
	Close() error
}

// Store implements types.RecordStore using PebbleDB.
type Store struct {
	db       *pebble.DB
	path     string
	logger   *slog.Logger
	newBatch func() pebbleBatch

	mu     sync.RWMutex
	closed bool
}

var _ types.RecordStore = (*Store)(nil)

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "record-store")

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbOpts := &pebble.Options{
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	if cfg.BlockCacheSize > 0 {
		cache := pebble.NewCache(cfg.BlockCacheSize)
		defer cache.Unref()
		dbOpts.Cache = cache
	}

	db, err := pebble.Open(cfg.Path, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	logger.Info("Record store opened", "path", cfg.Path)

	return &Store{
		db:     db,
		path:   cfg.Path,
		logger: logger,
		newBatch: func() pebbleBatch {
			return db.NewBatch()
		},
	}, nil
}

func metaKey(id msgid.ID) []byte {
	return append(append([]byte{}, metaPrefix...), id.Key()...)
}

func payloadKey(id msgid.ID) []byte {
	return append(append([]byte{}, payloadPrefix...), id.Key()...)
}

// Path returns the database directory.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Kind() types.Kind { return types.KindPebble }

// Put writes metadata and payload in one synced batch.
func (s *Store) Put(_ context.Context, rec types.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.ErrClosed
	}

	meta, err := bson.Marshal(recordMeta{Priority: rec.Priority, ByteSize: rec.ByteSize, HasBlob: rec.HasBlob})
	if err != nil {
		return fmt.Errorf("failed to encode record metadata: %w", err)
	}

	batch := s.newBatch()
	defer batch.Close()

	if err := batch.Set(metaKey(rec.ID), meta, nil); err != nil {
		return fmt.Errorf("failed to stage record metadata: %w", err)
	}
	if err := batch.Set(payloadKey(rec.ID), rec.Payload, nil); err != nil {
		return fmt.Errorf("failed to stage record payload: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, id msgid.ID) (types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Record{}, types.ErrClosed
	}

	var meta recordMeta
	if err := s.read(metaKey(id), func(v []byte) error { return bson.Unmarshal(v, &meta) }); err != nil {
		return types.Record{}, err
	}

	var payload []byte
	if err := s.read(payloadKey(id), func(v []byte) error {
		payload = bytes.Clone(v)
		return nil
	}); err != nil {
		return types.Record{}, err
	}

	return types.Record{ID: id, Priority: meta.Priority, Payload: payload, ByteSize: meta.ByteSize, HasBlob: meta.HasBlob}, nil
}

func (s *Store) read(key []byte, fn func([]byte) error) error {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return types.ErrNotFound
		}
		return fmt.Errorf("failed to read key: %w", err)
	}
	defer closer.Close()
	return fn(value)
}

// Delete removes metadata and payload in one synced batch.
func (s *Store) Delete(_ context.Context, id msgid.ID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.ErrClosed
	}

	batch := s.newBatch()
	defer batch.Close()

	if err := batch.Delete(metaKey(id), nil); err != nil {
		return fmt.Errorf("failed to stage delete: %w", err)
	}
	if err := batch.Delete(payloadKey(id), nil); err != nil {
		return fmt.Errorf("failed to stage delete: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	return nil
}

// FetchAll iterates the metadata prefix in key order, which is id order.
func (s *Store) FetchAll(ctx context.Context) ([]types.RecordMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: metaPrefix,
		UpperBound: []byte("m0"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var metas []types.RecordMeta
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := msgid.FromKey(iter.Key()[len(metaPrefix):])
		if err != nil {
			s.logger.Warn("Skipping malformed record key", "key", iter.Key())
			continue
		}
		var meta recordMeta
		if err := bson.Unmarshal(iter.Value(), &meta); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
		}
		metas = append(metas, types.RecordMeta{ID: id, Priority: meta.Priority, ByteSize: meta.ByteSize, HasBlob: meta.HasBlob})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}
	return metas, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close pebble database: %w", err)
	}
	return nil
}
