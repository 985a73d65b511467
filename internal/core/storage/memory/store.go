// Package memory provides a map-backed record store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
)

// Store keeps records in memory. Contents are lost on restart.
type Store struct {
	mu      sync.RWMutex
	records map[msgid.ID]types.Record
	closed  bool
}

var _ types.RecordStore = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[msgid.ID]types.Record)}
}

func (s *Store) Put(_ context.Context, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrClosed
	}
	payload := make([]byte, len(rec.Payload))
	copy(payload, rec.Payload)
	rec.Payload = payload
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) Get(_ context.Context, id msgid.ID) (types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Record{}, types.ErrClosed
	}
	rec, ok := s.records[id]
	if !ok {
		return types.Record{}, types.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Delete(_ context.Context, id msgid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrClosed
	}
	delete(s.records, id)
	return nil
}

func (s *Store) FetchAll(_ context.Context) ([]types.RecordMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.ErrClosed
	}
	metas := make([]types.RecordMeta, 0, len(s.records))
	for _, rec := range s.records {
		metas = append(metas, types.RecordMeta{ID: rec.ID, Priority: rec.Priority, ByteSize: rec.ByteSize, HasBlob: rec.HasBlob})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ID.Less(metas[j].ID) })
	return metas, nil
}

func (s *Store) Kind() types.Kind { return types.KindMemory }

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
