package pebblestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id := msgid.ID{Lo: 77, Sequence: 1}

	require.NoError(t, s.Put(ctx, types.Record{ID: id, Priority: 4, Payload: []byte("hello"), ByteSize: 5}))

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.Record{ID: id, Priority: 4, Payload: []byte("hello"), ByteSize: 5}, rec)

	require.NoError(t, s.Delete(ctx, id))
	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_BlobFlagSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	blobRec := types.Record{ID: msgid.ID{Lo: 1}, Priority: 2, Payload: []byte("byteSizeOverride=9"), ByteSize: 9, HasBlob: true}
	inlineRec := types.Record{ID: msgid.ID{Lo: 2}, Priority: 2, Payload: []byte("text"), ByteSize: 4}

	s, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, blobRec))
	require.NoError(t, s.Put(ctx, inlineRec))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, blobRec.ID)
	require.NoError(t, err)
	assert.Equal(t, blobRec, got)
	got, err = s.Get(ctx, inlineRec.ID)
	require.NoError(t, err)
	assert.Equal(t, inlineRec, got)
}

func TestStore_FetchAllAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	s, err := Open(Config{Path: path, BlockCacheSize: 1 << 20})
	require.NoError(t, err)
	ids := []msgid.ID{{Hi: 1}, {Lo: 2}, {Lo: 2, Sequence: 1}}
	for i, id := range ids {
		require.NoError(t, s.Put(ctx, types.Record{ID: id, Priority: uint32(i), Payload: []byte{byte(i)}, ByteSize: uint32(i + 1)}))
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	metas, err := s.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.RecordMeta{
		{ID: msgid.ID{Lo: 2}, Priority: 1, ByteSize: 2},
		{ID: msgid.ID{Lo: 2, Sequence: 1}, Priority: 2, ByteSize: 3},
		{ID: msgid.ID{Hi: 1}, Priority: 0, ByteSize: 1},
	}, metas)
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Put(ctx, types.Record{}), types.ErrClosed)
	_, err := s.Get(ctx, msgid.ID{})
	assert.ErrorIs(t, err, types.ErrClosed)
	_, err = s.FetchAll(ctx)
	assert.ErrorIs(t, err, types.ErrClosed)
}

type fakeBatch struct {
	setErr    error
	deleteErr error
	commitErr error
	closed    bool
}

func (f *fakeBatch) Set(_, _ []byte, _ *pebble.WriteOptions) error { return f.setErr }
func (f *fakeBatch) Delete(_ []byte, _ *pebble.WriteOptions) error { return f.deleteErr }
func (f *fakeBatch) Commit(_ *pebble.WriteOptions) error           { return f.commitErr }
func (f *fakeBatch) Close() error {
	f.closed = true
	return nil
}

func TestStore_BatchErrors(t *testing.T) {
	ctx := context.Background()
	id := msgid.ID{Lo: 1}

	tests := []struct {
		name  string
		batch *fakeBatch
		op    func(*Store) error
	}{
		{
			name:  "put set",
			batch: &fakeBatch{setErr: errors.New("set failed")},
			op:    func(s *Store) error { return s.Put(ctx, types.Record{ID: id}) },
		},
		{
			name:  "put commit",
			batch: &fakeBatch{commitErr: errors.New("commit failed")},
			op:    func(s *Store) error { return s.Put(ctx, types.Record{ID: id}) },
		},
		{
			name:  "delete stage",
			batch: &fakeBatch{deleteErr: errors.New("delete failed")},
			op:    func(s *Store) error { return s.Delete(ctx, id) },
		},
		{
			name:  "delete commit",
			batch: &fakeBatch{commitErr: errors.New("commit failed")},
			op:    func(s *Store) error { return s.Delete(ctx, id) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			s.newBatch = func() pebbleBatch { return tt.batch }

			assert.Error(t, tt.op(s))
			assert.True(t, tt.batch.closed)
		})
	}
}
