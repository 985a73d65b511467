package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/msgstore/internal/core/blob"
	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/priority"
	"github.com/syntrixbase/msgstore/internal/core/storage/memory"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
	"github.com/syntrixbase/msgstore/internal/wire"
)

// faultyStore wraps the memory store with injectable failures.
type faultyStore struct {
	*memory.Store
	kind      types.Kind
	putErr    error
	deleteErr error
	// failAfter makes Put fail once this many puts have succeeded.
	failAfter int
	puts      int
	// keepOpen turns Close into a no-op so a closed backup can still be read.
	keepOpen bool
	closes   int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New(), kind: types.KindMemory, failAfter: -1}
}

func (s *faultyStore) Put(ctx context.Context, rec types.Record) error {
	if s.putErr != nil {
		return s.putErr
	}
	if s.failAfter >= 0 && s.puts >= s.failAfter {
		return errors.New("disk full")
	}
	s.puts++
	return s.Store.Put(ctx, rec)
}

func (s *faultyStore) Delete(ctx context.Context, id msgid.ID) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, id)
}

func (s *faultyStore) Kind() types.Kind { return s.kind }

func (s *faultyStore) Close() error {
	s.closes++
	if s.keepOpen {
		return nil
	}
	return s.Store.Close()
}

// recordingPublisher collects published subjects.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type testEngine struct {
	*Engine
	records *faultyStore
	blobs   *blob.Store
	events  *recordingPublisher
}

func newTestEngine(t *testing.T, withBlobs bool) *testEngine {
	t.Helper()
	te := &testEngine{records: newFaultyStore(), events: &recordingPublisher{}}
	opts := Options{
		Index:     priority.New(nil),
		Records:   te.records,
		Publisher: te.events,
	}
	if withBlobs {
		bs, err := blob.New(t.TempDir())
		require.NoError(t, err)
		te.blobs = bs
		opts.Blobs = bs
	}
	e, err := New(opts)
	require.NoError(t, err)
	te.Engine = e
	return te
}

func decode(t *testing.T, raw string, blobs bool) *wire.Submission {
	t.Helper()
	sub, err := wire.Decode(strings.NewReader(raw), blobs)
	require.NoError(t, err)
	return sub
}

func insert(t *testing.T, e *testEngine, raw string) msgid.ID {
	t.Helper()
	id, err := e.Insert(context.Background(), decode(t, raw, e.blobs != nil))
	require.NoError(t, err)
	return id
}

func readStream(t *testing.T, s *wire.Stream) string {
	t.Helper()
	require.NotNil(t, s)
	defer s.Close()
	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func u32(v uint32) *uint32 { return &v }

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Records: memory.New()})
	assert.Error(t, err)
	_, err = New(Options{Index: priority.New(nil)})
	assert.Error(t, err)
}

func TestInsertRetrieve_Inline(t *testing.T) {
	e := newTestEngine(t, false)
	id := insert(t, e, "priority=5?hello")

	s, err := e.Retrieve(context.Background(), priority.Selector{ID: &id})
	require.NoError(t, err)
	assert.Equal(t, "uuid="+id.String()+"?hello", readStream(t, s))
	assert.Equal(t, Stats{Inserted: 1}, e.Stats())
	assert.False(t, e.FileStorageEnabled())
}

func TestInsertRetrieve_BlobServesFullFile(t *testing.T) {
	e := newTestEngine(t, true)
	blobData := bytes.Repeat([]byte{0xAB}, 2048)
	raw := "priority=5&saveToFile=true&byteSizeOverride=1024?" + string(blobData)
	id := insert(t, e, raw)

	assert.True(t, e.blobs.Contains(id))
	assert.Equal(t, uint64(1024), e.StoreSnapshot(false).ByteSize)

	s, err := e.Retrieve(context.Background(), priority.Selector{ID: &id})
	require.NoError(t, err)
	assert.True(t, s.HasBlob())
	out := readStream(t, s)
	header := "uuid=" + id.String() + "&byteSizeOverride=1024?"
	require.True(t, strings.HasPrefix(out, header))
	assert.Equal(t, blobData, []byte(out[len(header):]))
}

func TestInsert_EvictionCountsDeleted(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()
	_, err := e.SetStoreMax(ctx, u32(1000))
	require.NoError(t, err)

	low := insert(t, e, "priority=1&saveToFile=true&byteSizeOverride=600?"+strings.Repeat("x", 10))
	require.True(t, e.blobs.Contains(low))
	high := insert(t, e, "priority=9?"+strings.Repeat("y", 600))

	assert.Equal(t, Stats{Inserted: 2, Deleted: 1}, e.Stats())
	_, err = e.records.Get(ctx, low)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.False(t, e.blobs.Contains(low))
	_, statErr := os.Stat(e.blobs.Path(low))
	assert.True(t, os.IsNotExist(statErr))

	next, ok := e.index.Next(priority.Selector{})
	require.True(t, ok)
	assert.Equal(t, high, next)
	assert.Equal(t, 1, e.records.Len())
}

func TestInsert_ConflictLeavesStoresUntouched(t *testing.T) {
	e := newTestEngine(t, false)
	ctx := context.Background()
	_, err := e.SetStoreMax(ctx, u32(10))
	require.NoError(t, err)
	insert(t, e, "priority=5?0123456789")

	_, err = e.Insert(ctx, decode(t, "priority=1?a", false))
	assert.ErrorIs(t, err, priority.ErrLacksPriority)
	assert.Equal(t, "LACKS_PRIORITY", priority.Code(err))

	_, err = e.Insert(ctx, decode(t, "priority=9?01234567890", false))
	assert.ErrorIs(t, err, priority.ErrExceedsStoreMax)

	assert.Equal(t, Stats{Inserted: 1}, e.Stats())
	assert.Equal(t, 1, e.records.Len())
}

func TestInsert_RecordFailureHalts(t *testing.T) {
	fatal := make(chan error, 1)
	records := newFaultyStore()
	records.putErr = errors.New("io error")
	e, err := New(Options{
		Index:   priority.New(nil),
		Records: records,
		OnFatal: func(err error) { fatal <- err },
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Insert(ctx, decode(t, "priority=1?a", false))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "put record", fe.Op)
	assert.True(t, e.Halted())

	select {
	case got := <-fatal:
		assert.ErrorAs(t, got, &fe)
	case <-time.After(time.Second):
		t.Fatal("OnFatal was not called")
	}

	_, err = e.Insert(ctx, decode(t, "priority=1?b", false))
	assert.ErrorIs(t, err, ErrHalted)
	_, err = e.Retrieve(ctx, priority.Selector{})
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, e.Delete(ctx, msgid.ID{Lo: 1}), ErrHalted)
	_, err = e.Export(ctx, t.TempDir())
	assert.ErrorIs(t, err, ErrHalted)
}

type brokenReader struct{ n int }

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := min(len(p), r.n)
	r.n -= n
	return n, nil
}

func TestInsert_AbortedUploadRollsBack(t *testing.T) {
	e := newTestEngine(t, true)
	sub := &wire.Submission{
		Priority:   3,
		ByteSize:   100,
		Body:       []byte("byteSizeOverride=100"),
		SaveToFile: true,
		Blob:       &brokenReader{n: 10},
	}
	_, err := e.Insert(context.Background(), sub)
	assert.ErrorIs(t, err, ErrUploadAborted)
	assert.False(t, IsFatal(err))
	assert.False(t, e.Halted())
	assert.Equal(t, 0, e.index.Len())
	assert.Equal(t, 0, e.blobs.Len())
	assert.Equal(t, Stats{}, e.Stats())

	entries, err := os.ReadDir(e.blobs.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInsert_BlobWithoutFileStorage(t *testing.T) {
	e := newTestEngine(t, false)
	sub := &wire.Submission{Priority: 1, ByteSize: 1, SaveToFile: true, Blob: strings.NewReader("x")}
	_, err := e.Insert(context.Background(), sub)
	var de *wire.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, wire.CodeFileStorageNotConfigured, de.Code)
	assert.Equal(t, 0, e.index.Len())
}

func TestRetrieve(t *testing.T) {
	e := newTestEngine(t, false)
	ctx := context.Background()

	s, err := e.Retrieve(ctx, priority.Selector{})
	require.NoError(t, err)
	assert.Nil(t, s)

	first := insert(t, e, "priority=2?first")
	second := insert(t, e, "priority=2?second")
	insert(t, e, "priority=1?low")

	tests := []struct {
		name string
		sel  priority.Selector
		want string
	}{
		{"global next", priority.Selector{}, "uuid=" + first.String() + "?first"},
		{"by priority reverse", priority.Selector{Priority: u32(2), Reverse: true}, "uuid=" + second.String() + "?second"},
		{"by id", priority.Selector{ID: &second}, "uuid=" + second.String() + "?second"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := e.Retrieve(ctx, tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, readStream(t, s))
		})
	}

	unknown := msgid.ID{Lo: 42}
	s, err = e.Retrieve(ctx, priority.Selector{ID: &unknown})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = e.Retrieve(ctx, priority.Selector{Priority: u32(7)})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestRetrieve_BlobInFlightIsNotServed(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()
	id := insert(t, e, "priority=5&saveToFile=true&byteSizeOverride=4?ZZZZ")
	inline := insert(t, e, "priority=1?plain")

	rec, err := e.records.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.HasBlob)

	// export has mirrored the blob but not yet retired the record
	dest := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dest, BackupBlobDir), 0755))
	_, moved, err := e.moveBlob(id, dest)
	require.NoError(t, err)
	require.True(t, moved)

	s, err := e.Retrieve(ctx, priority.Selector{})
	require.NoError(t, err)
	assert.Nil(t, s)
	s, err = e.Retrieve(ctx, priority.Selector{ID: &id})
	require.NoError(t, err)
	assert.Nil(t, s)

	// a delete that has dropped the blob index but not the record
	other := insert(t, e, "priority=6&saveToFile=true&byteSizeOverride=2?YY")
	e.blobs.Unindex(other)
	s, err = e.Retrieve(ctx, priority.Selector{ID: &other})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = e.Retrieve(ctx, priority.Selector{ID: &inline})
	require.NoError(t, err)
	assert.Equal(t, "uuid="+inline.String()+"?plain", readStream(t, s))
}

func TestDelete(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()
	id := insert(t, e, "priority=1&saveToFile=true&byteSizeOverride=3?abc")

	require.NoError(t, e.Delete(ctx, id))
	assert.Equal(t, Stats{Inserted: 1, Deleted: 1}, e.Stats())
	assert.Equal(t, 0, e.index.Len())
	assert.Equal(t, 0, e.records.Len())
	assert.False(t, e.blobs.Contains(id))

	// unknown ids are a no-op
	require.NoError(t, e.Delete(ctx, id))
	assert.Equal(t, Stats{Inserted: 1, Deleted: 1}, e.Stats())
}

func TestDelete_RecordFailureHalts(t *testing.T) {
	e := newTestEngine(t, false)
	ctx := context.Background()
	id := insert(t, e, "priority=1?abc")
	e.records.deleteErr = errors.New("io error")

	err := e.Delete(ctx, id)
	assert.True(t, IsFatal(err))
	assert.True(t, e.Halted())
}

func TestDeleteGroup(t *testing.T) {
	e := newTestEngine(t, false)
	ctx := context.Background()
	insert(t, e, "priority=4?a")
	insert(t, e, "priority=4?b")
	keep := insert(t, e, "priority=5?c")

	n, err := e.DeleteGroup(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, Stats{Inserted: 3, Deleted: 2}, e.Stats())
	assert.Equal(t, 1, e.records.Len())
	_, err = e.records.Get(ctx, keep)
	assert.NoError(t, err)

	n, err = e.DeleteGroup(ctx, 4)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSetGroupDefault_PrunesAndPersists(t *testing.T) {
	var persisted []StoreDefaults
	e := newTestEngine(t, false)
	e.persister = DefaultsPersisterFunc(func(d StoreDefaults) error {
		persisted = append(persisted, d)
		return nil
	})
	ctx := context.Background()
	oldest := insert(t, e, "priority=2?aaaa")
	insert(t, e, "priority=2?bbbb")

	n, err := e.SetGroupDefault(ctx, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, Stats{Inserted: 2, Pruned: 1}, e.Stats())
	_, err = e.records.Get(ctx, oldest)
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.Len(t, persisted, 1)
	assert.Equal(t, []priority.GroupDefault{{Priority: 2, MaxByteSize: 5}}, persisted[0].Groups)
	assert.Nil(t, persisted[0].MaxByteSize)

	existed, err := e.DeleteGroupDefault(ctx, 2)
	require.NoError(t, err)
	assert.True(t, existed)
	require.Len(t, persisted, 2)
	assert.Empty(t, persisted[1].Groups)

	existed, err = e.DeleteGroupDefault(ctx, 2)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Len(t, persisted, 2)
}

func TestSetGroupDefault_AboveStoreMax(t *testing.T) {
	e := newTestEngine(t, false)
	ctx := context.Background()
	_, err := e.SetStoreMax(ctx, u32(10))
	require.NoError(t, err)

	_, err = e.SetGroupDefault(ctx, 1, 11)
	assert.ErrorIs(t, err, priority.ErrExceedsStoreMax)
	assert.Empty(t, e.GroupDefaults(nil))
}

func TestSetStoreMax_Prunes(t *testing.T) {
	e := newTestEngine(t, false)
	ctx := context.Background()
	insert(t, e, "priority=1?aaaa")
	insert(t, e, "priority=9?bbbb")

	n, err := e.SetStoreMax(ctx, u32(4))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint32(1), e.Stats().Pruned)
	assert.Equal(t, u32(4), e.StoreSnapshot(false).MaxByteSize)

	n, err = e.SetStoreMax(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, e.StoreSnapshot(false).MaxByteSize)
}

func TestSetStoreMax_PersistError(t *testing.T) {
	e := newTestEngine(t, false)
	e.persister = DefaultsPersisterFunc(func(StoreDefaults) error { return assert.AnError })
	_, err := e.SetStoreMax(context.Background(), u32(4))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, e.Halted())
}

func TestApplyDefaults(t *testing.T) {
	e := newTestEngine(t, false)
	ctx := context.Background()
	insert(t, e, "priority=1?aaaa")
	insert(t, e, "priority=1?bbbb")
	insert(t, e, "priority=2?cccc")

	pruned, err := e.ApplyDefaults(ctx, StoreDefaults{
		MaxByteSize: u32(6),
		Groups:      []priority.GroupDefault{{Priority: 1, MaxByteSize: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)
	assert.Equal(t, uint32(2), e.Stats().Pruned)
	assert.Equal(t, 1, e.records.Len())
}

func TestGroupsView(t *testing.T) {
	e := newTestEngine(t, false)
	insert(t, e, "priority=1?aa")
	insert(t, e, "priority=3?bbb")

	groups := e.Groups(nil, false)
	require.Len(t, groups, 2)
	one := e.Groups(u32(3), true)
	require.Len(t, one, 1)
	assert.Equal(t, uint32(3), one[0].Priority)
	assert.Len(t, one[0].Messages, 1)
}

func TestStatsOperations(t *testing.T) {
	e := newTestEngine(t, false)

	prev := e.AddStats(StatsUpdate{Inserted: u32(3), Pruned: u32(1)})
	assert.Equal(t, Stats{}, prev)
	assert.Equal(t, Stats{Inserted: 3, Pruned: 1}, e.Stats())

	prev = e.ReplaceStats(StatsUpdate{Deleted: u32(7)})
	assert.Equal(t, Stats{Inserted: 3, Pruned: 1}, prev)
	assert.Equal(t, Stats{Inserted: 3, Deleted: 7, Pruned: 1}, e.Stats())

	prev = e.ResetStats()
	assert.Equal(t, Stats{Inserted: 3, Deleted: 7, Pruned: 1}, prev)
	assert.Equal(t, Stats{}, e.Stats())
}

func TestEventsPublished(t *testing.T) {
	e := newTestEngine(t, false)
	ctx := context.Background()
	id := insert(t, e, "priority=5?hello")
	require.NoError(t, e.Delete(ctx, id))

	e.events.mu.Lock()
	defer e.events.mu.Unlock()
	assert.Equal(t, []string{EventInserted, EventDeleted}, e.events.subjects)
	assert.JSONEq(t,
		`{"event":"inserted","uuid":"`+id.String()+`","priority":5,"byteSize":5}`,
		string(e.events.payloads[0]))
}
