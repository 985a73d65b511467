// Package engine coordinates the priority index, the record store and the
// optional blob store. It owns the statistics counters and applies every
// insert, eviction, delete and export across the three stores.
//
// Each store is guarded by its own lock and is touched one at a time in the
// order priority index, record store, blob store, stats. The sequence is not
// atomic: readers may observe a message that the index has already forgotten
// but whose record still exists. Any record or blob failure after the index
// has committed leaves the stores diverged; the engine then reports a
// *FatalError, refuses further work and notifies the OnFatal hook.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/msgstore/internal/core/blob"
	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/priority"
	"github.com/syntrixbase/msgstore/internal/core/pubsub"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
	"github.com/syntrixbase/msgstore/internal/metrics"
	"github.com/syntrixbase/msgstore/internal/wire"
)

// BackupOpener opens a fresh record store of the given kind rooted at dir.
type BackupOpener func(kind types.Kind, dir string) (types.RecordStore, error)

// Options configures an Engine. Index and Records are required.
type Options struct {
	Index   *priority.Index
	Records types.RecordStore
	// Blobs is nil when file storage is disabled.
	Blobs *blob.Store

	Publisher pubsub.Publisher
	Persister DefaultsPersister

	// OpenBackup opens the backup database for database-backed exports.
	OpenBackup BackupOpener
	// CompressExport writes zstd-compressed flat backups.
	CompressExport bool

	Logger *slog.Logger
	// OnFatal is called once, asynchronously, with the first fatal error.
	OnFatal func(error)
}

// Engine is safe for concurrent use.
type Engine struct {
	index     *priority.Index
	records   types.RecordStore
	blobs     *blob.Store
	publisher pubsub.Publisher
	persister DefaultsPersister

	openBackup     BackupOpener
	compressExport bool

	stats    statsCounter
	exportMu sync.Mutex

	halted    atomic.Bool
	fatalOnce sync.Once
	onFatal   func(error)

	logger *slog.Logger
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Index == nil {
		return nil, errors.New("engine: priority index is required")
	}
	if opts.Records == nil {
		return nil, errors.New("engine: record store is required")
	}
	e := &Engine{
		index:          opts.Index,
		records:        opts.Records,
		blobs:          opts.Blobs,
		publisher:      opts.Publisher,
		persister:      opts.Persister,
		openBackup:     opts.OpenBackup,
		compressExport: opts.CompressExport,
		onFatal:        opts.OnFatal,
		logger:         opts.Logger,
	}
	if e.publisher == nil {
		e.publisher = pubsub.Nop{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")
	e.observeStore()
	return e, nil
}

// FileStorageEnabled reports whether a blob store is configured.
func (e *Engine) FileStorageEnabled() bool {
	return e.blobs != nil
}

// Halted reports whether a fatal error has stopped the engine.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

func (e *Engine) checkHealthy() error {
	if e.halted.Load() {
		return ErrHalted
	}
	return nil
}

func (e *Engine) fatal(op string, id msgid.ID, err error) error {
	fe := &FatalError{Op: op, ID: id, Err: err}
	e.halted.Store(true)
	e.fatalOnce.Do(func() {
		e.logger.Error("Priority index and durable stores diverged; refusing further operations",
			"op", op, "id", id.String(), "error", err)
		if e.onFatal != nil {
			go e.onFatal(fe)
		}
	})
	return fe
}

func (e *Engine) observeStore() {
	metrics.StoreBytes.Set(float64(e.index.ByteSize()))
	metrics.StoreMessages.Set(float64(e.index.Len()))
}

// purge removes id from the record store and, when present, the blob store.
// The caller has already removed id from the priority index.
func (e *Engine) purge(ctx context.Context, id msgid.ID) error {
	if err := e.records.Delete(ctx, id); err != nil {
		return err
	}
	if e.blobs != nil {
		if _, err := e.blobs.Remove(id); err != nil {
			return err
		}
	}
	return nil
}

// trackedReader remembers the first error returned by the source so a failed
// upload can be told apart from a failed blob write.
type trackedReader struct {
	r   io.Reader
	err error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// Insert admits sub, evicts whatever the priority index chooses, then writes
// the blob (if any) and the record.
func (e *Engine) Insert(ctx context.Context, sub *wire.Submission) (msgid.ID, error) {
	if err := e.checkHealthy(); err != nil {
		return msgid.ID{}, err
	}
	start := time.Now()
	kind := "inline"
	if sub.SaveToFile {
		kind = "blob"
		if e.blobs == nil {
			return msgid.ID{}, &wire.DecodeError{Code: wire.CodeFileStorageNotConfigured}
		}
	}

	adm, err := e.index.Admit(sub.Priority, sub.ByteSize)
	if err != nil {
		metrics.InsertRejected.WithLabelValues(priority.Code(err)).Inc()
		return msgid.ID{}, err
	}

	for _, victim := range adm.Evicted {
		if err := e.purge(ctx, victim); err != nil {
			return msgid.ID{}, e.fatal("evict", victim, err)
		}
	}
	evicted := uint32(len(adm.Evicted))
	e.stats.add(Stats{Inserted: 1, Deleted: evicted})
	if evicted > 0 {
		metrics.MessagesDeleted.WithLabelValues("evicted").Add(float64(evicted))
		for _, victim := range adm.Evicted {
			e.publish(ctx, Event{Event: EventDeleted, UUID: &victim, Reason: "evicted"})
		}
	}

	if sub.SaveToFile {
		src := &trackedReader{r: sub.Blob}
		if _, err := e.blobs.Write(adm.ID, src); err != nil {
			if src.err != nil {
				// The upload broke off. Nothing durable references the id yet.
				_ = e.index.Forget(adm.ID)
				e.stats.undoInsert()
				e.observeStore()
				e.logger.Warn("Blob upload aborted", "id", adm.ID.String(), "error", src.err)
				return msgid.ID{}, fmt.Errorf("%w: %v", ErrUploadAborted, src.err)
			}
			return msgid.ID{}, e.fatal("write blob", adm.ID, err)
		}
	}

	rec := types.Record{ID: adm.ID, Priority: sub.Priority, Payload: sub.Body, ByteSize: sub.ByteSize, HasBlob: sub.SaveToFile}
	if err := e.records.Put(ctx, rec); err != nil {
		return msgid.ID{}, e.fatal("put record", adm.ID, err)
	}

	metrics.MessagesInserted.WithLabelValues(kind).Inc()
	metrics.InsertLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	e.observeStore()
	e.publish(ctx, messageEvent(EventInserted, adm.ID, sub.Priority, sub.ByteSize, ""))
	return adm.ID, nil
}

// Retrieve returns a stream for the message chosen by sel, or nil when no
// message matches. The caller closes the stream.
func (e *Engine) Retrieve(ctx context.Context, sel priority.Selector) (*wire.Stream, error) {
	if err := e.checkHealthy(); err != nil {
		return nil, err
	}
	id, ok := e.index.Next(sel)
	if !ok {
		return nil, nil
	}

	rec, err := e.records.Get(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		// Deleted concurrently.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}

	indexed := e.blobs != nil && e.blobs.Contains(id)
	if rec.HasBlob && !indexed {
		// The blob is being exported or deleted. Never serve the echoed
		// metadata as if it were the body.
		return nil, nil
	}
	if indexed {
		f, size, err := e.blobs.Open(id)
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return wire.NewBlob(id, rec.Payload, f, size), nil
	}
	return wire.NewInline(id, rec.Payload), nil
}

// Delete removes id from every store. Unknown ids are a no-op.
func (e *Engine) Delete(ctx context.Context, id msgid.ID) error {
	if err := e.checkHealthy(); err != nil {
		return err
	}
	prio, size, ok := e.index.Lookup(id)
	if !ok {
		return nil
	}
	if err := e.index.Forget(id); err != nil {
		if errors.Is(err, priority.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := e.purge(ctx, id); err != nil {
		return e.fatal("delete", id, err)
	}
	e.stats.add(Stats{Deleted: 1})
	metrics.MessagesDeleted.WithLabelValues("client").Inc()
	e.observeStore()
	e.publish(ctx, messageEvent(EventDeleted, id, prio, size, "client"))
	return nil
}

// DeleteGroup removes every message of a priority group and returns how many
// were removed.
func (e *Engine) DeleteGroup(ctx context.Context, prio uint32) (int, error) {
	if err := e.checkHealthy(); err != nil {
		return 0, err
	}
	ids := e.index.ForgetGroup(prio)
	for _, id := range ids {
		if err := e.purge(ctx, id); err != nil {
			return 0, e.fatal("delete group", id, err)
		}
	}
	if len(ids) > 0 {
		e.stats.add(Stats{Deleted: uint32(len(ids))})
		metrics.MessagesDeleted.WithLabelValues("group").Add(float64(len(ids)))
		e.observeStore()
		e.publish(ctx, Event{Event: EventDeleted, Priority: &prio, Count: len(ids), Reason: "group"})
	}
	return len(ids), nil
}

// prune removes messages evicted by a budget change.
func (e *Engine) prune(ctx context.Context, op, reason string, ids []msgid.ID) error {
	for _, id := range ids {
		if err := e.purge(ctx, id); err != nil {
			return e.fatal(op, id, err)
		}
	}
	if len(ids) > 0 {
		e.stats.add(Stats{Pruned: uint32(len(ids))})
		metrics.MessagesPruned.WithLabelValues(reason).Add(float64(len(ids)))
		e.observeStore()
		e.publish(ctx, Event{Event: EventPruned, Count: len(ids), Reason: reason})
	}
	return nil
}

// SetGroupDefault sets the budget of a priority group, prunes the oldest
// members that no longer fit and persists the change. It returns the number
// of pruned messages.
func (e *Engine) SetGroupDefault(ctx context.Context, prio, maxByteSize uint32) (int, error) {
	if err := e.checkHealthy(); err != nil {
		return 0, err
	}
	evicted, err := e.index.SetGroupDefault(prio, maxByteSize)
	if err != nil {
		return 0, err
	}
	if err := e.prune(ctx, "set group default", "group_default", evicted); err != nil {
		return 0, err
	}
	return len(evicted), e.persistDefaults()
}

// DeleteGroupDefault removes a group budget. It reports whether one existed.
func (e *Engine) DeleteGroupDefault(ctx context.Context, prio uint32) (bool, error) {
	if err := e.checkHealthy(); err != nil {
		return false, err
	}
	if !e.index.DeleteGroupDefault(prio) {
		return false, nil
	}
	return true, e.persistDefaults()
}

// SetStoreMax sets or clears the store budget, prunes what no longer fits and
// persists the change. It returns the number of pruned messages.
func (e *Engine) SetStoreMax(ctx context.Context, maxByteSize *uint32) (int, error) {
	if err := e.checkHealthy(); err != nil {
		return 0, err
	}
	evicted := e.index.SetStoreMax(maxByteSize)
	if err := e.prune(ctx, "set store max", "store_max", evicted); err != nil {
		return 0, err
	}
	return len(evicted), e.persistDefaults()
}

// ApplyDefaults installs configured budgets at startup without persisting
// them back. Messages that no longer fit are pruned.
func (e *Engine) ApplyDefaults(ctx context.Context, defaults StoreDefaults) (int, error) {
	pruned := 0
	for _, g := range defaults.Groups {
		evicted, err := e.index.SetGroupDefault(g.Priority, g.MaxByteSize)
		if err != nil {
			return pruned, fmt.Errorf("group %d: %w", g.Priority, err)
		}
		if err := e.prune(ctx, "apply group default", "group_default", evicted); err != nil {
			return pruned, err
		}
		pruned += len(evicted)
	}
	if defaults.MaxByteSize != nil {
		evicted := e.index.SetStoreMax(defaults.MaxByteSize)
		if err := e.prune(ctx, "apply store max", "store_max", evicted); err != nil {
			return pruned, err
		}
		pruned += len(evicted)
	}
	return pruned, nil
}

// Groups returns group views, optionally narrowed to one priority.
func (e *Engine) Groups(prio *uint32, includeMessages bool) []priority.GroupView {
	return e.index.Groups(prio, includeMessages)
}

// GroupDefaults returns configured group budgets, optionally narrowed to one
// priority.
func (e *Engine) GroupDefaults(prio *uint32) []priority.GroupDefault {
	return e.index.GroupDefaults(prio)
}

// StoreSnapshot returns the whole store view.
func (e *Engine) StoreSnapshot(includeMessages bool) priority.StoreView {
	return e.index.Snapshot(includeMessages)
}
