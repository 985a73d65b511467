package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/syntrixbase/msgstore/internal/config"
	"github.com/syntrixbase/msgstore/internal/core/blob"
	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/priority"
	"github.com/syntrixbase/msgstore/internal/core/pubsub"
	eventsconfig "github.com/syntrixbase/msgstore/internal/core/pubsub/config"
	"github.com/syntrixbase/msgstore/internal/core/pubsub/memory"
	"github.com/syntrixbase/msgstore/internal/core/pubsub/nats"
	"github.com/syntrixbase/msgstore/internal/core/storage"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
	"github.com/syntrixbase/msgstore/internal/engine"
	"github.com/syntrixbase/msgstore/internal/gateway"
	"github.com/syntrixbase/msgstore/internal/gateway/realtime"
	"github.com/syntrixbase/msgstore/internal/server"
)

// Test seams.
var (
	openRecordStore = storage.Open
	newNATSProvider = func(url string) natsProvider {
		return nats.NewProvider(url, "msgstore")
	}
)

type natsProvider interface {
	Connect(ctx context.Context) error
	NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error)
	Close() error
}

// Init opens the stores, rebuilds the priority index from the record store,
// reconciles the blob directory and registers the gateway routes. On error
// everything opened so far is released.
func (m *Manager) Init(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			m.closeResources()
		}
	}()

	index, blobBacked, err := m.initRecords(ctx)
	if err != nil {
		return err
	}
	if err := m.initBlobs(ctx, index, blobBacked); err != nil {
		return err
	}
	if err := m.initEvents(ctx); err != nil {
		return err
	}
	if err := m.initEngine(ctx, index); err != nil {
		return err
	}
	m.initServer()
	return nil
}

// initRecords rebuilds the priority index and returns the ids of records
// whose body lives in the blob store.
func (m *Manager) initRecords(ctx context.Context) (*priority.Index, []msgid.ID, error) {
	records, err := openRecordStore(ctx, m.cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open record store: %w", err)
	}
	m.records = records

	metas, err := records.FetchAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load records: %w", err)
	}
	gen := msgid.NewGenerator()
	index := priority.New(gen)
	var blobBacked []msgid.ID
	for _, meta := range metas {
		index.Restore(meta.ID, meta.Priority, meta.ByteSize)
		gen.Observe(meta.ID)
		if meta.HasBlob {
			blobBacked = append(blobBacked, meta.ID)
		}
	}
	m.logger.Info("Restored priority index",
		"backend", records.Kind(),
		"messages", index.Len(),
		"bytes", index.ByteSize(),
	)
	return index, blobBacked, nil
}

// initBlobs indexes blob files that belong to a live record and removes the
// rest. A partially written upload from a previous run is one such orphan.
// Blob records whose file is gone were exported by an interrupted run and are
// removed too.
func (m *Manager) initBlobs(ctx context.Context, index *priority.Index, blobBacked []msgid.ID) error {
	if !m.cfg.Blob.Enabled {
		// Kept on disk for when file storage is enabled again.
		for _, id := range blobBacked {
			_ = index.Forget(id)
		}
		if len(blobBacked) > 0 {
			m.logger.Warn("File storage disabled, not serving blob messages", "messages", len(blobBacked))
		}
		return nil
	}
	blobs, err := blob.New(m.cfg.Blob.Dir)
	if err != nil {
		return err
	}
	ids, err := blobs.Scan()
	if err != nil {
		return err
	}

	live := make([]msgid.ID, 0, len(ids))
	var orphans []msgid.ID
	for _, id := range ids {
		_, err := m.records.Get(ctx, id)
		switch {
		case err == nil:
			live = append(live, id)
		case errors.Is(err, types.ErrNotFound):
			orphans = append(orphans, id)
		default:
			return fmt.Errorf("failed to check blob %s: %w", id, err)
		}
	}
	blobs.Discover(live)
	for _, id := range orphans {
		if _, err := blobs.Remove(id); err != nil {
			return fmt.Errorf("failed to remove orphan blob %s: %w", id, err)
		}
	}
	m.blobs = blobs

	var missing int
	for _, id := range blobBacked {
		if blobs.Contains(id) {
			continue
		}
		_ = index.Forget(id)
		if err := m.records.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to remove record %s without blob: %w", id, err)
		}
		missing++
	}
	m.logger.Info("Reconciled blob directory",
		"dir", blobs.Dir(),
		"files", len(live),
		"orphans_removed", len(orphans),
		"missing_removed", missing,
	)
	return nil
}

// initEvents builds the engine's publisher. Any enabled provider feeds an
// in-process broker for realtime subscribers; nats additionally publishes to
// the server.
func (m *Manager) initEvents(ctx context.Context) error {
	evCfg := m.cfg.Events
	if !evCfg.Enabled() {
		return nil
	}
	opts := pubsub.PublisherOptions{SubjectPrefix: evCfg.SubjectPrefix}

	m.broker = memory.New(evCfg.BufferSize)
	fanout := pubsub.Fanout{m.broker.NewPublisher(opts)}

	if evCfg.Provider == eventsconfig.ProviderNATS {
		provider := newNATSProvider(evCfg.NATSURL)
		if err := provider.Connect(ctx); err != nil {
			return err
		}
		m.nats = provider
		pub, err := provider.NewPublisher(opts)
		if err != nil {
			return err
		}
		fanout = append(fanout, pub)
	}
	m.publisher = fanout
	return nil
}

func (m *Manager) initEngine(ctx context.Context, index *priority.Index) error {
	opts := engine.Options{
		Index:          index,
		Records:        m.records,
		Blobs:          m.blobs,
		Publisher:      m.publisher,
		OpenBackup:     storage.OpenBackup,
		CompressExport: m.cfg.Export.Compress,
		OnFatal:        m.halt,
	}
	if !m.cfg.Store.NoUpdate && !m.opts.NoConfig {
		writer := config.NewDefaultsWriter(m.opts.ConfigDir)
		opts.Persister = engine.DefaultsPersisterFunc(func(d engine.StoreDefaults) error {
			return writer.Write(d.MaxByteSize, d.Groups)
		})
		m.logger.Info("Persisting store budget changes", "path", writer.Path())
	}

	eng, err := engine.New(opts)
	if err != nil {
		return err
	}
	m.engine = eng

	pruned, err := eng.ApplyDefaults(ctx, engine.StoreDefaults{
		MaxByteSize: m.cfg.Store.MaxByteSize,
		Groups:      m.cfg.Store.Groups,
	})
	if err != nil {
		return fmt.Errorf("failed to apply store defaults: %w", err)
	}
	if pruned > 0 {
		m.logger.Info("Pruned messages over configured budgets", "pruned", pruned)
	}
	return nil
}

func (m *Manager) initServer() {
	server.InitDefault(m.cfg.Server, nil)
	m.server = server.Default()

	// A nil *memory.Broker must not become a non-nil Subscriber.
	var events pubsub.Subscriber
	if m.broker != nil {
		events = m.broker
	}
	m.rtServer = realtime.NewServer(m.engine, events, m.cfg.Events.SubjectPrefix, m.cfg.Gateway.Realtime)
	gateway.NewServer(m.engine, m.rtServer).RegisterRoutes(m.server.HTTPMux())
}
