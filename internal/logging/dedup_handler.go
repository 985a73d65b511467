package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DedupHandler collapses records with the same level, message and
// attributes seen within one flush window into a single record carrying a
// repeated_count attribute. Derived handlers share the window.
type DedupHandler struct {
	next  slog.Handler
	state *dedupState
}

type dedupState struct {
	mu      sync.Mutex
	pending map[uint64]*dedupEntry
	order   []uint64
	limit   int

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type dedupEntry struct {
	next   slog.Handler
	record slog.Record
	count  int
}

// DedupConfig sizes the flush window.
type DedupConfig struct {
	// MaxPending forces a flush once this many distinct records are held.
	MaxPending int
	// Interval is the flush period.
	Interval time.Duration
}

func DefaultDedupConfig() DedupConfig {
	return DedupConfig{MaxPending: 100, Interval: time.Second}
}

func NewDedupHandler(next slog.Handler) *DedupHandler {
	return NewDedupHandlerWithConfig(next, DefaultDedupConfig())
}

func NewDedupHandlerWithConfig(next slog.Handler, cfg DedupConfig) *DedupHandler {
	s := &dedupState{
		pending: make(map[uint64]*dedupEntry),
		limit:   cfg.MaxPending,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop(cfg.Interval)
	return &DedupHandler{next: next, state: s}
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *DedupHandler) Handle(_ context.Context, r slog.Record) error {
	key := h.key(r)
	s := h.state

	s.mu.Lock()
	if e, ok := s.pending[key]; ok {
		e.count++
		s.mu.Unlock()
		return nil
	}
	s.pending[key] = &dedupEntry{next: h.next, record: r.Clone(), count: 1}
	s.order = append(s.order, key)
	var batch []*dedupEntry
	if len(s.order) >= s.limit {
		batch = s.take()
	}
	s.mu.Unlock()

	emit(batch)
	return nil
}

// key hashes everything but the timestamp. Handler attributes are not part
// of the key; the first handler to log a record emits it.
func (h *DedupHandler) key(r slog.Record) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(r.Level.String())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(a.Key)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(a.Value.String())
		return true
	})
	return d.Sum64()
}

func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DedupHandler{next: h.next.WithAttrs(attrs), state: h.state}
}

func (h *DedupHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &DedupHandler{next: h.next.WithGroup(name), state: h.state}
}

// Flush emits the current window immediately.
func (h *DedupHandler) Flush() {
	h.state.mu.Lock()
	batch := h.state.take()
	h.state.mu.Unlock()
	emit(batch)
}

// Close flushes pending records and stops the flush loop. Safe to call more
// than once.
func (h *DedupHandler) Close() error {
	h.state.once.Do(func() { close(h.state.stop) })
	<-h.state.done
	return nil
}

func (s *dedupState) loop(interval time.Duration) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
		case <-s.stop:
			s.mu.Lock()
			batch := s.take()
			s.mu.Unlock()
			emit(batch)
			return
		}
		s.mu.Lock()
		batch := s.take()
		s.mu.Unlock()
		emit(batch)
	}
}

// take detaches the pending window. Callers hold mu.
func (s *dedupState) take() []*dedupEntry {
	if len(s.order) == 0 {
		return nil
	}
	batch := make([]*dedupEntry, 0, len(s.order))
	for _, k := range s.order {
		batch = append(batch, s.pending[k])
	}
	s.pending = make(map[uint64]*dedupEntry)
	s.order = s.order[:0]
	return batch
}

func emit(batch []*dedupEntry) {
	for _, e := range batch {
		r := e.record
		if e.count > 1 {
			r.AddAttrs(slog.Int("repeated_count", e.count))
		}
		_ = e.next.Handle(context.Background(), r)
	}
}
