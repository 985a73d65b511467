package logging

import (
	"io"
	"sync"
	"time"
)

// AsyncWriter moves writes to a background goroutine which batches them to
// the underlying writer. Writes block when the queue is full.
type AsyncWriter struct {
	w     io.Writer
	queue chan []byte
	flush chan chan struct{}
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// AsyncWriterConfig sizes the queue and batching.
type AsyncWriterConfig struct {
	QueueSize int
	BatchSize int
	Interval  time.Duration
}

func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{QueueSize: 10000, BatchSize: 100, Interval: 100 * time.Millisecond}
}

func NewAsyncWriter(w io.Writer) *AsyncWriter {
	return NewAsyncWriterWithConfig(w, DefaultAsyncWriterConfig())
}

func NewAsyncWriterWithConfig(w io.Writer, cfg AsyncWriterConfig) *AsyncWriter {
	aw := &AsyncWriter{
		w:     w,
		queue: make(chan []byte, cfg.QueueSize),
		flush: make(chan chan struct{}),
		done:  make(chan struct{}),
	}
	go aw.run(cfg.BatchSize, cfg.Interval)
	return aw
}

// Write queues a copy of p.
func (aw *AsyncWriter) Write(p []byte) (int, error) {
	aw.mu.RLock()
	defer aw.mu.RUnlock()
	if aw.closed {
		return 0, io.ErrClosedPipe
	}
	aw.queue <- append([]byte(nil), p...)
	return len(p), nil
}

// Flush blocks until everything queued before the call has been written.
func (aw *AsyncWriter) Flush() error {
	aw.mu.RLock()
	if aw.closed {
		aw.mu.RUnlock()
		return nil
	}
	ack := make(chan struct{})
	aw.flush <- ack
	aw.mu.RUnlock()
	<-ack
	return nil
}

// Close drains the queue and closes the underlying writer if it is a Closer.
func (aw *AsyncWriter) Close() error {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return nil
	}
	aw.closed = true
	close(aw.queue)
	aw.mu.Unlock()

	<-aw.done
	if c, ok := aw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (aw *AsyncWriter) run(batchSize int, interval time.Duration) {
	defer close(aw.done)
	t := time.NewTicker(interval)
	defer t.Stop()

	batch := make([][]byte, 0, batchSize)
	write := func() {
		for _, p := range batch {
			_, _ = aw.w.Write(p)
		}
		batch = batch[:0]
	}
	drain := func() {
		for {
			select {
			case p, ok := <-aw.queue:
				if !ok {
					return
				}
				batch = append(batch, p)
			default:
				return
			}
		}
	}

	for {
		select {
		case p, ok := <-aw.queue:
			if !ok {
				write()
				return
			}
			batch = append(batch, p)
			if len(batch) >= batchSize {
				write()
			}
		case ack := <-aw.flush:
			drain()
			write()
			close(ack)
		case <-t.C:
			write()
		}
	}
}
