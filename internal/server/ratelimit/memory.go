package ratelimit

import (
	"sync"
	"time"
)

// MemoryLimiter is an in-process token bucket limiter. Each key holds a
// bucket of Requests tokens refilled evenly across Window.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	stopCh   chan struct{}
}

type bucket struct {
	tokens float64
	seen   time.Time
}

var _ Stoppable = (*MemoryLimiter)(nil)

// NewMemoryLimiter starts a limiter and its sweeper. Call Stop when done.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	l := &MemoryLimiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	if cfg.Enabled && cfg.Window > 0 {
		go l.sweep(cfg.Window * 2)
	}
	return l
}

func (l *MemoryLimiter) Allow(key string) bool {
	if !l.cfg.Enabled {
		return true
	}
	capacity := float64(l.cfg.Requests)
	rate := capacity / l.cfg.Window.Seconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, seen: now}
		l.buckets[key] = b
	}
	b.tokens = min(capacity, b.tokens+now.Sub(b.seen).Seconds()*rate)
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the sweeper. Safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *MemoryLimiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.dropIdle(every)
		case <-l.stopCh:
			return
		}
	}
}

// dropIdle removes buckets untouched for longer than idle. Such a bucket has
// refilled completely, so forgetting it changes nothing.
func (l *MemoryLimiter) dropIdle(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.seen) > idle {
			delete(l.buckets, key)
		}
	}
}
