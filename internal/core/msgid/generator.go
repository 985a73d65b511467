package msgid

import (
	"math"
	"sync"
	"time"
)

// Generator hands out strictly increasing ids. The timestamp is the wall clock in
// nanoseconds; ids minted within the same nanosecond, or while the clock lags
// behind the last issued id, share a timestamp and differ by sequence.
type Generator struct {
	mu   sync.Mutex
	last ID
	now  func() time.Time
}

// NewGenerator creates a generator backed by the system clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Next returns a new id greater than every id previously returned or observed.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	candidate := ID{Lo: uint64(g.now().UnixNano())}
	if candidate.Compare(g.last) <= 0 {
		candidate = g.last
		if candidate.Sequence == math.MaxUint32 {
			candidate.Sequence = 0
			candidate.Lo++
			if candidate.Lo == 0 {
				candidate.Hi++
			}
		} else {
			candidate.Sequence++
		}
	}
	g.last = candidate
	return candidate
}

// Observe records an id restored from durable storage so that later ids sort
// after it.
func (g *Generator) Observe(id ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last.Less(id) {
		g.last = id
	}
}
