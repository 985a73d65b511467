package engine

import "sync"

// Stats counts message removals by cause. Deleted covers client deletes,
// insert evictions and exports; Pruned covers budget changes.
type Stats struct {
	Inserted uint32 `json:"inserted"`
	Deleted  uint32 `json:"deleted"`
	Pruned   uint32 `json:"pruned"`
}

// StatsUpdate names the counters to change. Nil fields are left alone.
type StatsUpdate struct {
	Inserted *uint32 `json:"inserted,omitempty"`
	Deleted  *uint32 `json:"deleted,omitempty"`
	Pruned   *uint32 `json:"pruned,omitempty"`
}

type statsCounter struct {
	mu sync.Mutex
	s  Stats
}

func (c *statsCounter) get() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

func (c *statsCounter) add(delta Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Inserted += delta.Inserted
	c.s.Deleted += delta.Deleted
	c.s.Pruned += delta.Pruned
}

// undoInsert reverses a single insert count.
func (c *statsCounter) undoInsert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.Inserted > 0 {
		c.s.Inserted--
	}
}

func (c *statsCounter) update(u StatsUpdate, add bool) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.s
	apply := func(field *uint32, v *uint32) {
		if v == nil {
			return
		}
		if add {
			*field += *v
		} else {
			*field = *v
		}
	}
	apply(&c.s.Inserted, u.Inserted)
	apply(&c.s.Deleted, u.Deleted)
	apply(&c.s.Pruned, u.Pruned)
	return old
}

func (c *statsCounter) reset() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.s
	c.s = Stats{}
	return old
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return e.stats.get()
}

// AddStats adds the given values and returns the previous counters.
func (e *Engine) AddStats(u StatsUpdate) Stats {
	return e.stats.update(u, true)
}

// ReplaceStats overwrites the given counters and returns the previous ones.
func (e *Engine) ReplaceStats(u StatsUpdate) Stats {
	return e.stats.update(u, false)
}

// ResetStats zeroes every counter and returns the previous ones.
func (e *Engine) ResetStats() Stats {
	return e.stats.reset()
}
