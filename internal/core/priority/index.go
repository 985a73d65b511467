// Package priority maintains priority groups and enforces store-wide and
// per-group byte budgets. It decides which messages are evicted when a budget
// would be exceeded and which message is delivered next.
package priority

import (
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
)

const btreeDegree = 32

// Selector picks a message. ID takes precedence over Priority; with neither set
// the global next message is chosen.
type Selector struct {
	ID       *msgid.ID
	Priority *uint32
	Reverse  bool
}

// Admission is the result of a successful Admit.
type Admission struct {
	ID      msgid.ID
	Evicted []msgid.ID
}

type member struct {
	id   msgid.ID
	size uint32
}

func memberLess(a, b member) bool {
	return a.id.Less(b.id)
}

type group struct {
	priority uint32
	byteSize uint64
	members  *btree.BTreeG[member]
}

func groupLess(a, b *group) bool {
	return a.priority < b.priority
}

type location struct {
	priority uint32
	size     uint32
}

// Index is safe for concurrent use.
type Index struct {
	mu sync.Mutex

	gen         *msgid.Generator
	byteSize    uint64
	maxByteSize *uint32
	defaults    map[uint32]uint32
	groups      *btree.BTreeG[*group]
	byID        map[msgid.ID]location
}

// New creates an empty index minting ids from gen.
func New(gen *msgid.Generator) *Index {
	if gen == nil {
		gen = msgid.NewGenerator()
	}
	return &Index{
		gen:      gen,
		defaults: make(map[uint32]uint32),
		groups:   btree.NewG[*group](btreeDegree, groupLess),
		byID:     make(map[msgid.ID]location),
	}
}

func (idx *Index) group(priority uint32) *group {
	g, ok := idx.groups.Get(&group{priority: priority})
	if !ok {
		return nil
	}
	return g
}

func (idx *Index) groupOrCreate(priority uint32) *group {
	if g := idx.group(priority); g != nil {
		return g
	}
	g := &group{priority: priority, members: btree.NewG[member](btreeDegree, memberLess)}
	idx.groups.ReplaceOrInsert(g)
	return g
}

func (idx *Index) insert(id msgid.ID, priority, size uint32) {
	g := idx.groupOrCreate(priority)
	g.members.ReplaceOrInsert(member{id: id, size: size})
	g.byteSize += uint64(size)
	idx.byteSize += uint64(size)
	idx.byID[id] = location{priority: priority, size: size}
}

func (idx *Index) remove(id msgid.ID) bool {
	loc, ok := idx.byID[id]
	if !ok {
		return false
	}
	delete(idx.byID, id)
	idx.byteSize -= uint64(loc.size)

	g := idx.group(loc.priority)
	if g == nil {
		return true
	}
	if _, removed := g.members.Delete(member{id: id}); removed {
		g.byteSize -= uint64(loc.size)
	}
	if g.members.Len() == 0 {
		idx.groups.Delete(g)
	}
	return true
}

func (idx *Index) removeAll(ids []msgid.ID) {
	for _, id := range ids {
		idx.remove(id)
	}
}

// Admit reserves room for a message of byteSize bytes under priority and returns
// its new id together with the ids evicted to make room, in removal order. On
// error the index is left unchanged.
func (idx *Index) Admit(priority, byteSize uint32) (Admission, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.maxByteSize != nil && byteSize > *idx.maxByteSize {
		return Admission{}, ErrExceedsStoreMax
	}
	groupMax, hasGroupMax := idx.defaults[priority]
	if hasGroupMax && byteSize > groupMax {
		return Admission{}, ErrExceedsGroupMax
	}

	var victims []msgid.ID
	chosen := make(map[msgid.ID]struct{})
	var freed uint64

	if g := idx.group(priority); g != nil && hasGroupMax {
		groupFreed := uint64(0)
		g.members.Ascend(func(m member) bool {
			if g.byteSize-groupFreed+uint64(byteSize) <= uint64(groupMax) {
				return false
			}
			victims = append(victims, m.id)
			chosen[m.id] = struct{}{}
			groupFreed += uint64(m.size)
			return true
		})
		freed += groupFreed
	}

	if idx.maxByteSize != nil {
		limit := uint64(*idx.maxByteSize)
		fits := func() bool { return idx.byteSize-freed+uint64(byteSize) <= limit }
		if !fits() {
			idx.groups.Ascend(func(g *group) bool {
				if g.priority > priority {
					return false
				}
				g.members.Ascend(func(m member) bool {
					if fits() {
						return false
					}
					if _, dup := chosen[m.id]; dup {
						return true
					}
					victims = append(victims, m.id)
					chosen[m.id] = struct{}{}
					freed += uint64(m.size)
					return true
				})
				return !fits()
			})
			if !fits() {
				return Admission{}, ErrLacksPriority
			}
		}
	}

	idx.removeAll(victims)
	id := idx.gen.Next()
	idx.insert(id, priority, byteSize)
	return Admission{ID: id, Evicted: victims}, nil
}

// Restore re-inserts a message loaded from durable storage. Budgets are not
// enforced.
func (idx *Index) Restore(id msgid.ID, priority, byteSize uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.remove(id)
	idx.insert(id, priority, byteSize)
	idx.gen.Observe(id)
}

// Next returns the id matching sel.
func (idx *Index) Next(sel Selector) (msgid.ID, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if sel.ID != nil {
		_, ok := idx.byID[*sel.ID]
		return *sel.ID, ok
	}

	var g *group
	switch {
	case sel.Priority != nil:
		g = idx.group(*sel.Priority)
	case sel.Reverse:
		g, _ = idx.groups.Min()
	default:
		g, _ = idx.groups.Max()
	}
	if g == nil {
		return msgid.ID{}, false
	}

	var m member
	var ok bool
	if sel.Reverse {
		m, ok = g.members.Max()
	} else {
		m, ok = g.members.Min()
	}
	return m.id, ok
}

// Lookup returns the priority and byte size of a live message.
func (idx *Index) Lookup(id msgid.ID) (priority, byteSize uint32, ok bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	loc, ok := idx.byID[id]
	return loc.priority, loc.size, ok
}

// Forget removes id. Unknown ids yield ErrNotFound.
func (idx *Index) Forget(id msgid.ID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.remove(id) {
		return ErrNotFound
	}
	return nil
}

// ForgetGroup removes every member of a group and returns their ids, oldest first.
func (idx *Index) ForgetGroup(priority uint32) []msgid.ID {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := idx.membersLocked(priority)
	idx.removeAll(ids)
	return ids
}

// SetGroupDefault sets a group budget and evicts the group's oldest messages
// until it fits.
func (idx *Index) SetGroupDefault(priority, maxByteSize uint32) ([]msgid.ID, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.maxByteSize != nil && maxByteSize > *idx.maxByteSize {
		return nil, ErrExceedsStoreMax
	}
	idx.defaults[priority] = maxByteSize

	g := idx.group(priority)
	if g == nil || g.byteSize <= uint64(maxByteSize) {
		return nil, nil
	}

	var victims []msgid.ID
	remaining := g.byteSize
	g.members.Ascend(func(m member) bool {
		if remaining <= uint64(maxByteSize) {
			return false
		}
		victims = append(victims, m.id)
		remaining -= uint64(m.size)
		return true
	})
	idx.removeAll(victims)
	return victims, nil
}

// DeleteGroupDefault removes a group budget. It reports whether one existed.
func (idx *Index) DeleteGroupDefault(priority uint32) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, ok := idx.defaults[priority]
	delete(idx.defaults, priority)
	return ok
}

// SetStoreMax sets or clears the store budget and evicts from the lowest
// priority groups, oldest first, until the store fits.
func (idx *Index) SetStoreMax(maxByteSize *uint32) []msgid.ID {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if maxByteSize == nil {
		idx.maxByteSize = nil
		return nil
	}
	limit := *maxByteSize
	idx.maxByteSize = &limit

	if idx.byteSize <= uint64(limit) {
		return nil
	}

	var victims []msgid.ID
	remaining := idx.byteSize
	idx.groups.Ascend(func(g *group) bool {
		g.members.Ascend(func(m member) bool {
			if remaining <= uint64(limit) {
				return false
			}
			victims = append(victims, m.id)
			remaining -= uint64(m.size)
			return true
		})
		return remaining > uint64(limit)
	})
	idx.removeAll(victims)
	return victims
}

// GroupMembers returns the ids of a group, oldest first.
func (idx *Index) GroupMembers(priority uint32) []msgid.ID {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.membersLocked(priority)
}

func (idx *Index) membersLocked(priority uint32) []msgid.ID {
	g := idx.group(priority)
	if g == nil {
		return nil
	}
	ids := make([]msgid.ID, 0, g.members.Len())
	g.members.Ascend(func(m member) bool {
		ids = append(ids, m.id)
		return true
	})
	return ids
}

// Len returns the number of live messages.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byID)
}

// ByteSize returns the total accounted size of live messages.
func (idx *Index) ByteSize() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.byteSize
}

// MaxByteSize returns the store budget, if any.
func (idx *Index) MaxByteSize() *uint32 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return copyLimit(idx.maxByteSize)
}

func copyLimit(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (idx *Index) defaultsLocked(only *uint32) []GroupDefault {
	out := make([]GroupDefault, 0, len(idx.defaults))
	for p, limit := range idx.defaults {
		if only != nil && p != *only {
			continue
		}
		out = append(out, GroupDefault{Priority: p, MaxByteSize: limit})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
