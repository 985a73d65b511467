package priority

import "github.com/syntrixbase/msgstore/internal/core/msgid"

// MessageView describes a single live message.
type MessageView struct {
	ID       msgid.ID `json:"uuid"`
	ByteSize uint32   `json:"byteSize"`
}

// GroupView describes a priority group.
type GroupView struct {
	Priority     uint32        `json:"priority"`
	ByteSize     uint64        `json:"byteSize"`
	MaxByteSize  *uint32       `json:"maxByteSize"`
	MessageCount int           `json:"msgCount"`
	Messages     []MessageView `json:"messages,omitempty"`
}

// GroupDefault is a configured per-group budget.
type GroupDefault struct {
	Priority    uint32 `json:"priority" yaml:"priority"`
	MaxByteSize uint32 `json:"maxByteSize" yaml:"max_byte_size"`
}

// StoreView is a point-in-time snapshot of the whole index.
type StoreView struct {
	ByteSize      uint64         `json:"byteSize"`
	MaxByteSize   *uint32        `json:"maxByteSize"`
	MessageCount  int            `json:"msgCount"`
	GroupCount    int            `json:"groupCount"`
	Groups        []GroupView    `json:"groups"`
	GroupDefaults []GroupDefault `json:"groupDefaults"`
}

// Groups returns every group in ascending priority order, or just the one named
// by priority. Members are listed oldest first when includeMessages is set.
func (idx *Index) Groups(priority *uint32, includeMessages bool) []GroupView {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.groupsLocked(priority, includeMessages)
}

func (idx *Index) groupsLocked(priority *uint32, includeMessages bool) []GroupView {
	views := make([]GroupView, 0, idx.groups.Len())
	idx.groups.Ascend(func(g *group) bool {
		if priority != nil && g.priority != *priority {
			return g.priority < *priority
		}
		view := GroupView{
			Priority:     g.priority,
			ByteSize:     g.byteSize,
			MessageCount: g.members.Len(),
		}
		if limit, ok := idx.defaults[g.priority]; ok {
			view.MaxByteSize = &limit
		}
		if includeMessages {
			view.Messages = make([]MessageView, 0, g.members.Len())
			g.members.Ascend(func(m member) bool {
				view.Messages = append(view.Messages, MessageView{ID: m.id, ByteSize: m.size})
				return true
			})
		}
		views = append(views, view)
		return priority == nil
	})
	return views
}

// GroupDefaults returns configured group budgets in ascending priority order,
// or just the one named by priority.
func (idx *Index) GroupDefaults(priority *uint32) []GroupDefault {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.defaultsLocked(priority)
}

// Snapshot returns the store-wide view.
func (idx *Index) Snapshot(includeMessages bool) StoreView {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	return StoreView{
		ByteSize:      idx.byteSize,
		MaxByteSize:   copyLimit(idx.maxByteSize),
		MessageCount:  len(idx.byID),
		GroupCount:    idx.groups.Len(),
		Groups:        idx.groupsLocked(nil, includeMessages),
		GroupDefaults: idx.defaultsLocked(nil),
	}
}
