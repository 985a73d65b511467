package rest

import (
	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/priority"
	"github.com/syntrixbase/msgstore/internal/engine"
)

// MessageQuery selects a message by id, by priority or globally.
type MessageQuery struct {
	UUID     string  `schema:"uuid" json:"uuid,omitempty"`
	Priority *uint32 `schema:"priority" json:"priority,omitempty"`
	Reverse  bool    `schema:"reverse" json:"reverse,omitempty"`
}

// Selector converts q into an index selector.
func (q *MessageQuery) Selector() (priority.Selector, error) {
	sel := priority.Selector{Priority: q.Priority, Reverse: q.Reverse}
	if q.UUID != "" {
		id, err := msgid.Parse(q.UUID)
		if err != nil {
			return sel, err
		}
		sel.ID = &id
	}
	return sel, nil
}

// DeleteMessageQuery names the message to delete.
type DeleteMessageQuery struct {
	UUID string `schema:"uuid" json:"uuid" validate:"required"`
}

// GroupQuery narrows group reads to one priority.
type GroupQuery struct {
	Priority       *uint32 `schema:"priority" json:"priority,omitempty"`
	IncludeMsgData bool    `schema:"includeMsgData" json:"includeMsgData,omitempty"`
}

// DeleteGroupQuery names the group to delete.
type DeleteGroupQuery struct {
	Priority *uint32 `schema:"priority" json:"priority" validate:"required"`
}

// GroupDefaultRequest sets the byte budget of a priority group.
type GroupDefaultRequest struct {
	Priority    *uint32 `json:"priority" validate:"required"`
	MaxByteSize *uint32 `json:"max_byte_size" validate:"required"`
}

// StoreRequest sets the store budget. A null maxByteSize removes it.
type StoreRequest struct {
	MaxByteSize *uint32 `json:"maxByteSize"`
}

// StatsRequest adds to or replaces counters. Omitted counters are untouched.
type StatsRequest struct {
	Add      bool    `json:"add"`
	Inserted *uint32 `json:"inserted"`
	Deleted  *uint32 `json:"deleted"`
	Pruned   *uint32 `json:"pruned"`
}

// Update converts r into an engine stats update.
func (r *StatsRequest) Update() engine.StatsUpdate {
	return engine.StatsUpdate{Inserted: r.Inserted, Deleted: r.Deleted, Pruned: r.Pruned}
}

// ExportRequest names the export destination.
type ExportRequest struct {
	Directory string `schema:"directory" json:"directory" validate:"required,max=4096"`
}

// PostMessageResponse is returned for an accepted message.
type PostMessageResponse struct {
	UUID msgid.ID `json:"uuid"`
}

// GroupDeleteResponse reports how many messages a group delete removed.
type GroupDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// PruneResponse reports how many messages a budget change pruned.
type PruneResponse struct {
	Pruned int `json:"pruned"`
}

// DeletedResponse reports whether a group default existed.
type DeletedResponse struct {
	Deleted bool `json:"deleted"`
}
