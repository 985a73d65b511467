package storage

import (
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
)

type Record = types.Record
type RecordMeta = types.RecordMeta
type RecordStore = types.RecordStore
type Kind = types.Kind

const (
	KindMemory = types.KindMemory
	KindPebble = types.KindPebble
)

var (
	ErrNotFound = types.ErrNotFound
	ErrClosed   = types.ErrClosed
)
