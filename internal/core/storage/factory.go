// Package storage opens the configured record store backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/syntrixbase/msgstore/internal/core/storage/config"
	"github.com/syntrixbase/msgstore/internal/core/storage/memory"
	"github.com/syntrixbase/msgstore/internal/core/storage/pebblestore"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
)

// BackupDBDir is the directory under an export destination holding the backup database.
const BackupDBDir = "db"

// ErrNoBackupStore is returned by OpenBackup for backends that export to a flat file.
var ErrNoBackupStore = errors.New("backend has no backup database")

// Dependency injection for testing
var openPebble = func(cfg pebblestore.Config) (types.RecordStore, error) {
	return pebblestore.Open(cfg)
}

// Open opens the record store selected by cfg.Backend.
func Open(_ context.Context, cfg config.Config) (types.RecordStore, error) {
	kind, ok := types.ParseKind(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	switch kind {
	case types.KindPebble:
		return openPebble(pebblestore.Config{
			Path:           cfg.Pebble.Path,
			BlockCacheSize: cfg.Pebble.BlockCacheSize,
			Logger:         slog.Default(),
		})
	default:
		return memory.New(), nil
	}
}

// OpenBackup opens a fresh instance of the kind engine rooted under dir.
func OpenBackup(kind types.Kind, dir string) (types.RecordStore, error) {
	if kind != types.KindPebble {
		return nil, ErrNoBackupStore
	}
	return openPebble(pebblestore.Config{
		Path:   filepath.Join(dir, BackupDBDir),
		Logger: slog.Default().With("backup", dir),
	})
}
