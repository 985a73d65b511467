package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/priority"
	"github.com/syntrixbase/msgstore/internal/core/storage/types"
	"github.com/syntrixbase/msgstore/internal/metrics"
)

const (
	// BackupFileName is the flat backup written for the memory backend.
	BackupFileName = "msg-store-backup.txt"
	// BackupBlobDir holds mirrored blob files under an export destination.
	BackupBlobDir = "file-storage"
)

// ExportResult describes a completed export.
type ExportResult struct {
	Directory string `json:"directory"`
	Exported  int    `json:"exported"`
}

// BackupLine is one line of a flat backup file.
type BackupLine struct {
	UUID     msgid.ID `json:"uuid"`
	Msg      string   `json:"msg"`
	Priority uint32   `json:"priority"`
	ByteSize uint32   `json:"byteSize"`
	HasBlob  bool     `json:"hasBlob,omitempty"`
	// Digest is the hex blake3 digest of the mirrored blob.
	Digest string `json:"digest,omitempty"`
}

// ResolveExportDir returns dir if it does not exist, otherwise the first of
// dir-1, dir-2, ... that does not.
func ResolveExportDir(dir string) (string, error) {
	candidate := dir
	for i := 1; ; i++ {
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d", dir, i)
	}
}

// Export drains the store into a new backup under dir and removes every
// migrated message from the live stores. Messages migrated before a failure
// stay migrated; the returned *ExportError carries the count.
func (e *Engine) Export(ctx context.Context, dir string) (ExportResult, error) {
	if err := e.checkHealthy(); err != nil {
		return ExportResult{}, err
	}
	if !e.exportMu.TryLock() {
		return ExportResult{}, ErrExportInProgress
	}
	defer e.exportMu.Unlock()

	dest, err := ResolveExportDir(dir)
	if err != nil {
		metrics.Exports.WithLabelValues("error").Inc()
		return ExportResult{}, &ExportError{Directory: dir, Err: err}
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		metrics.Exports.WithLabelValues("error").Inc()
		return ExportResult{}, &ExportError{Directory: dest, Err: err}
	}
	if e.blobs != nil {
		if err := os.MkdirAll(filepath.Join(dest, BackupBlobDir), 0755); err != nil {
			metrics.Exports.WithLabelValues("error").Inc()
			return ExportResult{}, &ExportError{Directory: dest, Err: err}
		}
	}

	limit := e.index.Len()
	e.logger.Info("Starting export", "directory", dest, "messages", limit, "backend", e.records.Kind())

	var exported int
	switch e.records.Kind() {
	case types.KindPebble:
		exported, err = e.exportDatabase(ctx, dest, limit)
	default:
		exported, err = e.exportFlat(ctx, dest, limit)
	}

	if exported > 0 {
		e.stats.add(Stats{Deleted: uint32(exported)})
		metrics.MessagesDeleted.WithLabelValues("exported").Add(float64(exported))
		e.observeStore()
	}
	result := ExportResult{Directory: dest, Exported: exported}
	if err != nil {
		metrics.Exports.WithLabelValues("error").Inc()
		e.logger.Error("Export failed", "directory", dest, "exported", exported, "error", err)
		if IsFatal(err) {
			return result, err
		}
		return result, &ExportError{Directory: dest, Exported: exported, Err: err}
	}

	metrics.Exports.WithLabelValues("ok").Inc()
	e.logger.Info("Export finished", "directory", dest, "exported", exported)
	e.publish(ctx, Event{Event: EventExported, Count: exported, Reason: dest})
	return result, nil
}

// nextExport picks the globally next message and loads its record.
func (e *Engine) nextExport(ctx context.Context) (types.Record, bool, error) {
	id, ok := e.index.Next(priority.Selector{})
	if !ok {
		return types.Record{}, false, nil
	}
	rec, err := e.records.Get(ctx, id)
	if err != nil {
		return types.Record{}, false, fmt.Errorf("failed to read %s: %w", id, err)
	}
	return rec, true, nil
}

// moveBlob mirrors the blob for id into the backup, if it has one, and
// returns the digest of the verified copy.
func (e *Engine) moveBlob(id msgid.ID, dest string) (string, bool, error) {
	if e.blobs == nil || !e.blobs.Contains(id) {
		return "", false, nil
	}
	res, err := e.blobs.MoveTo(id, filepath.Join(dest, BackupBlobDir))
	if err != nil {
		return "", false, err
	}
	e.logger.Debug("Blob exported", "id", id.String(), "size", res.Size, "digest", res.Digest)
	return res.Digest, true, nil
}

// restoreBlob reverses moveBlob after the backup write failed.
func (e *Engine) restoreBlob(id msgid.ID, dest string) {
	if err := e.blobs.RestoreFrom(id, filepath.Join(dest, BackupBlobDir)); err != nil {
		e.logger.Error("Failed to restore blob after export failure", "id", id.String(), "error", err)
	}
}

// retire removes a migrated message from the live index and record store.
func (e *Engine) retire(ctx context.Context, id msgid.ID) error {
	_ = e.index.Forget(id)
	if err := e.records.Delete(ctx, id); err != nil {
		return e.fatal("export", id, err)
	}
	return nil
}

func (e *Engine) exportFlat(ctx context.Context, dest string, limit int) (exported int, err error) {
	name := BackupFileName
	if e.compressExport {
		name += ".zst"
	}
	f, err := os.OpenFile(filepath.Join(dest, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if syncErr := f.Sync(); err == nil {
			err = syncErr
		}
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	var (
		w     io.Writer
		flush func() error
	)
	if e.compressExport {
		enc, encErr := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if encErr != nil {
			return 0, encErr
		}
		defer func() {
			if closeErr := enc.Close(); err == nil {
				err = closeErr
			}
		}()
		w, flush = enc, enc.Flush
	} else {
		bw := bufio.NewWriter(f)
		w, flush = bw, bw.Flush
	}
	jsonEnc := json.NewEncoder(w)

	for exported < limit {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		rec, ok, err := e.nextExport(ctx)
		if err != nil {
			return exported, err
		}
		if !ok {
			break
		}
		digest, hasBlob, err := e.moveBlob(rec.ID, dest)
		if err != nil {
			return exported, err
		}
		line := BackupLine{
			UUID:     rec.ID,
			Msg:      string(rec.Payload),
			Priority: rec.Priority,
			ByteSize: rec.ByteSize,
			HasBlob:  hasBlob,
			Digest:   digest,
		}
		err = jsonEnc.Encode(line)
		if err == nil {
			err = flush()
		}
		if err != nil {
			if hasBlob {
				e.restoreBlob(rec.ID, dest)
			}
			return exported, fmt.Errorf("failed to write backup line for %s: %w", rec.ID, err)
		}
		if err := e.retire(ctx, rec.ID); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func (e *Engine) exportDatabase(ctx context.Context, dest string, limit int) (int, error) {
	if e.openBackup == nil {
		return 0, fmt.Errorf("no backup opener for %s backend", e.records.Kind())
	}
	backup, err := e.openBackup(e.records.Kind(), dest)
	if err != nil {
		return 0, fmt.Errorf("failed to open backup database: %w", err)
	}
	defer func() {
		if err := backup.Close(); err != nil {
			e.logger.Warn("Failed to close backup database", "directory", dest, "error", err)
		}
	}()

	exported := 0
	for exported < limit {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		rec, ok, err := e.nextExport(ctx)
		if err != nil {
			return exported, err
		}
		if !ok {
			break
		}
		_, hasBlob, err := e.moveBlob(rec.ID, dest)
		if err != nil {
			return exported, err
		}
		if err := backup.Put(ctx, rec); err != nil {
			if hasBlob {
				e.restoreBlob(rec.ID, dest)
			}
			return exported, fmt.Errorf("failed to write %s to backup database: %w", rec.ID, err)
		}
		if err := e.retire(ctx, rec.ID); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}
