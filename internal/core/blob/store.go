// Package blob stores large message payloads as files, one per message,
// named by the message id, alongside an ordered in-memory index of which ids
// have a file.
package blob

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"github.com/zeebo/blake3"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
)

var (
	// ErrNotFound is returned when an id has no indexed blob.
	ErrNotFound = errors.New("blob not found")
	// ErrDigestMismatch is returned by MoveTo when the copy does not hash to
	// the same digest as the live file.
	ErrDigestMismatch = errors.New("blob digest mismatch")
)

// copyBlob is replaced in tests.
var copyBlob = copyFile

// WriteResult describes a file written by the store.
type WriteResult struct {
	Size   int64
	Digest string // hex blake3
}

func idLess(a, b msgid.ID) bool { return a.Less(b) }

// Store is safe for concurrent use. The index lock is never held during file I/O.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	index *btree.BTreeG[msgid.ID]
}

// New creates the directory if needed and returns an empty store. Call Scan and
// Discover to index existing files.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: slog.Default().With("component", "blob-store"),
		index:  btree.NewG[msgid.ID](32, idLess),
	}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for id.
func (s *Store) Path(id msgid.ID) string {
	return filepath.Join(s.dir, id.String())
}

// Write stores r under id. The id is indexed only after the file has been fully
// written and synced; on failure the partial file is removed and not indexed.
func (s *Store) Write(id msgid.ID, r io.Reader) (WriteResult, error) {
	res, err := writeFile(s.Path(id), r)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to write blob %s: %w", id, err)
	}
	s.Index(id)
	return res, nil
}

func writeFile(path string, r io.Reader) (WriteResult, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return WriteResult{}, err
	}

	hasher := blake3.New()
	n, err := io.Copy(io.MultiWriter(f, hasher), r)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return WriteResult{}, err
	}
	return WriteResult{Size: n, Digest: hex.EncodeToString(hasher.Sum(nil))}, nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func copyFile(src, dst string) (WriteResult, error) {
	in, err := os.Open(src)
	if err != nil {
		return WriteResult{}, err
	}
	defer in.Close()
	return writeFile(dst, in)
}

// Open returns the blob file and its size. The caller closes the file.
func (s *Store) Open(id msgid.ID) (*os.File, int64, error) {
	if !s.Contains(id) {
		return nil, 0, ErrNotFound
	}
	f, err := os.Open(s.Path(id))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open blob %s: %w", id, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat blob %s: %w", id, err)
	}
	return f, info.Size(), nil
}

// Contains reports whether id is indexed.
func (s *Store) Contains(id msgid.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Has(id)
}

// Index marks id as having a file.
func (s *Store) Index(id msgid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.ReplaceOrInsert(id)
}

// Unindex drops id from the index and reports whether it was present. The file
// is left in place.
func (s *Store) Unindex(id msgid.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index.Delete(id)
	return ok
}

// Remove unindexes id and deletes its file. A missing file is not an error.
func (s *Store) Remove(id msgid.ID) (bool, error) {
	indexed := s.Unindex(id)
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return indexed, fmt.Errorf("failed to remove blob %s: %w", id, err)
	}
	return indexed, nil
}

// MoveTo copies the blob for id into destDir, checks that the copy has the
// live file's digest, then drops it from the live store. On a copy failure or
// a digest mismatch the copy is removed and the live store is untouched.
func (s *Store) MoveTo(id msgid.ID, destDir string) (WriteResult, error) {
	src := s.Path(id)
	dst := filepath.Join(destDir, id.String())
	res, err := copyBlob(src, dst)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to copy blob %s: %w", id, err)
	}
	want, err := digestFile(src)
	if err != nil {
		_ = os.Remove(dst)
		return WriteResult{}, fmt.Errorf("failed to hash blob %s: %w", id, err)
	}
	if res.Digest != want {
		_ = os.Remove(dst)
		return WriteResult{}, fmt.Errorf("%w: %s copied as %s, live file is %s", ErrDigestMismatch, id, res.Digest, want)
	}
	if _, err := s.Remove(id); err != nil {
		return res, err
	}
	return res, nil
}

// RestoreFrom reverses MoveTo: the copy in srcDir is written back to the live
// store, re-indexed, and removed from srcDir.
func (s *Store) RestoreFrom(id msgid.ID, srcDir string) error {
	src := filepath.Join(srcDir, id.String())
	if _, err := copyFile(src, s.Path(id)); err != nil {
		return fmt.Errorf("failed to restore blob %s: %w", id, err)
	}
	s.Index(id)
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove backup copy after restore", "id", id.String(), "error", err)
	}
	return nil
}

// IDs returns indexed ids in ascending order.
func (s *Store) IDs() []msgid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]msgid.ID, 0, s.index.Len())
	s.index.Ascend(func(id msgid.ID) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Len returns the number of indexed blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len()
}

// Scan lists the ids of regular files in the directory whose names are valid
// ids. Other entries are ignored.
func (s *Store) Scan() ([]msgid.ID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob directory: %w", err)
	}
	var ids []msgid.ID
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		id, err := msgid.Parse(entry.Name())
		if err != nil {
			s.logger.Debug("Ignoring unrecognised file", "name", entry.Name())
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Discover indexes ids found by Scan.
func (s *Store) Discover(ids []msgid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.index.ReplaceOrInsert(id)
	}
}
