package engine

import (
	"errors"
	"fmt"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
)

var (
	// ErrHalted is returned by every operation after a fatal error.
	ErrHalted = errors.New("engine halted after a fatal storage error")
	// ErrExportInProgress is returned when an export is already running.
	ErrExportInProgress = errors.New("export already in progress")
	// ErrUploadAborted is returned when a blob upload stream fails before it
	// is fully written. The admission is rolled back.
	ErrUploadAborted = errors.New("blob upload aborted")
)

// FatalError reports that the priority index and the durable stores have
// diverged. The process must stop serving requests.
type FatalError struct {
	Op  string
	ID  msgid.ID
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ExportError reports an export that stopped early. Messages counted in
// Exported were fully migrated before the failure.
type ExportError struct {
	Directory string
	Exported  int
	Err       error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s failed after %d messages: %v", e.Directory, e.Exported, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
