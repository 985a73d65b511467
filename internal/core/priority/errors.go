package priority

import "errors"

var (
	// ErrExceedsStoreMax is returned when a single message is larger than the store budget.
	ErrExceedsStoreMax = errors.New("message exceeds store max byte size")
	// ErrExceedsGroupMax is returned when a single message is larger than its group budget.
	ErrExceedsGroupMax = errors.New("message exceeds group max byte size")
	// ErrLacksPriority is returned when the store is full and nothing of equal or lower
	// priority can be evicted to make room.
	ErrLacksPriority = errors.New("message lacks priority to evict enough data")
	// ErrNotFound is returned by Forget for unknown ids.
	ErrNotFound = errors.New("message not found")
)

// IsConflict reports whether err is an admission conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrExceedsStoreMax) ||
		errors.Is(err, ErrExceedsGroupMax) ||
		errors.Is(err, ErrLacksPriority)
}

// Code returns the client error code for an admission conflict, or "" for
// any other error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrExceedsStoreMax):
		return "EXCEEDS_STORE_MAX"
	case errors.Is(err, ErrExceedsGroupMax):
		return "EXCEEDS_GROUP_MAX"
	case errors.Is(err, ErrLacksPriority):
		return "LACKS_PRIORITY"
	}
	return ""
}
