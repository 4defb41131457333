package availcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured reports a missing required dependency. It signals a
	// deployment defect and is never converted into a fallback result.
	ErrNotConfigured = errors.New("availcache: not configured")

	// ErrNoData is delivered to every requester of a batch whose resolution failed.
	ErrNoData = errors.New("availcache: no data")

	ErrClosed = errors.New("availcache: coordinator closed")

	// ErrSaveRejected means the backend declined the write (admission
	// policy, memory pressure). Nothing was stored.
	ErrSaveRejected = errors.New("availcache: save rejected by backend")
)

// PersistError reports that an entry was resolved but could not be written.
// The resolved entry is still returned alongside it.
type PersistError struct {
	EntityID string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("availcache: persist %q: %v", e.EntityID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// ProviderError is a transient provider failure: a returned error, a timeout
// or an open circuit. It is logged and the waterfall moves on.
type ProviderError struct {
	Provider string
	Batch    bool
	Err      error
}

func (e *ProviderError) Error() string {
	op := "lookup"
	if e.Batch {
		op = "batch lookup"
	}
	return fmt.Sprintf("availcache: provider %s %s: %v", e.Provider, op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
