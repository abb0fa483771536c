package snapshot

import (
	"errors"
	"time"
)

// Store persists serialized snapshots keyed by run and leg count.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a snapshot taken after the given number of legs.
	// Overwrites if a snapshot for (runID, legs) already exists.
	Save(runID string, legs uint64, data []byte) error

	// Load retrieves the snapshot taken after the given number of legs.
	// Returns ErrNotFound if it doesn't exist.
	Load(runID string, legs uint64) ([]byte, error)

	// LoadLatest retrieves the run's snapshot with the highest leg count.
	// Returns ErrNotFound if the run has no snapshots.
	LoadLatest(runID string) ([]byte, error)

	// List returns all snapshots of a run ordered by leg count.
	// Returns an empty slice (not an error) if the run has none.
	List(runID string) ([]Info, error)

	// Delete removes one snapshot. Returns nil if it doesn't exist.
	Delete(runID string, legs uint64) error

	// DeleteRun removes every snapshot of a run. Returns nil if the run has
	// none.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides snapshot metadata without loading the data.
type Info struct {
	RunID     string
	Legs      uint64
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for snapshot stores.
var (
	// ErrNotFound indicates the requested snapshot doesn't exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("snapshot store closed")
)
