// Package snapshot provides the persisted image of a run and the stores that
// keep it for dump-and-resume.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/avandermeer/eventchain/pkg/eventchain/activator"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Version is the current snapshot format version.
// Increment when making breaking changes to the snapshot structure.
const Version = 1

// Entry is one scheduled candidate: the pooled handler's stable name and its
// candidate event time.
type Entry struct {
	Handler string       `json:"handler"`
	Time    simtime.Time `json:"time"`
}

// Snapshot is everything a run needs to continue from where it was dumped:
// the raw configuration the run was built from, the full global state, the
// random generator state, the scheduled candidates, the activator's pool
// partitions, and the internal state of every handler that carries some.
// Committed names the handler whose event was processed last; a resumed run
// re-arms from it exactly like an uninterrupted one.
type Snapshot struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Legs      uint64    `json:"legs"`
	Timestamp time.Time `json:"timestamp"`

	Config    []byte                             `json:"config,omitempty"`
	Committed string                             `json:"committed"`
	Time      simtime.Time                       `json:"time"`
	State     []*state.Branch                    `json:"state"`
	RNG       []byte                             `json:"rng"`
	Schedule  []Entry                            `json:"schedule"`
	Pools     map[string]activator.PoolPartition `json:"pools"`
	Handlers  map[string]json.RawMessage         `json:"handlers,omitempty"`
}

// New creates an empty snapshot stamped with the current time.
func New(runID string, legs uint64) *Snapshot {
	return &Snapshot{
		Version:   Version,
		RunID:     runID,
		Legs:      legs,
		Timestamp: time.Now().UTC(),
	}
}

// Marshal serializes the snapshot to JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes a snapshot and rejects unknown format versions.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version != Version {
		return nil, fmt.Errorf("snapshot: format version %d, this build reads %d", s.Version, Version)
	}
	return &s, nil
}
