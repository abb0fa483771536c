package eventchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/observability"
	"github.com/avandermeer/eventchain/pkg/eventchain/scheduler"
	"github.com/avandermeer/eventchain/pkg/eventchain/snapshot"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Snapshot captures the whole run between two legs: the full global state,
// the scheduled candidates, the activator's pool partitions, the internal
// state of every handler that carries some, the random generator state, and
// the name of the last committed handler. Restoring it into a mediator built
// from the same configuration continues the run event for event.
func (m *Mediator) Snapshot() (*snapshot.Snapshot, error) {
	if !m.primed || m.committed == nil {
		return nil, &SnapshotError{Op: "capture", Err: errors.New("no committed event yet")}
	}
	committedName, ok := m.act.HandlerName(m.committed)
	if !ok {
		return nil, &SnapshotError{Op: "capture", Err: errors.New("committed handler is not part of any pool")}
	}

	snap := snapshot.New(m.runID, m.legs)
	snap.Config = m.rawConfig
	snap.Committed = committedName
	snap.Time = m.eventTime

	full := m.store.Full()
	snap.State = make([]*state.Branch, 0, len(full))
	for _, b := range full {
		snap.State = append(snap.State, b.Copy())
	}

	rngState, err := m.src.MarshalBinary()
	if err != nil {
		return nil, &SnapshotError{Op: "capture", Err: err}
	}
	snap.RNG = rngState

	for _, e := range m.queue.Snapshot() {
		name, ok := m.act.HandlerName(e.Handle)
		if !ok {
			return nil, &SnapshotError{Op: "capture", Err: errors.New("scheduled handler is not part of any pool")}
		}
		snap.Schedule = append(snap.Schedule, snapshot.Entry{Handler: name, Time: e.Time})
	}
	snap.Pools = m.act.PoolSnapshot()

	snap.Handlers = make(map[string]json.RawMessage)
	for _, h := range m.act.Handlers() {
		s, ok := h.(handler.Snapshotter)
		if !ok {
			continue
		}
		name, _ := m.act.HandlerName(h)
		data, err := s.SnapshotState()
		if err != nil {
			return nil, &SnapshotError{Op: "capture", Err: fmt.Errorf("handler %s: %w", name, err)}
		}
		snap.Handlers[name] = data
	}
	return snap, nil
}

// RestoreSnapshot rewinds the mediator to a captured snapshot and re-opens
// every dumped output for appending. The mediator must be built from the
// same configuration that produced the snapshot; pooled handler names
// resolve against the current activator.
func (m *Mediator) RestoreSnapshot(snap *snapshot.Snapshot) error {
	if snap == nil {
		return &SnapshotError{Op: "restore", Err: errors.New("nil snapshot")}
	}
	if snap.Committed == "" {
		return &SnapshotError{Op: "restore", Err: errors.New("snapshot carries no committed handler")}
	}
	committed, ok := m.act.HandlerByName(snap.Committed)
	if !ok {
		return &SnapshotError{Op: "restore", Err: fmt.Errorf("committed handler %q is not part of any pool", snap.Committed)}
	}

	if err := m.store.Commit(snap.State); err != nil {
		return &SnapshotError{Op: "restore", Err: err}
	}
	if err := m.src.UnmarshalBinary(snap.RNG); err != nil {
		return &SnapshotError{Op: "restore", Err: err}
	}
	if err := m.act.RestorePool(snap.Pools); err != nil {
		return &SnapshotError{Op: "restore", Err: err}
	}

	for name, data := range snap.Handlers {
		h, ok := m.act.HandlerByName(name)
		if !ok {
			return &SnapshotError{Op: "restore", Err: fmt.Errorf("handler %q is not part of any pool", name)}
		}
		s, ok := h.(handler.Snapshotter)
		if !ok {
			return &SnapshotError{Op: "restore", Err: fmt.Errorf("handler %q carries no restorable state", name)}
		}
		if err := s.RestoreState(data); err != nil {
			return &SnapshotError{Op: "restore", Err: fmt.Errorf("handler %q: %w", name, err)}
		}
	}

	entries := make([]scheduler.Entry[handler.EventHandler], len(snap.Schedule))
	for i, e := range snap.Schedule {
		h, ok := m.act.HandlerByName(e.Handler)
		if !ok {
			return &SnapshotError{Op: "restore", Err: fmt.Errorf("scheduled handler %q is not part of any pool", e.Handler)}
		}
		entries[i] = scheduler.Entry[handler.EventHandler]{Time: e.Time, Seq: uint64(i + 1), Handle: h}
	}
	if err := m.queue.Restore(entries); err != nil {
		return &SchedulerError{Op: "restore", Err: err}
	}

	if err := m.outputs.Restore(); err != nil {
		return &SnapshotError{Op: "restore", Err: err}
	}

	if snap.RunID != "" {
		m.runID = snap.RunID
	}
	if len(snap.Config) > 0 {
		m.rawConfig = snap.Config
	}
	m.legs = snap.Legs
	m.eventTime = snap.Time
	m.committed = committed
	m.aux = make(map[handler.EventHandler][]any)
	m.primed = true
	return nil
}

// WriteSnapshot captures a snapshot, persists it to the configured store
// under the run identifier and leg count, and dumps every output so partial
// sampling survives a resume.
func (m *Mediator) WriteSnapshot(ctx context.Context) error {
	if m.snapStore == nil {
		return &ConfigurationError{Component: "snapshot", Reason: "no snapshot store configured"}
	}
	snap, err := m.Snapshot()
	if err != nil {
		return err
	}
	data, err := snap.Marshal()
	if err != nil {
		return &SnapshotError{Op: "marshal", Err: err}
	}
	if err := m.snapStore.Save(m.runID, m.legs, data); err != nil {
		return &SnapshotError{Op: "save", Err: err}
	}
	if err := m.outputs.Dump(); err != nil {
		return &SnapshotError{Op: "save", Err: err}
	}
	observability.LogSnapshot(m.logger, m.runID, m.legs, len(data))
	m.metrics.RecordSnapshot(ctx, int64(len(data)))
	return nil
}
