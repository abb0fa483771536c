package eventchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/snapshot"
)

// TestSnapshotResumeContinuesRun verifies the round trip at the heart of
// dump-and-resume: a snapshot taken mid-run, restored into a mediator built
// from the same wiring, produces the exact event sequence the original run
// would have produced.
func TestSnapshotResumeContinuesRun(t *testing.T) {
	const end = 6.5

	var eventsA []string
	tickerA := &tickerHandler{id: "T", step: 1.0, events: &eventsA}
	origin := newStubMediator(t, end, &eventsA, []handler.EventHandler{tickerA})

	require.NoError(t, origin.Run(context.Background(), WithMaxLegs(3)))
	snap, err := origin.Snapshot()
	require.NoError(t, err)
	prefix := len(eventsA)

	// The original keeps going; the replica starts from the snapshot.
	require.NoError(t, origin.Run(context.Background()))

	var eventsB []string
	tickerB := &tickerHandler{id: "T", step: 1.0, events: &eventsB}
	replica := newStubMediator(t, end, &eventsB, []handler.EventHandler{tickerB})
	require.NoError(t, replica.RestoreSnapshot(snap))

	assert.Equal(t, origin.RunID(), replica.RunID())
	assert.Equal(t, snap.Legs, replica.Legs())
	assert.Equal(t, snap.Time, replica.EventTime())

	require.NoError(t, replica.Run(context.Background()))

	assert.Equal(t, eventsA[prefix:], eventsB)
	assert.Equal(t, origin.Legs(), replica.Legs())
	assert.Equal(t, origin.EventTime(), replica.EventTime())
}

// TestSnapshotCarriesHandlerState verifies handler internal state rides the
// snapshot: the restored ticker resumes its clock instead of restarting.
func TestSnapshotCarriesHandlerState(t *testing.T) {
	var events []string
	ticker := &tickerHandler{id: "T", step: 1.0, events: &events}
	m := newStubMediator(t, 100.0, &events, []handler.EventHandler{ticker})
	require.NoError(t, m.Run(context.Background(), WithMaxLegs(4)))

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.Contains(t, snap.Handlers, "work#0")

	var fresh []string
	restored := &tickerHandler{id: "T", step: 1.0, events: &fresh}
	m2 := newStubMediator(t, 100.0, &fresh, []handler.EventHandler{restored})
	require.NoError(t, m2.RestoreSnapshot(snap))

	assert.Equal(t, ticker.clock, restored.clock)
}

func TestSnapshotBeforeFirstCommit(t *testing.T) {
	var events []string
	m := newStubMediator(t, 1.0, &events, nil)

	_, err := m.Snapshot()
	var serr *SnapshotError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "capture", serr.Op)
}

func TestRestoreRejectsUnknownHandler(t *testing.T) {
	var events []string
	m := newStubMediator(t, 2.0, &events, nil)
	require.NoError(t, m.Run(context.Background(), WithMaxLegs(1)))
	snap, err := m.Snapshot()
	require.NoError(t, err)

	snap.Committed = "bogus#0"
	var fresh []string
	m2 := newStubMediator(t, 2.0, &fresh, nil)
	var serr *SnapshotError
	require.ErrorAs(t, m2.RestoreSnapshot(snap), &serr)
	assert.Equal(t, "restore", serr.Op)
}

func TestRestoreRejectsNilSnapshot(t *testing.T) {
	var events []string
	m := newStubMediator(t, 1.0, &events, nil)
	var serr *SnapshotError
	assert.ErrorAs(t, m.RestoreSnapshot(nil), &serr)
}

func TestWriteSnapshotRequiresStore(t *testing.T) {
	var events []string
	m := newStubMediator(t, 1.0, &events, nil)
	var cerr *ConfigurationError
	require.ErrorAs(t, m.WriteSnapshot(context.Background()), &cerr)
	assert.Equal(t, "snapshot", cerr.Component)
}

// TestWriteSnapshotPersists verifies an explicit snapshot write lands in the
// configured store and decodes back to the run's position.
func TestWriteSnapshotPersists(t *testing.T) {
	store := snapshot.NewMemoryStore()
	var events []string
	ticker := &tickerHandler{id: "T", step: 1.0, events: &events}
	m := newStubMediator(t, 100.0, &events, []handler.EventHandler{ticker},
		WithSnapshots(store, 0))

	require.NoError(t, m.Run(context.Background(), WithMaxLegs(2)))
	require.NoError(t, m.WriteSnapshot(context.Background()))

	data, err := store.LoadLatest(m.RunID())
	require.NoError(t, err)
	snap, err := snapshot.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Legs)
	assert.Equal(t, m.RunID(), snap.RunID)
}

// TestPeriodicSnapshots verifies the leg loop writes a snapshot every
// configured interval on its own.
func TestPeriodicSnapshots(t *testing.T) {
	store := snapshot.NewMemoryStore()
	var events []string
	ticker := &tickerHandler{id: "T", step: 1.0, events: &events}
	m := newStubMediator(t, 100.0, &events, []handler.EventHandler{ticker},
		WithSnapshots(store, 2))

	require.NoError(t, m.Run(context.Background(), WithMaxLegs(5)))

	infos, err := store.List(m.RunID())
	require.NoError(t, err)
	require.Len(t, infos, 2, "legs 2 and 4")
}
