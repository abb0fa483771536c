package activator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

type stubHandler struct{ name string }

func (h *stubHandler) Arity() handler.Arity                    { return handler.Arity{} }
func (h *stubHandler) RequestTime([]*state.Branch) handler.Request { return handler.Request{} }
func (h *stubHandler) Confirm([]*state.Branch) ([]*state.Branch, bool) {
	return nil, true
}

type stubStart struct{ stubHandler }

func (h *stubStart) StartOfRun() {}

type recordingState struct {
	initialized int
	updates     [][]*state.Branch
	lookup      map[int]state.ID
}

func (s *recordingState) Initialize([]*state.Branch) error { s.initialized++; return nil }
func (s *recordingState) Update(active []*state.Branch) error {
	s.updates = append(s.updates, active)
	return nil
}
func (s *recordingState) Lookup(internalID int) (state.ID, bool) {
	id, ok := s.lookup[internalID]
	return id, ok
}

func fixedSets(sets ...[]state.ID) Generator {
	return func([]*state.Branch) [][]state.ID { return sets }
}

func TestNewValidation(t *testing.T) {
	start := &stubStart{stubHandler{name: "start"}}
	plain := &stubHandler{name: "plain"}
	gen := NoInState()
	cases := []struct {
		name    string
		taggers []Tagger
		wantErr string
	}{
		{"no taggers", nil, "at least one tagger"},
		{"empty tag", []Tagger{
			{Pool: []handler.EventHandler{start}, Generate: gen},
		}, "empty tag"},
		{"duplicate tag", []Tagger{
			{Tag: "a", Pool: []handler.EventHandler{start}, Generate: gen},
			{Tag: "a", Pool: []handler.EventHandler{plain}, Generate: gen},
		}, "duplicate tagger tag"},
		{"empty pool", []Tagger{
			{Tag: "a", Generate: gen},
		}, "empty handler pool"},
		{"nil generator", []Tagger{
			{Tag: "a", Pool: []handler.EventHandler{start}},
		}, "no generator"},
		{"nil handler", []Tagger{
			{Tag: "a", Pool: []handler.EventHandler{nil}, Generate: gen},
		}, "nil handler"},
		{"shared handler instance", []Tagger{
			{Tag: "a", Pool: []handler.EventHandler{start}, Generate: gen},
			{Tag: "b", Pool: []handler.EventHandler{start}, Generate: gen},
		}, "more than one pool"},
		{"unknown creates tag", []Tagger{
			{Tag: "a", Pool: []handler.EventHandler{start}, Generate: gen, Creates: []string{"ghost"}},
		}, `tag "ghost" in the creates list`},
		{"unknown trashes tag", []Tagger{
			{Tag: "a", Pool: []handler.EventHandler{start}, Generate: gen, Trashes: []string{"ghost"}},
		}, `tag "ghost" in the trashes list`},
		{"no start handler", []Tagger{
			{Tag: "a", Pool: []handler.EventHandler{plain}, Generate: gen},
		}, "start-of-run handler is required"},
		{"two start handlers", []Tagger{
			{Tag: "a", Pool: []handler.EventHandler{start, &stubStart{}}, Generate: gen},
		}, "more than one start-of-run"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.taggers)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	_, err := New([]Tagger{{Tag: "a", Pool: []handler.EventHandler{start}, Generate: gen}})
	require.NoError(t, err)
}

// chainGraph wires the canonical three-tagger layout: a start tagger that
// creates the chain and the sampler, a chain tagger with a pool of two that
// re-creates itself, and a one-handler sampler tagger.
func chainGraph() (a *Activator, start *stubStart, c1, c2, s1 *stubHandler, rs *recordingState, err error) {
	start = &stubStart{stubHandler{name: "start"}}
	c1 = &stubHandler{name: "c1"}
	c2 = &stubHandler{name: "c2"}
	s1 = &stubHandler{name: "s1"}
	rs = &recordingState{lookup: map[int]state.ID{3: 7}}
	a, err = New([]Tagger{
		{
			Tag:      "start",
			Pool:     []handler.EventHandler{start},
			Generate: NoInState(),
			Creates:  []string{"chain", "sampler"},
			Trashes:  []string{"start"},
		},
		{
			Tag:      "chain",
			Pool:     []handler.EventHandler{c1, c2},
			Generate: fixedSets([]state.ID{1}, []state.ID{2}),
			Creates:  []string{"chain"},
			Trashes:  []string{"chain"},
			State:    rs,
		},
		{
			Tag:      "sampler",
			Pool:     []handler.EventHandler{s1},
			Generate: NoInState(),
			Creates:  []string{"sampler"},
			Trashes:  []string{"sampler"},
		},
	})
	return
}

func TestFirstCallArmsStartTagger(t *testing.T) {
	a, start, _, _, _, rs, err := chainGraph()
	require.NoError(t, err)

	_, err = a.FirstCall()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before initialize")

	require.NoError(t, a.Initialize(nil))
	assert.Equal(t, 1, rs.initialized)

	arms, err := a.FirstCall()
	require.NoError(t, err)
	require.Len(t, arms, 1)
	assert.Same(t, start, arms[0].Handler)
	assert.Nil(t, arms[0].InStateIDs)

	_, err = a.FirstCall()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after the run has started")
}

func TestNextCallArmsCreatedTaggers(t *testing.T) {
	a, start, c1, c2, s1, rs, err := chainGraph()
	require.NoError(t, err)

	_, err = a.NextCall(nil, start)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before the first call")

	require.NoError(t, a.Initialize(nil))
	_, err = a.FirstCall()
	require.NoError(t, err)

	active := []*state.Branch{{Unit: state.Unit{ID: 9, Velocity: []float64{1.0}}}}
	arms, err := a.NextCall(active, start)
	require.NoError(t, err)

	// Pool pops are LIFO, so the chain tagger hands out the last slot first.
	require.Len(t, arms, 3)
	assert.Same(t, c2, arms[0].Handler)
	assert.Equal(t, []state.ID{1}, arms[0].InStateIDs)
	assert.Same(t, c1, arms[1].Handler)
	assert.Equal(t, []state.ID{2}, arms[1].InStateIDs)
	assert.Same(t, s1, arms[2].Handler)
	assert.Nil(t, arms[2].InStateIDs)

	require.Len(t, rs.updates, 1)
	assert.Equal(t, active, rs.updates[0])

	_, err = a.NextCall(active, &stubHandler{name: "stray"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not part of any pool")
}

func TestNextCallPoolExhausted(t *testing.T) {
	start := &stubStart{stubHandler{name: "start"}}
	p1 := &stubHandler{name: "p1"}
	a, err := New([]Tagger{
		{Tag: "start", Pool: []handler.EventHandler{start}, Generate: NoInState(), Creates: []string{"pair"}},
		{Tag: "pair", Pool: []handler.EventHandler{p1}, Generate: fixedSets([]state.ID{1}, []state.ID{2})},
	})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(nil))
	_, err = a.FirstCall()
	require.NoError(t, err)

	_, err = a.NextCall(nil, start)
	require.Error(t, err)
	var pe *PoolExhaustedError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "pair", pe.Tag)
	assert.Contains(t, err.Error(), "increase its handler count")
}

func TestTrashableReturnsRunningHandlers(t *testing.T) {
	a, start, c1, c2, _, _, err := chainGraph()
	require.NoError(t, err)
	require.NoError(t, a.Initialize(nil))
	_, err = a.FirstCall()
	require.NoError(t, err)
	_, err = a.NextCall(nil, start)
	require.NoError(t, err)

	// Both chain slots run; committing c2 trashes the whole chain pool.
	trashed, err := a.Trashable(c2)
	require.NoError(t, err)
	require.Len(t, trashed, 2)
	assert.Same(t, c2, trashed[0])
	assert.Same(t, c1, trashed[1])

	// The slots went back not-running in trash order, so the next arms pop
	// c1 first.
	arms, err := a.NextCall(nil, c2)
	require.NoError(t, err)
	require.Len(t, arms, 2)
	assert.Same(t, c1, arms[0].Handler)
	assert.Same(t, c2, arms[1].Handler)

	_, err = a.Trashable(&stubHandler{name: "stray"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not part of any pool")
}

func TestTrashableMustCoverCommitted(t *testing.T) {
	start := &stubStart{stubHandler{name: "start"}}
	lone := &stubHandler{name: "lone"}
	a, err := New([]Tagger{
		{Tag: "start", Pool: []handler.EventHandler{start}, Generate: NoInState()},
		{Tag: "lone", Pool: []handler.EventHandler{lone}, Generate: NoInState()},
	})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(nil))
	_, err = a.FirstCall()
	require.NoError(t, err)

	_, err = a.Trashable(lone)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not trash its own committed handler")
}

func TestActivateDeactivateGate(t *testing.T) {
	start := &stubStart{stubHandler{name: "start"}}
	sw := &stubHandler{name: "switch"}
	re := &stubHandler{name: "restore"}
	s1 := &stubHandler{name: "s1"}
	a, err := New([]Tagger{
		{Tag: "start", Pool: []handler.EventHandler{start}, Generate: NoInState()},
		{Tag: "switch", Pool: []handler.EventHandler{sw}, Generate: NoInState(),
			Creates: []string{"sampler"}, Deactivates: []string{"sampler"}},
		{Tag: "restore", Pool: []handler.EventHandler{re}, Generate: NoInState(),
			Creates: []string{"sampler"}, Activates: []string{"sampler"}},
		{Tag: "sampler", Pool: []handler.EventHandler{s1}, Generate: NoInState()},
	})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(nil))
	_, err = a.FirstCall()
	require.NoError(t, err)

	// The switch gates the sampler off before its creates list is walked, so
	// the sampler's generator yields nothing.
	arms, err := a.NextCall(nil, sw)
	require.NoError(t, err)
	assert.Empty(t, arms)

	arms, err = a.NextCall(nil, re)
	require.NoError(t, err)
	require.Len(t, arms, 1)
	assert.Same(t, s1, arms[0].Handler)
}

func TestInternalStateLookup(t *testing.T) {
	a, _, c1, _, s1, _, err := chainGraph()
	require.NoError(t, err)

	id, ok := a.InternalStateLookup(c1, 3)
	require.True(t, ok)
	assert.Equal(t, state.ID(7), id)

	_, ok = a.InternalStateLookup(c1, 4)
	assert.False(t, ok)

	_, ok = a.InternalStateLookup(s1, 3)
	assert.False(t, ok, "sampler tagger owns no internal state")

	_, ok = a.InternalStateLookup(&stubHandler{name: "stray"}, 3)
	assert.False(t, ok)
}

func TestHandlerNames(t *testing.T) {
	a, start, c1, c2, _, _, err := chainGraph()
	require.NoError(t, err)

	name, ok := a.HandlerName(c2)
	require.True(t, ok)
	assert.Equal(t, "chain#1", name)

	h, ok := a.HandlerByName("chain#1")
	require.True(t, ok)
	assert.Same(t, c2, h)

	h, ok = a.HandlerByName("chain#0")
	require.True(t, ok)
	assert.Same(t, c1, h)

	handlers := a.Handlers()
	require.Len(t, handlers, 4)
	assert.Same(t, start, handlers[0])

	_, ok = a.HandlerName(&stubHandler{name: "stray"})
	assert.False(t, ok)
	for _, name := range []string{"chain#9", "chain#-1", "ghost#0", "chain"} {
		_, ok = a.HandlerByName(name)
		assert.False(t, ok, "name %q", name)
	}
}

func TestPoolSnapshotRestore(t *testing.T) {
	a, start, _, _, _, _, err := chainGraph()
	require.NoError(t, err)
	require.NoError(t, a.Initialize(nil))
	_, err = a.FirstCall()
	require.NoError(t, err)
	_, err = a.NextCall(nil, start)
	require.NoError(t, err)

	snap := a.PoolSnapshot()
	assert.Equal(t, []int{0}, snap["start"].Running)
	assert.Equal(t, []int{1, 0}, snap["chain"].Running, "running keeps pop order")
	assert.True(t, snap["chain"].Active)

	// A fresh activator over the same pools replays the partition.
	b, _, _, _, _, _, err := chainGraph()
	require.NoError(t, err)
	err = b.RestorePool(snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore before initialize")

	require.NoError(t, b.Initialize(nil))
	require.NoError(t, b.RestorePool(snap))

	_, err = b.FirstCall()
	require.Error(t, err, "a restored activator is already started")

	// The chainGraph call above made fresh handler instances, so resolve the
	// restored ones by name before trashing.
	bc2, ok := b.HandlerByName("chain#1")
	require.True(t, ok)
	trashed, err := b.Trashable(bc2)
	require.NoError(t, err)
	require.Len(t, trashed, 2)
	bName, ok := b.HandlerName(trashed[1])
	require.True(t, ok)
	assert.Equal(t, "chain#0", bName)

	cases := []struct {
		name    string
		mutate  func(map[string]PoolPartition)
		wantErr string
	}{
		{"missing tagger", func(p map[string]PoolPartition) {
			delete(p, "sampler")
		}, "misses tagger"},
		{"slot count mismatch", func(p map[string]PoolPartition) {
			p["chain"] = PoolPartition{Running: []int{0}, Active: true}
		}, "covers 1 of 2 slots"},
		{"slot out of range", func(p map[string]PoolPartition) {
			p["chain"] = PoolPartition{Running: []int{5}, NotRunning: []int{0}, Active: true}
		}, "slot 5 out of"},
		{"slot named twice", func(p map[string]PoolPartition) {
			p["chain"] = PoolPartition{Running: []int{0, 0}, Active: true}
		}, "names slot 0 twice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fresh, _, _, _, _, _, err := chainGraph()
			require.NoError(t, err)
			require.NoError(t, fresh.Initialize(nil))
			bad := a.PoolSnapshot()
			tc.mutate(bad)
			err = fresh.RestorePool(bad)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
