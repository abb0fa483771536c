// Package activator decides which event handlers compete after each event.
//
// The activator is a static graph of taggers. Each tagger owns a fixed pool
// of handler instances, a generator that enumerates in-state identifier sets
// from the current global state, and four tag lists that wire the graph:
// after one of its handlers commits an event, the taggers named in creates
// are asked to arm new handlers, the ones in trashes give up all their
// scheduled candidates, and the ones in activates and deactivates have their
// generators gated on or off. The topology is fixed at setup; only the
// running and not-running pool partitions mutate during a run.
package activator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Generator enumerates the in-state identifier sets a tagger arms handlers
// with. A nil set arms a handler that requests its candidate time without an
// in-state. Enumeration order must be deterministic.
type Generator func(active []*state.Branch) [][]state.ID

// InternalState is a projection of the global state that taggers consult to
// enumerate identifier sets. The activator initializes it once, updates it
// after every committed event, and routes handler lookups to it.
type InternalState interface {
	Initialize(full []*state.Branch) error
	Update(active []*state.Branch) error
	Lookup(internalID int) (state.ID, bool)
}

// Tagger declares one node of the activator graph.
type Tagger struct {
	// Tag names the tagger in the four wiring lists.
	Tag string

	// Pool is the fixed set of handler instances. Its size bounds how many
	// candidates of this tagger can sit in the scheduler at once.
	Pool []handler.EventHandler

	// Generate enumerates the identifier sets to arm handlers with.
	Generate Generator

	Creates     []string
	Trashes     []string
	Activates   []string
	Deactivates []string

	// State is the internal state owned by this tagger, if any. Handlers of
	// the tagger reach it through InternalStateLookup.
	State InternalState
}

// Arm pairs a handler to schedule with the identifier set it requests its
// candidate time from. A nil identifier set means the handler takes no
// in-state.
type Arm struct {
	Handler    handler.EventHandler
	InStateIDs []state.ID
}

// PoolExhaustedError reports a tagger whose not-running pool was empty when
// its generator produced another identifier set. The run cannot continue;
// the tagger needs a larger pool.
type PoolExhaustedError struct {
	Tag string
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("activator: not-running pool of tagger %q is empty, increase its handler count", e.Tag)
}

type taggerState struct {
	def        Tagger
	creates    []*taggerState
	trashes    []*taggerState
	activates  []*taggerState
	deactives  []*taggerState
	running    []handler.EventHandler
	notRunning []handler.EventHandler
	active     bool
}

// Activator owns the tagger graph and the running/not-running partition of
// every pool.
type Activator struct {
	taggers   []*taggerState
	byTag     map[string]*taggerState
	byHandler map[handler.EventHandler]*taggerState
	states    []InternalState

	start       *taggerState
	initialized bool
	started     bool
}

// New validates the tagger graph and resolves its tag references. Exactly
// one handler across all pools must carry the start-of-run marker.
func New(taggers []Tagger) (*Activator, error) {
	if len(taggers) == 0 {
		return nil, fmt.Errorf("activator: at least one tagger is required")
	}
	a := &Activator{
		byTag:     make(map[string]*taggerState, len(taggers)),
		byHandler: make(map[handler.EventHandler]*taggerState),
	}
	seenStates := make(map[InternalState]bool)
	for _, def := range taggers {
		if def.Tag == "" {
			return nil, fmt.Errorf("activator: tagger with empty tag")
		}
		if _, dup := a.byTag[def.Tag]; dup {
			return nil, fmt.Errorf("activator: duplicate tagger tag %q", def.Tag)
		}
		if len(def.Pool) == 0 {
			return nil, fmt.Errorf("activator: tagger %q has an empty handler pool", def.Tag)
		}
		if def.Generate == nil {
			return nil, fmt.Errorf("activator: tagger %q has no generator", def.Tag)
		}
		ts := &taggerState{
			def:        def,
			notRunning: append([]handler.EventHandler(nil), def.Pool...),
			active:     true,
		}
		for _, h := range def.Pool {
			if h == nil {
				return nil, fmt.Errorf("activator: tagger %q has a nil handler in its pool", def.Tag)
			}
			if _, dup := a.byHandler[h]; dup {
				return nil, fmt.Errorf("activator: handler instance appears in more than one pool (tagger %q)", def.Tag)
			}
			a.byHandler[h] = ts
			if _, isStart := h.(handler.StartOfRun); isStart {
				if a.start != nil {
					return nil, fmt.Errorf("activator: more than one start-of-run handler")
				}
				a.start = ts
			}
		}
		if def.State != nil && !seenStates[def.State] {
			seenStates[def.State] = true
			a.states = append(a.states, def.State)
		}
		a.taggers = append(a.taggers, ts)
		a.byTag[def.Tag] = ts
	}
	if a.start == nil {
		return nil, fmt.Errorf("activator: a start-of-run handler is required")
	}

	for _, ts := range a.taggers {
		var err error
		if ts.creates, err = a.resolve(ts, "creates", ts.def.Creates); err != nil {
			return nil, err
		}
		if ts.trashes, err = a.resolve(ts, "trashes", ts.def.Trashes); err != nil {
			return nil, err
		}
		if ts.activates, err = a.resolve(ts, "activates", ts.def.Activates); err != nil {
			return nil, err
		}
		if ts.deactives, err = a.resolve(ts, "deactivates", ts.def.Deactivates); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Activator) resolve(ts *taggerState, list string, tags []string) ([]*taggerState, error) {
	var out []*taggerState
	for _, tag := range tags {
		target, ok := a.byTag[tag]
		if !ok {
			return nil, fmt.Errorf("activator: tag %q in the %s list of tagger %q does not exist", tag, list, ts.def.Tag)
		}
		out = append(out, target)
	}
	return out, nil
}

// Initialize fills every internal state from the full global state. It must
// run once before the first call.
func (a *Activator) Initialize(full []*state.Branch) error {
	for _, s := range a.states {
		if err := s.Initialize(full); err != nil {
			return err
		}
	}
	a.initialized = true
	return nil
}

// FirstCall arms the start-of-run tagger. It is valid exactly once, before
// any event has been committed.
func (a *Activator) FirstCall() ([]Arm, error) {
	if !a.initialized {
		return nil, fmt.Errorf("activator: first call before initialize")
	}
	if a.started {
		return nil, fmt.Errorf("activator: first call after the run has started")
	}
	a.started = true
	a.gate(a.start)
	return a.armCreated([]*taggerState{a.start}, nil)
}

// NextCall arms new handlers after the committed handler's event went into
// the global state. It gates taggers named by the committed handler's
// tagger, updates every internal state with the active global state, and
// then asks each tagger in the creates list for identifier sets.
func (a *Activator) NextCall(active []*state.Branch, committed handler.EventHandler) ([]Arm, error) {
	if !a.started {
		return nil, fmt.Errorf("activator: next call before the first call")
	}
	ts, ok := a.byHandler[committed]
	if !ok {
		return nil, fmt.Errorf("activator: committed handler is not part of any pool")
	}
	a.gate(ts)
	for _, s := range a.states {
		if err := s.Update(active); err != nil {
			return nil, err
		}
	}
	return a.armCreated(ts.creates, active)
}

func (a *Activator) gate(ts *taggerState) {
	for _, t := range ts.activates {
		t.active = true
	}
	for _, t := range ts.deactives {
		t.active = false
	}
}

func (a *Activator) armCreated(created []*taggerState, active []*state.Branch) ([]Arm, error) {
	var arms []Arm
	for _, ct := range created {
		if !ct.active {
			continue
		}
		for _, set := range ct.def.Generate(active) {
			n := len(ct.notRunning)
			if n == 0 {
				return nil, &PoolExhaustedError{Tag: ct.def.Tag}
			}
			h := ct.notRunning[n-1]
			ct.notRunning = ct.notRunning[:n-1]
			ct.running = append(ct.running, h)
			arms = append(arms, Arm{Handler: h, InStateIDs: set})
		}
	}
	return arms, nil
}

// Trashable returns the handlers whose scheduled candidates must go after
// the committed event: the whole running list of every tagger in the
// committed handler's trashes list. The committed handler itself must be
// among them.
func (a *Activator) Trashable(committed handler.EventHandler) ([]handler.EventHandler, error) {
	ts, ok := a.byHandler[committed]
	if !ok {
		return nil, fmt.Errorf("activator: committed handler is not part of any pool")
	}
	var out []handler.EventHandler
	includesCommitted := false
	for _, tt := range ts.trashes {
		for _, h := range tt.running {
			if h == committed {
				includesCommitted = true
			}
			out = append(out, h)
		}
		tt.notRunning = append(tt.notRunning, tt.running...)
		tt.running = nil
	}
	if !includesCommitted {
		return nil, fmt.Errorf("activator: tagger %q does not trash its own committed handler", ts.def.Tag)
	}
	return out, nil
}

// InternalStateLookup routes an internal-state identifier to the global
// state identifier it currently maps to, using the internal state owned by
// the asking handler's tagger.
func (a *Activator) InternalStateLookup(asking handler.EventHandler, internalID int) (state.ID, bool) {
	ts, ok := a.byHandler[asking]
	if !ok || ts.def.State == nil {
		return 0, false
	}
	return ts.def.State.Lookup(internalID)
}

// Handlers returns every pooled handler in deterministic order: taggers in
// declaration order, pools in slot order.
func (a *Activator) Handlers() []handler.EventHandler {
	var out []handler.EventHandler
	for _, ts := range a.taggers {
		out = append(out, ts.def.Pool...)
	}
	return out
}

// HandlerName returns the stable name of a pooled handler instance, composed
// of its tagger tag and pool slot.
func (a *Activator) HandlerName(h handler.EventHandler) (string, bool) {
	ts, ok := a.byHandler[h]
	if !ok {
		return "", false
	}
	for i, ph := range ts.def.Pool {
		if ph == h {
			return ts.def.Tag + "#" + strconv.Itoa(i), true
		}
	}
	return "", false
}

// HandlerByName resolves a name produced by HandlerName.
func (a *Activator) HandlerByName(name string) (handler.EventHandler, bool) {
	tag, slot, ok := strings.Cut(name, "#")
	if !ok {
		return nil, false
	}
	ts, ok := a.byTag[tag]
	if !ok {
		return nil, false
	}
	i, err := strconv.Atoi(slot)
	if err != nil || i < 0 || i >= len(ts.def.Pool) {
		return nil, false
	}
	return ts.def.Pool[i], true
}

// PoolPartition captures the running and not-running pool slots of one
// tagger, in partition order.
type PoolPartition struct {
	Running    []int `json:"running,omitempty"`
	NotRunning []int `json:"not_running,omitempty"`
	Active     bool  `json:"active"`
}

// PoolSnapshot captures every tagger's pool partition and generator gate.
func (a *Activator) PoolSnapshot() map[string]PoolPartition {
	out := make(map[string]PoolPartition, len(a.taggers))
	for _, ts := range a.taggers {
		slot := make(map[handler.EventHandler]int, len(ts.def.Pool))
		for i, h := range ts.def.Pool {
			slot[h] = i
		}
		p := PoolPartition{Active: ts.active}
		for _, h := range ts.running {
			p.Running = append(p.Running, slot[h])
		}
		for _, h := range ts.notRunning {
			p.NotRunning = append(p.NotRunning, slot[h])
		}
		out[ts.def.Tag] = p
	}
	return out
}

// RestorePool re-applies a pool snapshot and marks the run as started. Every
// tagger must be covered and every slot accounted for exactly once.
func (a *Activator) RestorePool(partitions map[string]PoolPartition) error {
	if !a.initialized {
		return fmt.Errorf("activator: restore before initialize")
	}
	for _, ts := range a.taggers {
		p, ok := partitions[ts.def.Tag]
		if !ok {
			return fmt.Errorf("activator: pool snapshot misses tagger %q", ts.def.Tag)
		}
		if len(p.Running)+len(p.NotRunning) != len(ts.def.Pool) {
			return fmt.Errorf("activator: pool snapshot of tagger %q covers %d of %d slots",
				ts.def.Tag, len(p.Running)+len(p.NotRunning), len(ts.def.Pool))
		}
		seen := make(map[int]bool, len(ts.def.Pool))
		pick := func(slots []int) ([]handler.EventHandler, error) {
			var hs []handler.EventHandler
			for _, i := range slots {
				if i < 0 || i >= len(ts.def.Pool) {
					return nil, fmt.Errorf("activator: pool snapshot of tagger %q names slot %d out of %d", ts.def.Tag, i, len(ts.def.Pool))
				}
				if seen[i] {
					return nil, fmt.Errorf("activator: pool snapshot of tagger %q names slot %d twice", ts.def.Tag, i)
				}
				seen[i] = true
				hs = append(hs, ts.def.Pool[i])
			}
			return hs, nil
		}
		running, err := pick(p.Running)
		if err != nil {
			return err
		}
		notRunning, err := pick(p.NotRunning)
		if err != nil {
			return err
		}
		ts.running = running
		ts.notRunning = notRunning
		ts.active = p.Active
	}
	a.started = true
	return nil
}
