package eventchain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avandermeer/eventchain/pkg/eventchain/activator"
	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Stub handlers used across tests. They hold no physics: candidate times are
// scripted or tick at a fixed cadence, and every committed event appends
// "id@time" to a shared log the tests assert against.

// tick is one scripted candidate of a scriptedHandler.
type tick struct {
	at      float64
	confirm bool
}

// scriptedHandler walks a fixed script. RequestTime and ResendTime peek the
// current entry; Confirm consumes it. An exhausted script proposes infinity,
// so the handler never wins again.
type scriptedHandler struct {
	id     string
	kind   string
	script []tick
	next   int
	events *[]string
}

func (h *scriptedHandler) Kind() string {
	if h.kind == "" {
		return "scripted"
	}
	return h.kind
}

func (h *scriptedHandler) Arity() handler.Arity { return handler.Arity{} }

func (h *scriptedHandler) RequestTime(in []*state.Branch) handler.Request {
	return handler.Request{Time: h.peek()}
}

func (h *scriptedHandler) ResendTime() handler.Request {
	return handler.Request{Time: h.peek()}
}

func (h *scriptedHandler) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	if h.next >= len(h.script) {
		panic(h.id + ": script exhausted")
	}
	cur := h.script[h.next]
	h.next++
	if !cur.confirm {
		return nil, false
	}
	*h.events = append(*h.events, fmt.Sprintf("%s@%v", h.id, cur.at))
	return nil, true
}

func (h *scriptedHandler) peek() simtime.Time {
	if h.next >= len(h.script) {
		return simtime.Infinity
	}
	return simtime.FromFloat(h.script[h.next].at)
}

// stubbornHandler rejects its proposal without offering a resend.
type stubbornHandler struct {
	at float64
}

func (h *stubbornHandler) Kind() string        { return "no-resend" }
func (h *stubbornHandler) Arity() handler.Arity { return handler.Arity{} }

func (h *stubbornHandler) RequestTime(in []*state.Branch) handler.Request {
	return handler.Request{Time: simtime.FromFloat(h.at)}
}

func (h *stubbornHandler) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	return nil, false
}

// tickerHandler commits at a fixed cadence forever and carries its clock
// through snapshots.
type tickerHandler struct {
	id     string
	kind   string
	step   float64
	clock  float64
	events *[]string
}

func (h *tickerHandler) Kind() string {
	if h.kind == "" {
		return "ticker"
	}
	return h.kind
}

func (h *tickerHandler) Arity() handler.Arity { return handler.Arity{} }

func (h *tickerHandler) RequestTime(in []*state.Branch) handler.Request {
	h.clock += h.step
	return handler.Request{Time: simtime.FromFloat(h.clock)}
}

func (h *tickerHandler) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	if h.events != nil {
		*h.events = append(*h.events, fmt.Sprintf("%s@%v", h.id, h.clock))
	}
	return nil, true
}

func (h *tickerHandler) SnapshotState() ([]byte, error) { return json.Marshal(h.clock) }

func (h *tickerHandler) RestoreState(data []byte) error { return json.Unmarshal(data, &h.clock) }

// runOpener opens every stub run at time zero.
type runOpener struct {
	events *[]string
}

func (h *runOpener) StartOfRun()            {}
func (h *runOpener) Kind() string           { return "stub-start" }
func (h *runOpener) Arity() handler.Arity   { return handler.Arity{} }

func (h *runOpener) RequestTime(in []*state.Branch) handler.Request {
	return handler.Request{Time: simtime.FromFloat(0)}
}

func (h *runOpener) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	if h.events != nil {
		*h.events = append(*h.events, "start@0")
	}
	return nil, true
}

// runEnder fires once at the given time; its kind is bound to the EndRun
// mediation by newStubMediator.
type runEnder struct {
	at     float64
	events *[]string
}

func (h *runEnder) Kind() string         { return "stub-end" }
func (h *runEnder) Arity() handler.Arity { return handler.Arity{} }

func (h *runEnder) RequestTime(in []*state.Branch) handler.Request {
	return handler.Request{Time: simtime.FromFloat(h.at)}
}

func (h *runEnder) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	if h.events != nil {
		*h.events = append(*h.events, fmt.Sprintf("end@%v", h.at))
	}
	return nil, true
}

// stubTree returns a store with one resting unit, enough for stub runs.
func stubTree() *state.TreeStore {
	tree := state.NewTree()
	tree.AddRoot([]float64{0.5}, nil)
	return tree
}

// nilSets arms n handlers without in-states per wave.
func nilSets(n int) activator.Generator {
	return func([]*state.Branch) [][]state.ID {
		return make([][]state.ID, n)
	}
}

// stubGraph wires the canonical test graph: a start tagger, a self
// re-arming work tagger holding the given handlers, and an end tagger
// firing at end.
func stubGraph(t *testing.T, end float64, events *[]string, work ...handler.EventHandler) *activator.Activator {
	t.Helper()

	startCreates := []string{"end"}
	taggers := []activator.Tagger{
		{
			Tag:      "start",
			Pool:     []handler.EventHandler{&runOpener{events: events}},
			Generate: nilSets(1),
			Trashes:  []string{"start"},
		},
		{
			Tag:      "end",
			Pool:     []handler.EventHandler{&runEnder{at: end, events: events}},
			Generate: nilSets(1),
			Trashes:  []string{"end"},
		},
	}
	if len(work) > 0 {
		startCreates = append(startCreates, "work")
		taggers = append(taggers, activator.Tagger{
			Tag:      "work",
			Pool:     work,
			Generate: nilSets(len(work)),
			Creates:  []string{"work"},
			Trashes:  []string{"work"},
		})
	}
	taggers[0].Creates = startCreates

	act, err := activator.New(taggers)
	require.NoError(t, err)
	return act
}

// newStubMediator wires a mediator over the canonical stub graph and binds
// the end stub's kind to the EndRun mediation.
func newStubMediator(t *testing.T, end float64, events *[]string, work []handler.EventHandler, opts ...Option) *Mediator {
	t.Helper()

	act := stubGraph(t, end, events, work...)
	opts = append(opts, WithDispatch("stub-end", Dispatch{Mediate: EndRun}))
	m, err := New(stubTree(), act, opts...)
	require.NoError(t, err)
	return m
}
