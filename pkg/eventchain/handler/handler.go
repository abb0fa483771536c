// Package handler defines the two-phase event-handler protocol and ships the
// reference handlers of the kernel.
//
// An event handler computes candidate events for one factor of the system.
// The mediator first asks for a candidate time (RequestTime), schedules it,
// and only when the event wins the race asks for the out-state (Confirm).
// Handlers that work with a bounding rate may refuse to confirm; they then
// implement Resender and produce a strictly later candidate from their stored
// in-state. All physics lives in injected rate callbacks, never in the
// kernel.
package handler

import (
	"fmt"

	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Arity describes how much state a handler exchanges with the mediator.
// InState is the number of in-state identifier sets RequestTime consumes
// (0 or 1); Confirm is the number of branch sets passed to Confirm.
type Arity struct {
	InState int
	Confirm int
}

// Request is the result of a candidate-time request. Aux carries
// supplementary objects (typically state identifiers) that the mediator's
// argument construction turns into Confirm arguments.
type Request struct {
	Time simtime.Time
	Aux  []any
}

// EventHandler is the protocol every handler implements. Instances are
// created once at setup and reused for the whole run; whatever they store
// between RequestTime and Confirm is theirs to keep.
type EventHandler interface {
	Arity() Arity

	// RequestTime computes the candidate event time. in is nil for handlers
	// with InState arity 0; otherwise it is the extracted in-state, owned by
	// the handler until the next request.
	RequestTime(in []*state.Branch) Request

	// Confirm computes the out-state once the candidate won the race. The
	// returned branches carry the changed parts of the global state;
	// confirmed is false when a bounding-rate handler rejects the proposal.
	Confirm(args []*state.Branch) (out []*state.Branch, confirmed bool)
}

// Resender is implemented by handlers that may return unconfirmed events.
// ResendTime recomputes a candidate from the internally stored in-state and
// must never return a time before the rejected one.
type Resender interface {
	EventHandler
	ResendTime() Request
}

// Snapshotter is implemented by handlers whose internal state must survive a
// dump-and-resume cycle.
type Snapshotter interface {
	SnapshotState() ([]byte, error)
	RestoreState(data []byte) error
}

// StartOfRun marks the single handler that opens a run. The activator
// demands exactly one such handler across all taggers.
type StartOfRun interface {
	EventHandler
	StartOfRun()
}

// Kinder is implemented by handlers that declare a dispatch kind. Handlers
// of the same kind share the mediator's argument construction and mediation
// callbacks.
type Kinder interface {
	Kind() string
}

// OutputNamer is implemented by handlers whose mediation callback writes to a
// named output. An empty name means the handler writes nothing.
type OutputNamer interface {
	OutputName() string
}

// Kind returns the dispatch kind of a handler: its declared kind when it
// implements Kinder, otherwise its Go type.
func Kind(h EventHandler) string {
	if k, ok := h.(Kinder); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", h)
}
