package handler

import (
	"fmt"

	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// ChainStart opens a run. It schedules time zero and returns the configured
// identifier as a supplementary object; the mediator extracts that unit's
// branch and passes it to Confirm, which lifts every leaf along the initial
// axis.
type ChainStart struct {
	velocity []float64
	initial  state.ID
}

// NewChainStart validates the initial direction against the box dimension
// and builds the initial velocity vector.
func NewChainStart(box *geometry.Box, direction int, speed float64, initial state.ID) (*ChainStart, error) {
	if direction < 0 || direction >= box.Dimension() {
		return nil, fmt.Errorf("handler: initial direction %d outside box dimension %d", direction, box.Dimension())
	}
	if speed <= 0.0 {
		return nil, fmt.Errorf("handler: initial speed must be positive, got %v", speed)
	}
	v := make([]float64, box.Dimension())
	v[direction] = speed
	return &ChainStart{velocity: v, initial: initial}, nil
}

// StartOfRun marks this handler as the one that opens a run.
func (h *ChainStart) StartOfRun() {}

// Kind returns the dispatch kind.
func (h *ChainStart) Kind() string { return "chain-start" }

// Arity reports no in-state and one confirm argument set.
func (h *ChainStart) Arity() Arity { return Arity{InState: 0, Confirm: 1} }

// RequestTime returns time zero and the initially lifted identifier.
func (h *ChainStart) RequestTime(in []*state.Branch) Request {
	return Request{Time: simtime.FromFloat(0.0), Aux: []any{h.initial}}
}

// Confirm lifts every leaf of the received branch along the initial axis at
// time zero.
func (h *ChainStart) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	for _, b := range args {
		for _, u := range b.Leaves() {
			if u.Active() {
				panic(fmt.Sprintf("handler: initially lifted unit %d is already in motion", u.ID))
			}
			u.Velocity = append([]float64(nil), h.velocity...)
			u.TimeStamp = simtime.Time{}
		}
		refreshAggregates(b)
	}
	return args, true
}
