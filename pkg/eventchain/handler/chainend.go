package handler

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// PeriodicDirectionSwitch ends one event chain and starts the next: every
// chain-time units it rotates the lifted motion to the next axis, keeping
// the same units lifted.
type PeriodicDirectionSwitch struct {
	box       *geometry.Box
	chainTime float64

	eventTime simtime.Time
}

// NewPeriodicDirectionSwitch returns an end-of-chain handler rotating the
// direction of motion every chainTime time units.
func NewPeriodicDirectionSwitch(box *geometry.Box, chainTime float64) (*PeriodicDirectionSwitch, error) {
	if chainTime <= 0.0 {
		return nil, fmt.Errorf("handler: chain time must be positive, got %v", chainTime)
	}
	return &PeriodicDirectionSwitch{box: box, chainTime: chainTime}, nil
}

// Kind returns the dispatch kind.
func (h *PeriodicDirectionSwitch) Kind() string { return "direction-switch" }

// Arity reports no in-state and one confirm argument set.
func (h *PeriodicDirectionSwitch) Arity() Arity { return Arity{InState: 0, Confirm: 1} }

// RequestTime advances the candidate by one chain time. No supplementary
// identifiers are returned: the lifted units stay the same.
func (h *PeriodicDirectionSwitch) RequestTime(in []*state.Branch) Request {
	h.eventTime = h.eventTime.Add(h.chainTime)
	return Request{Time: h.eventTime}
}

// Confirm time-slices the lifted branches to the chain end and rotates every
// lifted leaf's velocity to the next axis.
func (h *PeriodicDirectionSwitch) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	for _, b := range args {
		b.TimeSlice(h.eventTime, h.box)
		for _, u := range b.Leaves() {
			if !u.Active() {
				continue
			}
			d, speed := axisVelocity(u.Velocity)
			u.Velocity[d] = 0.0
			u.Velocity[(d+1)%h.box.Dimension()] = speed
		}
		refreshAggregates(b)
	}
	return args, true
}

// SnapshotState captures the chain clock.
func (h *PeriodicDirectionSwitch) SnapshotState() ([]byte, error) {
	return json.Marshal(h.eventTime)
}

// RestoreState restores the chain clock.
func (h *PeriodicDirectionSwitch) RestoreState(data []byte) error {
	return json.Unmarshal(data, &h.eventTime)
}

// FinalTimeEndOfRun fires once at the configured end time. Confirm
// time-slices the lifted branches there; the run-termination signal is
// raised by its mediation callback, which also writes the final state to the
// named output when one is configured.
type FinalTimeEndOfRun struct {
	box    *geometry.Box
	end    simtime.Time
	output string
}

// NewFinalTimeEndOfRun returns an end-of-run handler firing at the given
// simulation time. The output name may be empty.
func NewFinalTimeEndOfRun(box *geometry.Box, endTime float64, output string) (*FinalTimeEndOfRun, error) {
	if endTime <= 0.0 || math.IsInf(endTime, 0) {
		return nil, fmt.Errorf("handler: end-of-run time must be positive and finite, got %v", endTime)
	}
	return &FinalTimeEndOfRun{box: box, end: simtime.FromFloat(endTime), output: output}, nil
}

// Kind returns the dispatch kind.
func (h *FinalTimeEndOfRun) Kind() string { return "end-of-run" }

// OutputName returns the output the final state is routed to, if any.
func (h *FinalTimeEndOfRun) OutputName() string { return h.output }

// Arity reports no in-state and one confirm argument set.
func (h *FinalTimeEndOfRun) Arity() Arity { return Arity{InState: 0, Confirm: 1} }

// RequestTime returns the configured end time.
func (h *FinalTimeEndOfRun) RequestTime(in []*state.Branch) Request {
	return Request{Time: h.end}
}

// Confirm time-slices the lifted branches to the end time.
func (h *FinalTimeEndOfRun) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	for _, b := range args {
		b.TimeSlice(h.end, h.box)
	}
	return args, true
}
