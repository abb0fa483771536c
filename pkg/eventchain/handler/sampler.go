package handler

import (
	"encoding/json"
	"fmt"

	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// FixedIntervalSampler fires at a fixed simulation-time cadence. Confirm
// time-slices the lifted branches to the sampling time so the committed
// state is exact there; the actual sampling is a mediation side effect that
// writes the full state to the named output handler.
type FixedIntervalSampler struct {
	box      *geometry.Box
	interval float64
	output   string

	eventTime simtime.Time
}

// NewFixedIntervalSampler returns a sampler writing to the named output
// handler every interval time units.
func NewFixedIntervalSampler(box *geometry.Box, interval float64, output string) (*FixedIntervalSampler, error) {
	if interval <= 0.0 {
		return nil, fmt.Errorf("handler: sampling interval must be positive, got %v", interval)
	}
	return &FixedIntervalSampler{box: box, interval: interval, output: output}, nil
}

// Kind returns the dispatch kind.
func (h *FixedIntervalSampler) Kind() string { return "interval-sampler" }

// OutputName returns the output handler samples are routed to.
func (h *FixedIntervalSampler) OutputName() string { return h.output }

// Arity reports no in-state and one confirm argument set.
func (h *FixedIntervalSampler) Arity() Arity { return Arity{InState: 0, Confirm: 1} }

// RequestTime advances the candidate by one sampling interval.
func (h *FixedIntervalSampler) RequestTime(in []*state.Branch) Request {
	h.eventTime = h.eventTime.Add(h.interval)
	return Request{Time: h.eventTime}
}

// Confirm time-slices the lifted branches to the sampling time and returns
// them otherwise unchanged.
func (h *FixedIntervalSampler) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	for _, b := range args {
		b.TimeSlice(h.eventTime, h.box)
	}
	return args, true
}

// SnapshotState captures the sampling clock.
func (h *FixedIntervalSampler) SnapshotState() ([]byte, error) {
	return json.Marshal(h.eventTime)
}

// RestoreState restores the sampling clock.
func (h *FixedIntervalSampler) RestoreState(data []byte) error {
	return json.Unmarshal(data, &h.eventTime)
}

// SnapshotDump fires at a fixed cadence with an empty out-state; dumping the
// full run snapshot is a mediation side effect.
type SnapshotDump struct {
	interval  float64
	eventTime simtime.Time
}

// NewSnapshotDump returns a dumping handler firing every interval time
// units.
func NewSnapshotDump(interval float64) (*SnapshotDump, error) {
	if interval <= 0.0 {
		return nil, fmt.Errorf("handler: dumping interval must be positive, got %v", interval)
	}
	return &SnapshotDump{interval: interval}, nil
}

// Kind returns the dispatch kind.
func (h *SnapshotDump) Kind() string { return "snapshot-dump" }

// Arity reports no in-state and no confirm arguments.
func (h *SnapshotDump) Arity() Arity { return Arity{InState: 0, Confirm: 0} }

// RequestTime advances the candidate by one dumping interval.
func (h *SnapshotDump) RequestTime(in []*state.Branch) Request {
	h.eventTime = h.eventTime.Add(h.interval)
	return Request{Time: h.eventTime}
}

// Confirm returns an empty out-state; nothing is committed.
func (h *SnapshotDump) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	return nil, true
}

// SnapshotState captures the dumping clock.
func (h *SnapshotDump) SnapshotState() ([]byte, error) {
	return json.Marshal(h.eventTime)
}

// RestoreState restores the dumping clock.
func (h *SnapshotDump) RestoreState(data []byte) error {
	return json.Unmarshal(data, &h.eventTime)
}
