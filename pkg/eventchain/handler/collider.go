package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/rng"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// RateFunc returns the event rate of a pair factor for a unit moving along
// the given axis, given the periodic separation from the mover to its target
// and the product of the relevant charges.
type RateFunc func(direction int, separation []float64, chargeProduct float64) float64

// DisplacementFunc inverts a bounding potential: it returns how far the
// mover travels along its axis until the cumulative bounding rate reaches
// the sampled potential change.
type DisplacementFunc func(direction int, separation []float64, chargeProduct float64, potentialChange float64) float64

// BoundingPotential bounds a pair factor's event rate from above. Rate must
// dominate the factor's true rate wherever the displacement can land.
type BoundingPotential struct {
	Rate         RateFunc
	Displacement DisplacementFunc
}

// PairColliderOption configures a PairCollider.
type PairColliderOption func(*PairCollider)

// WithColliderCharge passes the product of the named charge of both units to
// the rate callbacks instead of 1.
func WithColliderCharge(name string) PairColliderOption {
	return func(h *PairCollider) { h.charge = name }
}

// WithColliderLogger sets the logger used for bounding-rate warnings.
func WithColliderLogger(l *slog.Logger) PairColliderOption {
	return func(h *PairCollider) { h.log = l }
}

// PairCollider computes events between two leaf units using a bounding
// potential. RequestTime proposes a candidate from the bounding rate;
// Confirm thins against the true rate and, when confirmed, hands the lifted
// motion from the mover to its target. Rejected proposals stay unconfirmed
// and ResendTime continues from the stored, already time-sliced in-state.
type PairCollider struct {
	box      *geometry.Box
	src      *rng.Source
	rate     RateFunc
	bounding BoundingPotential
	charge   string
	log      *slog.Logger

	in        []*state.Branch
	leaves    []*state.Unit
	activeIdx int
	direction int
	speed     float64
	eventTime simtime.Time
}

// NewPairCollider returns a two-unit bounding-potential handler. The true
// rate and the bounding potential are injected; the kernel computes no
// physics itself.
func NewPairCollider(box *geometry.Box, src *rng.Source, rate RateFunc, bounding BoundingPotential, opts ...PairColliderOption) (*PairCollider, error) {
	if rate == nil {
		return nil, fmt.Errorf("handler: pair collider needs a rate callback")
	}
	if bounding.Rate == nil || bounding.Displacement == nil {
		return nil, fmt.Errorf("handler: pair collider needs a complete bounding potential")
	}
	h := &PairCollider{box: box, src: src, rate: rate, bounding: bounding}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Kind returns the dispatch kind.
func (h *PairCollider) Kind() string { return "pair-collider" }

// Arity reports one in-state set and no confirm arguments.
func (h *PairCollider) Arity() Arity { return Arity{InState: 1, Confirm: 0} }

// RequestTime stores the in-state and proposes a candidate time from the
// bounding potential. The stored branches are time-sliced to the candidate.
func (h *PairCollider) RequestTime(in []*state.Branch) Request {
	h.in = in
	h.leaves = leafUnits(in)
	if len(h.leaves) != 2 {
		panic(fmt.Sprintf("handler: pair collider expects two leaf units, got %d", len(h.leaves)))
	}
	h.activeIdx = liftedIndex(h.leaves)
	h.direction, h.speed = axisVelocity(h.leaves[h.activeIdx].Velocity)
	return h.propose()
}

// ResendTime proposes a new candidate after a rejection. The stored state
// already sits at the rejected time, so the new candidate is strictly later.
func (h *PairCollider) ResendTime() Request {
	return h.propose()
}

func (h *PairCollider) propose() Request {
	active := h.leaves[h.activeIdx]
	target := h.leaves[h.activeIdx^1]
	sep := h.box.Separation(active.Position, target.Position)
	displacement := h.bounding.Displacement(h.direction, sep, h.chargeProduct(), h.src.Expovariate(h.box.Beta()))
	h.eventTime = active.TimeStamp.Add(displacement / h.speed)
	for _, b := range h.in {
		b.TimeSlice(h.eventTime, h.box)
	}
	return Request{Time: h.eventTime}
}

// Confirm thins the bounding proposal against the true rate. Confirmed
// events pass the velocity from the mover to the target; rejections return
// unconfirmed.
func (h *PairCollider) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	active := h.leaves[h.activeIdx]
	target := h.leaves[h.activeIdx^1]
	sep := h.box.Separation(active.Position, target.Position)
	q := h.chargeProduct()
	boundingRate := h.bounding.Rate(h.direction, sep, q)
	trueRate := h.rate(h.direction, sep, q)
	if trueRate <= 0.0 {
		return nil, false
	}
	if trueRate > boundingRate && h.log != nil {
		h.log.Warn("factor rate exceeds bounding rate",
			slog.Float64("rate", trueRate),
			slog.Float64("bounding_rate", boundingRate))
	}
	if h.src.Uniform(0.0, boundingRate) >= trueRate {
		return nil, false
	}
	target.Velocity = active.Velocity
	target.TimeStamp = h.eventTime
	active.Velocity = nil
	for _, b := range h.in {
		refreshAggregates(b)
	}
	return h.in, true
}

func (h *PairCollider) chargeProduct() float64 {
	if h.charge == "" {
		return 1.0
	}
	return h.leaves[0].Charge(h.charge) * h.leaves[1].Charge(h.charge)
}

type colliderState struct {
	In        []*state.Branch `json:"in,omitempty"`
	ActiveIdx int             `json:"active_idx"`
	Direction int             `json:"direction"`
	Speed     float64         `json:"speed"`
	EventTime simtime.Time    `json:"event_time"`
}

// SnapshotState captures the stored in-state and proposal.
func (h *PairCollider) SnapshotState() ([]byte, error) {
	return json.Marshal(colliderState{
		In:        h.in,
		ActiveIdx: h.activeIdx,
		Direction: h.direction,
		Speed:     h.speed,
		EventTime: h.eventTime,
	})
}

// RestoreState restores the stored in-state and proposal.
func (h *PairCollider) RestoreState(data []byte) error {
	var s colliderState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	h.in = s.In
	h.leaves = leafUnits(s.In)
	h.activeIdx = s.ActiveIdx
	h.direction = s.Direction
	h.speed = s.Speed
	h.eventTime = s.EventTime
	return nil
}
