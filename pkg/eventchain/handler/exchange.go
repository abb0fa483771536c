package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/lifting"
	"github.com/avandermeer/eventchain/pkg/eventchain/rng"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// FactorRatesFunc returns one signed rate per unit of a multi-unit factor:
// positive outgoing rates (the mover's among them is the factor's true event
// rate) and negative incoming rates for the units that can take over the
// lifted motion.
type FactorRatesFunc func(direction int, units []*state.Unit, activeIndex int) []float64

// FactorRateFunc returns a single rate of a multi-unit factor, used for the
// bounding rate.
type FactorRateFunc func(direction int, units []*state.Unit, activeIndex int) float64

// FactorDisplacementFunc inverts a multi-unit bounding potential: it returns
// how far the mover travels along its axis until the cumulative bounding
// rate reaches the sampled potential change.
type FactorDisplacementFunc func(direction int, units []*state.Unit, activeIndex int, potentialChange float64) float64

// FactorExchangeOption configures a FactorExchange.
type FactorExchangeOption func(*FactorExchange)

// WithExchangeLogger sets the logger used for bounding-rate warnings.
func WithExchangeLogger(l *slog.Logger) FactorExchangeOption {
	return func(h *FactorExchange) { h.log = l }
}

// FactorExchange computes events of a factor coupling several units, using a
// bounding potential for the proposal and a lifting scheme to pick which
// unit carries the motion next. Rejected proposals stay unconfirmed and are
// re-proposed from the stored in-state.
type FactorExchange struct {
	box          *geometry.Box
	src          *rng.Source
	scheme       lifting.Scheme[state.ID]
	rates        FactorRatesFunc
	boundingRate FactorRateFunc
	displacement FactorDisplacementFunc
	log          *slog.Logger

	in        []*state.Branch
	leaves    []*state.Unit
	activeIdx int
	direction int
	speed     float64
	eventTime simtime.Time
}

// NewFactorExchange returns a multi-unit bounding-potential handler. The
// per-unit factor rates, the bounding rate, and the bounding displacement
// are injected callbacks.
func NewFactorExchange(box *geometry.Box, src *rng.Source, scheme lifting.Scheme[state.ID],
	rates FactorRatesFunc, boundingRate FactorRateFunc, displacement FactorDisplacementFunc,
	opts ...FactorExchangeOption) (*FactorExchange, error) {
	if scheme == nil {
		return nil, fmt.Errorf("handler: factor exchange needs a lifting scheme")
	}
	if rates == nil || boundingRate == nil || displacement == nil {
		return nil, fmt.Errorf("handler: factor exchange needs rates, bounding rate, and displacement callbacks")
	}
	h := &FactorExchange{
		box:          box,
		src:          src,
		scheme:       scheme,
		rates:        rates,
		boundingRate: boundingRate,
		displacement: displacement,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Kind returns the dispatch kind.
func (h *FactorExchange) Kind() string { return "factor-exchange" }

// Arity reports one in-state set and no confirm arguments.
func (h *FactorExchange) Arity() Arity { return Arity{InState: 1, Confirm: 0} }

// RequestTime stores the in-state and proposes a candidate time from the
// bounding potential.
func (h *FactorExchange) RequestTime(in []*state.Branch) Request {
	h.in = in
	h.leaves = leafUnits(in)
	if len(h.leaves) < 2 {
		panic(fmt.Sprintf("handler: factor exchange expects at least two leaf units, got %d", len(h.leaves)))
	}
	h.activeIdx = liftedIndex(h.leaves)
	h.direction, h.speed = axisVelocity(h.leaves[h.activeIdx].Velocity)
	return h.propose()
}

// ResendTime proposes a new candidate after a rejection.
func (h *FactorExchange) ResendTime() Request {
	return h.propose()
}

func (h *FactorExchange) propose() Request {
	displacement := h.displacement(h.direction, h.leaves, h.activeIdx, h.src.Expovariate(h.box.Beta()))
	h.eventTime = h.leaves[h.activeIdx].TimeStamp.Add(displacement / h.speed)
	for _, b := range h.in {
		b.TimeSlice(h.eventTime, h.box)
	}
	return Request{Time: h.eventTime}
}

// Confirm thins the bounding proposal against the factor's true rate and,
// when confirmed, fills the lifting scheme with the per-unit rates to pick
// the unit that carries the motion next.
func (h *FactorExchange) Confirm(args []*state.Branch) ([]*state.Branch, bool) {
	bounding := h.boundingRate(h.direction, h.leaves, h.activeIdx)
	rates := h.rates(h.direction, h.leaves, h.activeIdx)
	if len(rates) != len(h.leaves) {
		panic(fmt.Sprintf("handler: factor rates returned %d rates for %d units", len(rates), len(h.leaves)))
	}
	trueRate := rates[h.activeIdx]
	if trueRate <= 0.0 {
		return nil, false
	}
	if trueRate > bounding && h.log != nil {
		h.log.Warn("factor rate exceeds bounding rate",
			slog.Float64("rate", trueRate),
			slog.Float64("bounding_rate", bounding))
	}
	if h.src.Uniform(0.0, bounding) >= trueRate {
		return nil, false
	}

	h.scheme.Reset()
	for i, u := range h.leaves {
		h.scheme.Insert(rates[i], u.ID, i == h.activeIdx)
	}
	next, err := h.scheme.ActiveIdentifier()
	if err != nil {
		panic(fmt.Sprintf("handler: lifting scheme failed: %v", err))
	}

	active := h.leaves[h.activeIdx]
	if next != active.ID {
		for _, u := range h.leaves {
			if u.ID != next {
				continue
			}
			u.Velocity = active.Velocity
			u.TimeStamp = h.eventTime
			active.Velocity = nil
			break
		}
	}
	for _, b := range h.in {
		refreshAggregates(b)
	}
	return h.in, true
}

type exchangeState struct {
	In        []*state.Branch `json:"in,omitempty"`
	ActiveIdx int             `json:"active_idx"`
	Direction int             `json:"direction"`
	Speed     float64         `json:"speed"`
	EventTime simtime.Time    `json:"event_time"`
}

// SnapshotState captures the stored in-state and proposal.
func (h *FactorExchange) SnapshotState() ([]byte, error) {
	return json.Marshal(exchangeState{
		In:        h.in,
		ActiveIdx: h.activeIdx,
		Direction: h.direction,
		Speed:     h.speed,
		EventTime: h.eventTime,
	})
}

// RestoreState restores the stored in-state and proposal.
func (h *FactorExchange) RestoreState(data []byte) error {
	var s exchangeState
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
