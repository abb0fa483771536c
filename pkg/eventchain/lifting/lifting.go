// Package lifting implements rate-balance sampling of the next active unit.
//
// Event handlers whose factor couples more than two independent units need a
// lifting scheme to build their out-states: the handler fills a derivative
// table with the per-unit factor derivatives (positive for outgoing rate,
// negative for incoming) and then asks the scheme which unit becomes active
// next. The table is strictly per-invocation: Reset clears it between
// queries and nothing is reused across legs.
package lifting

import (
	"errors"
	"fmt"
	"math"

	"github.com/avandermeer/eventchain/pkg/eventchain/rng"
)

// ErrUnready is returned by ActiveIdentifier when no active unit was
// recorded in the table first. A handler forgot to insert its active
// contribution; the run cannot continue.
var ErrUnready = errors.New("lifting: active unit has not been recorded")

// Scheme is a lifting scheme: a derivative table plus a selection rule for
// the next active identifier.
type Scheme[ID comparable] interface {
	// Insert adds one unit's factor derivative. Positive rates feed the
	// outgoing side (the active unit among them draws the selection
	// position); non-positive rates land in the incoming table keyed by
	// identifier. Inserting the active unit with a non-positive rate is a
	// programming error and panics.
	Insert(rate float64, id ID, isActive bool)

	// ActiveIdentifier selects the unit that becomes active next.
	ActiveIdentifier() (ID, error)

	// Reset clears the table for the next invocation.
	Reset()
}

// table is the derivative table shared by the selection rules.
type table[ID comparable] struct {
	negRates       []float64
	negIDs         []ID
	position       float64
	sumPositive    float64
	activeRecorded bool
	src            *rng.Source
}

func (t *table[ID]) Insert(rate float64, id ID, isActive bool) {
	if rate > 0.0 {
		t.sumPositive += rate
		if isActive {
			t.activeRecorded = true
			t.position += t.src.Uniform(0.0, rate)
		} else if !t.activeRecorded {
			// Outgoing intervals inserted before the active unit shift its
			// drawn position along the concatenated positive axis.
			t.position += rate
		}
		return
	}
	if isActive {
		panic("lifting: active unit inserted with non-positive rate")
	}
	t.negRates = append(t.negRates, -rate)
	t.negIDs = append(t.negIDs, id)
}

func (t *table[ID]) Reset() {
	t.negRates = t.negRates[:0]
	t.negIDs = t.negIDs[:0]
	t.position = 0.0
	t.sumPositive = 0.0
	t.activeRecorded = false
}

func (t *table[ID]) sumNegative() float64 {
	sum := 0.0
	for _, r := range t.negRates {
		sum += r
	}
	return sum
}

// InsideFirst maps the drawn position on the concatenated outgoing intervals
// directly onto the concatenated incoming intervals, walking the incoming
// table in insertion order. Selection is deterministic given the table
// contents and the drawn position.
type InsideFirst[ID comparable] struct {
	table[ID]
}

// NewInsideFirst returns an inside-first scheme drawing from src.
func NewInsideFirst[ID comparable](src *rng.Source) *InsideFirst[ID] {
	return &InsideFirst[ID]{table[ID]{src: src}}
}

// ActiveIdentifier returns the first identifier whose cumulative incoming
// rate reaches the drawn position, falling back to the last entry when
// floating-point shortfall leaves the position past the table.
func (l *InsideFirst[ID]) ActiveIdentifier() (ID, error) {
	var zero ID
	if !l.activeRecorded {
		return zero, ErrUnready
	}
	if len(l.negIDs) == 0 {
		return zero, errors.New("lifting: incoming rate table is empty")
	}
	sum := 0.0
	for i, rate := range l.negRates {
		sum += rate
		if l.position <= sum {
			return l.negIDs[i], nil
		}
	}
	return l.negIDs[len(l.negIDs)-1], nil
}

// Ratio redraws a fresh position uniformly over the incoming intervals at
// selection time instead of carrying the insertion-time position. It demands
// balanced tables: total outgoing must match total incoming rate.
type Ratio[ID comparable] struct {
	table[ID]
}

// NewRatio returns a ratio scheme drawing from src.
func NewRatio[ID comparable](src *rng.Source) *Ratio[ID] {
	return &Ratio[ID]{table[ID]{src: src}}
}

// ActiveIdentifier draws uniformly over the summed incoming rates and
// returns the identifier whose cumulative interval contains the draw.
func (l *Ratio[ID]) ActiveIdentifier() (ID, error) {
	var zero ID
	if !l.activeRecorded {
		return zero, ErrUnready
	}
	if len(l.negIDs) == 0 {
		return zero, errors.New("lifting: incoming rate table is empty")
	}
	total := l.sumNegative()
	if math.Abs(l.sumPositive-total) >= 1.0e-11 {
		return zero, fmt.Errorf("lifting: rate tables unbalanced: outgoing %v, incoming %v", l.sumPositive, total)
	}
	draw := l.src.Uniform(0.0, total)
	sum := 0.0
	for i, rate := range l.negRates {
		sum += rate
		if draw <= sum {
			return l.negIDs[i], nil
		}
	}
	return l.negIDs[len(l.negIDs)-1], nil
}
