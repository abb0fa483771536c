// Package simtime stores simulation times as the quotient and remainder of
// an integer division with 1.
//
// Candidate event times and the time stamps of active units only ever grow
// during a run, while the per-leg time displacements computed by event
// handlers stay in the same order of magnitude. A plain float64 total time
// therefore loses precision as the run gets longer: two close displacements
// added to a large time stamp can collapse onto the same candidate time.
// Splitting the time into an integer quotient and a sub-unit remainder keeps
// the remainder's precision constant for the whole run. Displacements remain
// plain float64 values and are folded in with Add.
package simtime

import (
	"encoding/json"
	"math"
	"strconv"
)

// Time is a simulation time split into the quotient and remainder of an
// integer division with 1. The zero value is time zero.
type Time struct {
	Quotient  float64
	Remainder float64
}

// Infinity compares after every finite time. Handlers return it when they
// can never fire under the current state.
var Infinity = Time{Quotient: math.Inf(1), Remainder: math.Inf(1)}

// FromFloat splits a float time into its quotient/remainder representation.
func FromFloat(t float64) Time {
	if math.IsInf(t, 0) {
		return Time{Quotient: t, Remainder: t}
	}
	q := math.Floor(t)
	return Time{Quotient: q, Remainder: t - q}
}

// Add returns the time delta later than t, re-normalizing the remainder into
// [0, 1). Negative deltas are allowed; an infinite delta yields Infinity.
func (t Time) Add(delta float64) Time {
	if math.IsInf(delta, 0) {
		return Time{Quotient: delta, Remainder: delta}
	}
	sum := t.Remainder + delta
	q := math.Floor(sum)
	return Time{Quotient: t.Quotient + q, Remainder: sum - q}
}

// Sub returns the float difference t - other.
func (t Time) Sub(other Time) float64 {
	return t.Quotient - other.Quotient + t.Remainder - other.Remainder
}

// Compare orders two times lexicographically on (quotient, remainder).
// It returns -1 when t is earlier than other, 0 when equal, +1 when later.
func (t Time) Compare(other Time) int {
	switch {
	case t.Quotient < other.Quotient:
		return -1
	case t.Quotient > other.Quotient:
		return 1
	case t.Remainder < other.Remainder:
		return -1
	case t.Remainder > other.Remainder:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly earlier than other.
func (t Time) Before(other Time) bool { return t.Compare(other) < 0 }

// After reports whether t is strictly later than other.
func (t Time) After(other Time) bool { return t.Compare(other) > 0 }

// Equal reports whether the two times are exactly equal.
func (t Time) Equal(other Time) bool { return t.Compare(other) == 0 }

// IsInfinite reports whether t is the infinite time.
func (t Time) IsInfinite() bool { return math.IsInf(t.Quotient, 0) }

// Float collapses the time back into a single float64. Precision degrades
// for large quotients, so this is for reporting and output only, never for
// ordering decisions.
func (t Time) Float() float64 { return t.Quotient + t.Remainder }

func (t Time) String() string {
	return strconv.FormatFloat(t.Float(), 'g', -1, 64)
}

type timeWire struct {
	Quotient  string `json:"quotient"`
	Remainder string `json:"remainder"`
}

// MarshalJSON encodes the two components as strings. JSON numbers cannot
// carry +Inf, and infinite candidate times are legitimate snapshot content.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeWire{
		Quotient:  strconv.FormatFloat(t.Quotient, 'g', -1, 64),
		Remainder: strconv.FormatFloat(t.Remainder, 'g', -1, 64),
	})
}

// UnmarshalJSON decodes the string form written by MarshalJSON.
func (t *Time) UnmarshalJSON(data []byte) error {
	var w timeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	q, err := strconv.ParseFloat(w.Quotient, 64)
	if err != nil {
		return err
	}
	r, err := strconv.ParseFloat(w.Remainder, 64)
	if err != nil {
		return err
	}
	t.Quotient, t.Remainder = q, r
	return nil
}
