// Package state holds the global physical state of a run: a forest of
// composite objects and point masses kept in an index-addressed node arena,
// and the branch slices of it that event handlers read and write.
package state

import "github.com/avandermeer/eventchain/pkg/eventchain/simtime"

// ID identifies one node of the global state forest. It is an index into the
// owning store's node arena and stays valid for the whole run: the topology
// is fixed at setup, only unit data mutates.
type ID int

// Unit is the data carried by one node: a time-sliced position, the velocity
// and time stamp of its lifted motion, and its charges. Velocity is nil
// while the unit is not lifted.
type Unit struct {
	ID        ID                 `json:"id"`
	Position  []float64          `json:"position"`
	Velocity  []float64          `json:"velocity,omitempty"`
	TimeStamp simtime.Time       `json:"time_stamp"`
	Charges   map[string]float64 `json:"charges,omitempty"`
}

// Charge returns the named charge, or zero if the unit does not carry it.
func (u *Unit) Charge(name string) float64 { return u.Charges[name] }

// Active reports whether the unit currently carries lifted motion.
func (u *Unit) Active() bool { return u.Velocity != nil }

func copyFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

// clone returns a deep copy of the unit. Charges are shared: they never
// mutate after setup.
func (u *Unit) clone() Unit {
	return Unit{
		ID:        u.ID,
		Position:  copyFloats(u.Position),
		Velocity:  copyFloats(u.Velocity),
		TimeStamp: u.TimeStamp,
		Charges:   u.Charges,
	}
}
