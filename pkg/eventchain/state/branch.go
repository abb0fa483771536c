package state

import (
	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
)

// Branch is a slice of the global state: one node's unit plus its children.
// Extraction produces deep-copied branches and Commit writes their units
// back; in between the branch belongs to the event handler that requested
// it, which may mutate the units freely.
type Branch struct {
	Unit     Unit      `json:"unit"`
	Children []*Branch `json:"children,omitempty"`
}

// Copy returns a deep copy of the branch.
func (b *Branch) Copy() *Branch {
	out := &Branch{Unit: b.Unit.clone()}
	for _, c := range b.Children {
		out.Children = append(out.Children, c.Copy())
	}
	return out
}

// Leaves returns pointers to the units of every leaf node, depth first.
func (b *Branch) Leaves() []*Unit {
	if len(b.Children) == 0 {
		return []*Unit{&b.Unit}
	}
	var units []*Unit
	for _, c := range b.Children {
		units = append(units, c.Leaves()...)
	}
	return units
}

// AtLevel returns pointers to the units at the given tree level of the
// branch, where level 1 is the branch root.
func (b *Branch) AtLevel(level int) []*Unit {
	if level <= 1 {
		return []*Unit{&b.Unit}
	}
	var units []*Unit
	for _, c := range b.Children {
		units = append(units, c.AtLevel(level-1)...)
	}
	return units
}

// TimeSlice advances every lifted unit in the branch to time t along its
// velocity and wraps the resulting positions into the box. Units without
// velocity are left untouched.
func (b *Branch) TimeSlice(t simtime.Time, box *geometry.Box) {
	if b.Unit.Active() {
		dt := t.Sub(b.Unit.TimeStamp)
		for d := range b.Unit.Position {
			b.Unit.Position[d] += b.Unit.Velocity[d] * dt
		}
		box.Wrap(b.Unit.Position)
		b.Unit.TimeStamp = t
	}
	for _, c := range b.Children {
		c.TimeSlice(t, box)
	}
}
