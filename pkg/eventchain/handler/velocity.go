package handler

import (
	"fmt"

	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// axisVelocity decomposes an axis-aligned velocity into its direction index
// and speed. The reference handlers only support motion along a positive
// axis; anything else is a programming error in the run setup.
func axisVelocity(v []float64) (int, float64) {
	direction, speed := -1, 0.0
	for d, c := range v {
		if c == 0.0 {
			continue
		}
		if direction >= 0 || c < 0.0 {
			panic(fmt.Sprintf("handler: velocity %v is not aligned with a positive axis", v))
		}
		direction, speed = d, c
	}
	if direction < 0 {
		panic("handler: lifted unit has zero velocity")
	}
	return direction, speed
}

// leafUnits collects the leaf units of all branches in order.
func leafUnits(branches []*state.Branch) []*state.Unit {
	var units []*state.Unit
	for _, b := range branches {
		units = append(units, b.Leaves()...)
	}
	return units
}

// liftedIndex returns the index of the single lifted unit.
func liftedIndex(units []*state.Unit) int {
	idx := -1
	for i, u := range units {
		if !u.Active() {
			continue
		}
		if idx >= 0 {
			panic("handler: more than one lifted unit in the in-state")
		}
		idx = i
	}
	if idx < 0 {
		panic("handler: no lifted unit in the in-state")
	}
	return idx
}

// refreshAggregates recomputes every composite node's velocity in the branch
// bottom up as the mean of its children's velocities. A composite without
// lifted children comes to rest.
func refreshAggregates(b *state.Branch) {
	if len(b.Children) == 0 {
		return
	}
	for _, c := range b.Children {
		refreshAggregates(c)
	}
	mean := make([]float64, len(b.Unit.Position))
	lifted := false
	for _, c := range b.Children {
		if !c.Unit.Active() {
			continue
		}
		if !lifted {
			b.Unit.TimeStamp = c.Unit.TimeStamp
		}
		lifted = true
		for d := range mean {
			mean[d] += c.Unit.Velocity[d]
		}
	}
	if !lifted {
		b.Unit.Velocity = nil
		return
	}
	for d := range mean {
		mean[d] /= float64(len(b.Children))
	}
	b.Unit.Velocity = mean
}
