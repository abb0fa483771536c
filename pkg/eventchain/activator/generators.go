package activator

import (
	"github.com/avandermeer/eventchain/pkg/eventchain/occupancy"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// ActiveGlobalState yields one singleton identifier set per active unit at
// the given tree level of the active global state, in branch order.
func ActiveGlobalState(level int) Generator {
	return func(active []*state.Branch) [][]state.ID {
		var sets [][]state.ID
		for _, b := range active {
			for _, u := range b.AtLevel(level) {
				if u.Active() {
					sets = append(sets, []state.ID{u.ID})
				}
			}
		}
		return sets
	}
}

// NoInState yields a single nil identifier set. Taggers of periodic timers
// and other handlers that request their candidate time from internal state
// alone use it.
func NoInState() Generator {
	return func([]*state.Branch) [][]state.ID {
		return [][]state.ID{nil}
	}
}

// CellBounding walks a single-active occupancy index and yields one pair per
// unit the active unit can interact with through the cell system: the
// primary occupant of every non-excluded occupied cell, the primary occupant
// of every excluded cell around the active cell, and every surplus unit.
// The active unit itself holds no occupancy record while it moves, so it
// never pairs with itself. Yield order is deterministic: non-excluded cells
// ascending, then the excluded neighborhood in its geometry order, then
// surplus units.
func CellBounding(idx *occupancy.SingleActive) Generator {
	return func([]*state.Branch) [][]state.ID {
		cell, activeID, ok := idx.Active()
		if !ok {
			return nil
		}
		cells := idx.Cells()
		excluded := cells.Excluded(cell)
		near := make(map[int]bool, len(excluded))
		for _, c := range excluded {
			near[c] = true
		}
		var sets [][]state.ID
		for c := 0; c < cells.NumCells(); c++ {
			if near[c] {
				continue
			}
			if id, occupied := idx.Lookup(c); occupied {
				sets = append(sets, []state.ID{activeID, id})
			}
		}
		for _, c := range excluded {
			if id, occupied := idx.Lookup(c); occupied {
				sets = append(sets, []state.ID{activeID, id})
			}
		}
		for _, id := range idx.SurplusIDs() {
			sets = append(sets, []state.ID{activeID, id})
		}
		return sets
	}
}
