// Package occupancy maintains a cell-occupancy index over the global state.
//
// The index maps every tracked unit to the cell its position falls in, with
// one primary occupant per cell and the rest held as surplus. The unit that
// currently carries lifted motion is kept out of the cell records entirely
// and tracked on the side, so consumers enumerating a cell never see the
// mover. Taggers use the index to enumerate candidate in-state identifier
// sets without scanning the whole state.
package occupancy

import (
	"fmt"
	"sort"

	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

const noOccupant state.ID = -1

// Option configures a SingleActive index.
type Option func(*SingleActive)

// WithChargeFilter restricts the index to units whose named charge is
// non-zero. Uncharged units are invisible to the index, including while they
// carry lifted motion.
func WithChargeFilter(name string) Option {
	return func(s *SingleActive) { s.charge = name }
}

// SingleActive is a cell-occupancy index that assumes at most one unit on
// its tree level is lifted at any time.
type SingleActive struct {
	cells  geometry.Cells
	level  int
	charge string

	occupant   []state.ID
	surplus    map[int][]state.ID
	activeID   state.ID
	activeCell int
	hasActive  bool
}

// NewSingleActive returns an index over the units at the given tree level,
// where level 1 is the forest's root level.
func NewSingleActive(cells geometry.Cells, level int, opts ...Option) *SingleActive {
	s := &SingleActive{cells: cells, level: level}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cells returns the underlying cell system.
func (s *SingleActive) Cells() geometry.Cells { return s.cells }

// Level returns the tree level whose units the index tracks.
func (s *SingleActive) Level() int { return s.level }

func (s *SingleActive) eligible(u *state.Unit) bool {
	return s.charge == "" || u.Charge(s.charge) != 0
}

// Initialize fills the index from the full global state. It must run once
// before Update or any query.
func (s *SingleActive) Initialize(full []*state.Branch) error {
	s.occupant = make([]state.ID, s.cells.NumCells())
	for i := range s.occupant {
		s.occupant[i] = noOccupant
	}
	s.surplus = make(map[int][]state.ID)
	s.hasActive = false
	for _, b := range full {
		for _, u := range b.AtLevel(s.level) {
			if !s.eligible(u) {
				continue
			}
			cell := s.cells.Position(u.Position)
			if s.occupant[cell] == noOccupant {
				s.occupant[cell] = u.ID
			} else {
				s.surplus[cell] = append(s.surplus[cell], u.ID)
			}
		}
	}
	return nil
}

// Update keeps the index consistent with the committed event. The active
// branches must contain exactly one unit on the index's tree level. When the
// lifted identity changed, the previous mover is stored back into its last
// cell and the new one is withdrawn from the records; otherwise only the
// tracked cell of the mover is refreshed from its time-sliced position.
func (s *SingleActive) Update(active []*state.Branch) error {
	if s.occupant == nil {
		return fmt.Errorf("occupancy: update before initialize")
	}
	var units []*state.Unit
	for _, b := range active {
		units = append(units, b.AtLevel(s.level)...)
	}
	if len(units) != 1 {
		return fmt.Errorf("occupancy: expected exactly one active unit on level %d, got %d", s.level, len(units))
	}
	u := units[0]

	if s.hasActive && u.ID == s.activeID {
		s.activeCell = s.cells.Position(u.Position)
		return nil
	}

	if s.hasActive {
		if s.occupant[s.activeCell] == noOccupant {
			s.occupant[s.activeCell] = s.activeID
		} else {
			s.surplus[s.activeCell] = append(s.surplus[s.activeCell], s.activeID)
		}
		s.hasActive = false
	}

	if !s.eligible(u) {
		return nil
	}

	// A unit that becomes the mover was at rest since it was last stored,
	// so its current cell is the cell holding its record.
	cell := s.cells.Position(u.Position)
	if s.occupant[cell] == u.ID {
		s.occupant[cell] = s.popSurplus(cell)
	} else if err := s.removeSurplus(cell, u.ID); err != nil {
		return err
	}
	s.activeID = u.ID
	s.activeCell = cell
	s.hasActive = true
	return nil
}

func (s *SingleActive) popSurplus(cell int) state.ID {
	ids := s.surplus[cell]
	if len(ids) == 0 {
		return noOccupant
	}
	id := ids[len(ids)-1]
	if len(ids) == 1 {
		delete(s.surplus, cell)
	} else {
		s.surplus[cell] = ids[:len(ids)-1]
	}
	return id
}

func (s *SingleActive) removeSurplus(cell int, id state.ID) error {
	ids := s.surplus[cell]
	for i, got := range ids {
		if got == id {
			s.surplus[cell] = append(ids[:i], ids[i+1:]...)
			if len(s.surplus[cell]) == 0 {
				delete(s.surplus, cell)
			}
			return nil
		}
	}
	return fmt.Errorf("occupancy: unit %d is not stored in cell %d", id, cell)
}

// Lookup returns the primary occupant of a cell. Surplus units and the
// current mover are never returned.
func (s *SingleActive) Lookup(cell int) (state.ID, bool) {
	if s.occupant == nil || s.occupant[cell] == noOccupant {
		return 0, false
	}
	return s.occupant[cell], true
}

// SurplusIDs returns every surplus identifier in deterministic order: cells
// ascending, insertion order within a cell.
func (s *SingleActive) SurplusIDs() []state.ID {
	if len(s.surplus) == 0 {
		return nil
	}
	cells := make([]int, 0, len(s.surplus))
	for cell := range s.surplus {
		cells = append(cells, cell)
	}
	sort.Ints(cells)
	var ids []state.ID
	for _, cell := range cells {
		ids = append(ids, s.surplus[cell]...)
	}
	return ids
}

// Active returns the tracked mover and the cell it currently passes through.
func (s *SingleActive) Active() (cell int, id state.ID, ok bool) {
	if !s.hasActive {
		return 0, 0, false
	}
	return s.activeCell, s.activeID, true
}
