package geometry

import "fmt"

// CuboidCells divides the periodic box into a regular grid of axis-aligned
// cuboid cells. Cell identifiers are dense, with the first dimension varying
// fastest. Excluded-neighbor sets are precomputed at construction so the
// per-leg queries are lookups.
type CuboidCells struct {
	box      *Box
	counts   []int
	strides  []int
	total    int
	excluded [][]int
}

// NewCuboidCells lays counts[d] cells along dimension d. The layers argument
// is how many rings of neighboring cells around a cell count as excluded
// (too close for cell-based bookkeeping); every dimension must hold at least
// 2*layers+1 cells so that the exclusion ring never wraps onto itself.
func NewCuboidCells(box *Box, counts []int, layers int) (*CuboidCells, error) {
	if len(counts) != box.Dimension() {
		return nil, fmt.Errorf("geometry: got %d cell counts for dimension %d", len(counts), box.Dimension())
	}
	if layers < 0 {
		return nil, fmt.Errorf("geometry: neighbor layers is %d, must not be negative", layers)
	}
	total := 1
	for d, c := range counts {
		if c < 2*layers+1 {
			return nil, fmt.Errorf("geometry: dimension %d has %d cells, needs at least %d for %d neighbor layers",
				d, c, 2*layers+1, layers)
		}
		total *= c
	}

	cc := &CuboidCells{
		box:     box,
		counts:  append([]int(nil), counts...),
		strides: make([]int, len(counts)),
		total:   total,
	}
	stride := 1
	for d := range counts {
		cc.strides[d] = stride
		stride *= counts[d]
	}

	cc.excluded = make([][]int, total)
	offsets := neighborOffsets(len(counts), layers)
	for cell := 0; cell < total; cell++ {
		coords := cc.coords(cell)
		seen := make(map[int]struct{}, len(offsets))
		list := make([]int, 0, len(offsets))
		for _, off := range offsets {
			neighbor := 0
			for d := range coords {
				idx := (coords[d] + off[d] + counts[d]) % counts[d]
				neighbor += idx * cc.strides[d]
			}
			if _, ok := seen[neighbor]; !ok {
				seen[neighbor] = struct{}{}
				list = append(list, neighbor)
			}
		}
		cc.excluded[cell] = list
	}
	return cc, nil
}

// neighborOffsets enumerates every per-dimension offset in [-layers, layers].
func neighborOffsets(dimension, layers int) [][]int {
	if dimension == 0 {
		return [][]int{{}}
	}
	tails := neighborOffsets(dimension-1, layers)
	offsets := make([][]int, 0, (2*layers+1)*len(tails))
	for o := -layers; o <= layers; o++ {
		for _, tail := range tails {
			off := make([]int, 0, dimension)
			off = append(off, o)
			off = append(off, tail...)
			offsets = append(offsets, off)
		}
	}
	return offsets
}

func (c *CuboidCells) coords(cell int) []int {
	coords := make([]int, len(c.counts))
	for d := range c.counts {
		coords[d] = (cell / c.strides[d]) % c.counts[d]
	}
	return coords
}

// Position returns the cell containing pos. Positions sitting exactly on the
// upper box boundary land in the last cell of that dimension.
func (c *CuboidCells) Position(pos []float64) int {
	cell := 0
	for d := range c.counts {
		idx := int(pos[d] / c.box.Length(d) * float64(c.counts[d]))
		if idx >= c.counts[d] {
			idx = c.counts[d] - 1
		}
		if idx < 0 {
			idx = 0
		}
		cell += idx * c.strides[d]
	}
	return cell
}

// Excluded returns the precomputed exclusion set of the cell (the cell
// itself plus its neighbor rings). The slice is shared; callers must not
// modify it.
func (c *CuboidCells) Excluded(cell int) []int { return c.excluded[cell] }

// Successor returns the cell one step along the positive axis of dimension
// direction, wrapping periodically.
func (c *CuboidCells) Successor(cell, direction int) int {
	coords := c.coords(cell)
	coords[direction] = (coords[direction] + 1) % c.counts[direction]
	out := 0
	for d := range coords {
		out += coords[d] * c.strides[d]
	}
	return out
}

// NumCells returns the total number of cells.
func (c *CuboidCells) NumCells() int { return c.total }

// Counts returns a copy of the per-dimension cell counts.
func (c *CuboidCells) Counts() []int { return append([]int(nil), c.counts...) }
