package geometry

// Cells is the query contract of a cell system laid over the box. Cell
// identifiers are dense ints in [0, NumCells). The kernel only ever asks
// these three questions; how cells are shaped is the implementation's
// business.
type Cells interface {
	// Position returns the cell containing the given position. The position
	// must already be wrapped into the box.
	Position(pos []float64) int

	// Excluded returns the cell itself plus every neighboring cell too close
	// for the cell-based factor bookkeeping. The returned slice is shared and
	// must not be modified.
	Excluded(cell int) []int

	// Successor returns the cell one step along the positive axis of the
	// given dimension, wrapping periodically.
	Successor(cell, direction int) int

	// NumCells returns the total number of cells.
	NumCells() int
}
