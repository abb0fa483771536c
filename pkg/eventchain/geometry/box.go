// Package geometry provides the immutable run geometry: the periodic
// simulation box and the cell systems laid over it.
package geometry

import (
	"fmt"
	"math"
)

// Box is the immutable run context shared by every component that needs the
// system geometry: spatial dimension, periodic side lengths, and the inverse
// temperature used by displacement sampling. It is constructed once at setup
// and passed by reference; nothing mutates it afterwards.
type Box struct {
	lengths []float64
	beta    float64
}

// NewBox validates and returns the run geometry. The dimension is the number
// of side lengths.
func NewBox(lengths []float64, beta float64) (*Box, error) {
	if len(lengths) == 0 {
		return nil, fmt.Errorf("geometry: box needs at least one side length")
	}
	for d, l := range lengths {
		if l <= 0.0 {
			return nil, fmt.Errorf("geometry: box side length %d is %v, must be positive", d, l)
		}
	}
	if beta <= 0.0 {
		return nil, fmt.Errorf("geometry: inverse temperature is %v, must be positive", beta)
	}
	ls := make([]float64, len(lengths))
	copy(ls, lengths)
	return &Box{lengths: ls, beta: beta}, nil
}

// Dimension returns the spatial dimension.
func (b *Box) Dimension() int { return len(b.lengths) }

// Length returns the side length along dimension d.
func (b *Box) Length(d int) float64 { return b.lengths[d] }

// Beta returns the inverse temperature.
func (b *Box) Beta() float64 { return b.beta }

// Wrap maps pos into [0, length) per dimension, in place.
func (b *Box) Wrap(pos []float64) {
	for d := range pos {
		p := math.Mod(pos[d], b.lengths[d])
		if p < 0.0 {
			p += b.lengths[d]
		}
		pos[d] = p
	}
}

// Separation returns the minimum-image vector from a to b. Each component
// lies in [-length/2, length/2).
func (b *Box) Separation(from, to []float64) []float64 {
	sep := make([]float64, len(from))
	for d := range sep {
		s := to[d] - from[d]
		l := b.lengths[d]
		s -= l * math.Round(s/l)
		sep[d] = s
	}
	return sep
}
