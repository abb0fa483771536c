package main

import (
	"math"

	"github.com/avandermeer/eventchain/pkg/eventchain/config"
	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
)

// registerReferencePotentials installs the potentials configurations can
// name out of the box. Programs embedding the library register their own
// physics the same way.
func registerReferencePotentials(b *config.Builder) {
	// Registrations collide only when this function runs twice on one
	// builder, which is a programming error.
	if err := b.RegisterPotential("harmonic", harmonicPotential(1.0)); err != nil {
		panic(err)
	}
	if err := b.RegisterPotential("constant", constantRatePotential(1.0)); err != nil {
		panic(err)
	}
}

// harmonicPotential is the pair potential U = k*q/2 |r|^2 with the charge
// product q scaling the spring constant. The bounding potential is the
// potential itself, inverted exactly, so proposals are never rejected.
func harmonicPotential(k float64) config.Potential {
	rate := func(direction int, sep []float64, q float64) float64 {
		r := -k * q * sep[direction]
		if r < 0.0 {
			return 0.0
		}
		return r
	}
	displacement := func(direction int, sep []float64, q float64, potentialChange float64) float64 {
		c := k * q
		if c <= 0.0 {
			return math.Inf(1)
		}
		s := sep[direction]
		if s >= 0.0 {
			// Downhill to the potential minimum, then uphill.
			return s + math.Sqrt(2.0*potentialChange/c)
		}
		return s + math.Sqrt(s*s+2.0*potentialChange/c)
	}
	return config.Potential{
		Rate: rate,
		Bounding: handler.BoundingPotential{
			Rate:         rate,
			Displacement: displacement,
		},
	}
}

// constantRatePotential collides at a fixed rate independent of separation,
// useful as a null case in configuration checks and demos.
func constantRatePotential(rate float64) config.Potential {
	flat := func(int, []float64, float64) float64 { return rate }
	return config.Potential{
		Rate: flat,
		Bounding: handler.BoundingPotential{
			Rate: flat,
			Displacement: func(_ int, _ []float64, _ float64, potentialChange float64) float64 {
				return potentialChange / rate
			},
		},
	}
}
