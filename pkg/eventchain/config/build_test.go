package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avandermeer/eventchain/pkg/eventchain"
	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
)

// constantPotential collides at a fixed rate regardless of separation. The
// bounding rate equals the true rate, so no proposal is ever rejected.
func constantPotential(rate float64) Potential {
	return Potential{
		Rate: func(int, []float64, float64) float64 { return rate },
		Bounding: handler.BoundingPotential{
			Rate: func(int, []float64, float64) float64 { return rate },
			Displacement: func(_ int, _ []float64, _ float64, potentialChange float64) float64 {
				return potentialChange / rate
			},
		},
	}
}

const buildableYAML = `
seed: 7
box:
  lengths: [1.0]
state:
  points:
    - position: [0.2]
      charges: {charge: 1.0}
    - position: [0.7]
      charges: {charge: 1.0}
taggers:
  - tag: start
    handler:
      kind: chain-start
    creates: [collider, end]
  - tag: collider
    count: 2
    handler:
      kind: pair-collider
      potential: constant
    generate:
      kind: cell-bounding
    creates: [collider]
    cells:
      counts: [3]
  - tag: end
    handler:
      kind: end-of-run
      end_time: 5.0
`

func buildableRun(t *testing.T) *Run {
	t.Helper()
	run, err := FromYAML([]byte(buildableYAML))
	require.NoError(t, err)
	return run
}

func builderWithPotential(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder()
	require.NoError(t, b.RegisterPotential("constant", constantPotential(1.0)))
	return b
}

// TestBuildRuns verifies a configured run assembles and drives to its end
// time.
func TestBuildRuns(t *testing.T) {
	m, err := builderWithPotential(t).Build(buildableRun(t))
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))
	assert.Greater(t, m.Legs(), uint64(1))
	assert.Equal(t, 5.0, m.EventTime().Float())

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []byte(buildableYAML), snap.Config, "raw configuration travels inside snapshots")
}

// TestBuildDeterministic verifies two builds of the same configuration
// commit the same event sequence.
func TestBuildDeterministic(t *testing.T) {
	first, err := builderWithPotential(t).Build(buildableRun(t))
	require.NoError(t, err)
	second, err := builderWithPotential(t).Build(buildableRun(t))
	require.NoError(t, err)

	require.NoError(t, first.Run(context.Background()))
	require.NoError(t, second.Run(context.Background()))
	assert.Equal(t, first.Legs(), second.Legs())
	assert.Equal(t, first.EventTime(), second.EventTime())
}

// TestBuildErrors verifies unknown kinds and unresolved potentials surface
// as configuration errors.
func TestBuildErrors(t *testing.T) {
	t.Run("unknown handler kind", func(t *testing.T) {
		run := buildableRun(t)
		run.Taggers[1].Handler.Kind = "wormhole"
		_, err := builderWithPotential(t).Build(run)
		var cfgErr *eventchain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "wormhole")
	})

	t.Run("unknown generator kind", func(t *testing.T) {
		run := buildableRun(t)
		run.Taggers[1].Generate.Kind = "psychic"
		_, err := builderWithPotential(t).Build(run)
		var cfgErr *eventchain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "psychic")
	})

	t.Run("unregistered potential", func(t *testing.T) {
		_, err := NewBuilder().Build(buildableRun(t))
		var cfgErr *eventchain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "constant")
	})

	t.Run("cell-bounding without cells", func(t *testing.T) {
		run := buildableRun(t)
		run.Taggers[1].Cells = nil
		_, err := builderWithPotential(t).Build(run)
		var cfgErr *eventchain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "cells")
	})

	t.Run("initial index out of range", func(t *testing.T) {
		run := buildableRun(t)
		run.Taggers[0].Handler.Params = Params{"index": 9}
		_, err := builderWithPotential(t).Build(run)
		var cfgErr *eventchain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})
}

// TestCheckStaysOffDisk verifies Check validates a run whose outputs point
// at directories that do not exist.
func TestCheckStaysOffDisk(t *testing.T) {
	run := buildableRun(t)
	run.Outputs = []Output{{Name: "samples", Kind: OutputPositions, Path: "/nonexistent/dir/samples.txt"}}
	run.Snapshots = &Snapshots{Store: "sqlite", Path: "/nonexistent/dir/run.db"}
	run.Taggers[2].Handler.Params = Params{"end_time": 5.0, "output": "samples"}

	assert.NoError(t, builderWithPotential(t).Check(run))
}

// TestRegistrationConflicts verifies duplicate registrations are refused,
// including collisions with the reference kinds.
func TestRegistrationConflicts(t *testing.T) {
	b := NewBuilder()

	err := b.RegisterHandler("chain-start", func(*Context, Params) (handler.EventHandler, error) {
		return nil, nil
	})
	assert.Error(t, err)

	require.NoError(t, b.RegisterPotential("constant", constantPotential(1.0)))
	assert.Error(t, b.RegisterPotential("constant", constantPotential(2.0)))

	require.NoError(t, b.RegisterFactorPotential("coulomb", FactorPotential{}))
	assert.Error(t, b.RegisterFactorPotential("coulomb", FactorPotential{}))
}
