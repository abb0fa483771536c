package lifting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avandermeer/eventchain/pkg/eventchain/rng"
)

func TestInsideFirstSingleIncoming(t *testing.T) {
	// One incoming entry must win no matter where the position lands.
	l := NewInsideFirst[string](rng.New(1))
	l.Insert(0.4, "x", false)
	l.Insert(-0.4, "y", false)
	l.Insert(0.3, "z", true)

	id, err := l.ActiveIdentifier()
	require.NoError(t, err)
	assert.Equal(t, "y", id)
}

func TestInsideFirstUnready(t *testing.T) {
	l := NewInsideFirst[string](rng.New(1))
	l.Insert(0.4, "x", false)
	l.Insert(-0.4, "y", false)

	_, err := l.ActiveIdentifier()
	require.ErrorIs(t, err, ErrUnready)
}

func TestInsideFirstEmptyIncoming(t *testing.T) {
	l := NewInsideFirst[string](rng.New(1))
	l.Insert(0.5, "act", true)

	_, err := l.ActiveIdentifier()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestInsideFirstSelection(t *testing.T) {
	src := rng.New(42)
	twin := rng.New(42)

	l := NewInsideFirst[string](src)
	l.Insert(0.25, "pre", false)
	l.Insert(0.75, "act", true)
	l.Insert(-0.2, "a", false)
	l.Insert(-0.3, "b", false)
	l.Insert(-0.5, "c", false)

	// Replay the draw the table made for the active insert.
	position := 0.25 + twin.Uniform(0.0, 0.75)
	want := "c"
	switch {
	case position <= 0.2:
		want = "a"
	case position <= 0.5:
		want = "b"
	}

	id, err := l.ActiveIdentifier()
	require.NoError(t, err)
	assert.Equal(t, want, id)
}

func TestInsideFirstPositionShift(t *testing.T) {
	// A positive rate inserted before the active unit moves the selection
	// position by its full width; after the active unit it does not.
	shifted := NewInsideFirst[string](rng.New(3))
	shifted.Insert(1.0, "pre", false)
	shifted.Insert(1e-9, "act", true)
	shifted.Insert(-0.5, "a", false)
	shifted.Insert(-0.5, "b", false)

	id, err := shifted.ActiveIdentifier()
	require.NoError(t, err)
	assert.Equal(t, "b", id)

	unshifted := NewInsideFirst[string](rng.New(3))
	unshifted.Insert(1e-9, "act", true)
	unshifted.Insert(1.0, "post", false)
	unshifted.Insert(-0.5, "a", false)
	unshifted.Insert(-0.5, "b", false)

	id, err = unshifted.ActiveIdentifier()
	require.NoError(t, err)
	assert.Equal(t, "a", id)
}

func TestInsideFirstActiveNegativePanics(t *testing.T) {
	l := NewInsideFirst[string](rng.New(1))
	require.Panics(t, func() { l.Insert(-0.4, "act", true) })
}

func TestInsideFirstReset(t *testing.T) {
	l := NewInsideFirst[string](rng.New(7))
	l.Insert(0.4, "act", true)
	l.Insert(-0.4, "y", false)

	_, err := l.ActiveIdentifier()
	require.NoError(t, err)

	l.Reset()
	_, err = l.ActiveIdentifier()
	require.ErrorIs(t, err, ErrUnready)

	l.Insert(0.2, "act", true)
	l.Insert(-0.2, "z", false)
	id, err := l.ActiveIdentifier()
	require.NoError(t, err)
	assert.Equal(t, "z", id)
}

func TestRatioSelection(t *testing.T) {
	src := rng.New(9)
	twin := rng.New(9)

	l := NewRatio[string](src)
	l.Insert(1.0, "act", true)
	l.Insert(-0.25, "a", false)
	l.Insert(-0.75, "b", false)

	// The insert consumed one draw, the selection consumes the next.
	twin.Uniform(0.0, 1.0)
	draw := twin.Uniform(0.0, 1.0)
	want := "b"
	if draw <= 0.25 {
		want = "a"
	}

	id, err := l.ActiveIdentifier()
	require.NoError(t, err)
	assert.Equal(t, want, id)
}

func TestRatioUnbalanced(t *testing.T) {
	l := NewRatio[string](rng.New(9))
	l.Insert(1.0, "act", true)
	l.Insert(-0.4, "a", false)

	_, err := l.ActiveIdentifier()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbalanced")
}

func TestRatioUnready(t *testing.T) {
	l := NewRatio[string](rng.New(9))
	l.Insert(-0.4, "a", false)

	_, err := l.ActiveIdentifier()
	require.ErrorIs(t, err, ErrUnready)
}
