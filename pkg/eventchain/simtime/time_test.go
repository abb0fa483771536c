package simtime

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFromFloat verifies the quotient/remainder split for positive, zero,
// negative, and integral inputs.
func TestFromFloat(t *testing.T) {
	tests := []struct {
		name      string
		in        float64
		quotient  float64
		remainder float64
	}{
		{"positive", 1.5, 1.0, 0.5},
		{"zero", 0.0, 0.0, 0.0},
		{"negative", -0.5, -1.0, 0.5},
		{"integral", 3.0, 3.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromFloat(tt.in)
			assert.Equal(t, tt.quotient, got.Quotient)
			assert.Equal(t, tt.remainder, got.Remainder)
		})
	}
}

// TestFromFloatInfinite verifies that an infinite input maps onto Infinity.
func TestFromFloatInfinite(t *testing.T) {
	got := FromFloat(math.Inf(1))
	assert.True(t, got.IsInfinite())
	assert.True(t, got.Equal(Infinity))
}

// TestAdd verifies remainder re-normalization into [0, 1) for positive and
// negative deltas.
func TestAdd(t *testing.T) {
	tests := []struct {
		name      string
		start     float64
		delta     float64
		quotient  float64
		remainder float64
	}{
		{"carry into quotient", 0.75, 0.5, 1.0, 0.25},
		{"no carry", 1.25, 0.25, 1.0, 0.5},
		{"negative delta borrows", 2.25, -0.5, 1.0, 0.75},
		{"exact unit step", 1.5, 1.0, 2.0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromFloat(tt.start).Add(tt.delta)
			assert.Equal(t, tt.quotient, got.Quotient)
			assert.Equal(t, tt.remainder, got.Remainder)
		})
	}
}

// TestAddInfiniteDelta verifies that adding an infinite displacement yields
// the infinite time.
func TestAddInfiniteDelta(t *testing.T) {
	got := FromFloat(4.5).Add(math.Inf(1))
	assert.True(t, got.Equal(Infinity))
}

// TestSub verifies the float difference between two times.
func TestSub(t *testing.T) {
	a := FromFloat(5.5)
	b := FromFloat(2.25)
	assert.Equal(t, 3.25, a.Sub(b))
	assert.Equal(t, -3.25, b.Sub(a))
}

// TestCompare verifies lexicographic ordering on (quotient, remainder).
func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Time
		want int
	}{
		{"smaller quotient", FromFloat(1.9), FromFloat(2.1), -1},
		{"same quotient smaller remainder", FromFloat(2.1), FromFloat(2.7), -1},
		{"equal", FromFloat(2.5), FromFloat(2.5), 0},
		{"larger", FromFloat(3.0), FromFloat(2.999), 1},
		{"finite before infinite", FromFloat(1e12), Infinity, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

// TestJSONRoundTrip verifies that finite and infinite times survive the JSON
// encoding exactly.
func TestJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Time
	}{
		{"zero", Time{}},
		{"finite", FromFloat(1e15).Add(1e-10)},
		{"infinite", Infinity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			require.NoError(t, err)

			var got Time
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.in.Quotient, got.Quotient)
			assert.Equal(t, tt.in.Remainder, got.Remainder)
		})
	}
}

// TestJSONRejectsMalformed verifies decode errors on non-numeric content.
func TestJSONRejectsMalformed(t *testing.T) {
	var got Time
	assert.Error(t, json.Unmarshal([]byte(`{"quotient":"zero","remainder":"0"}`), &got))
	assert.Error(t, json.Unmarshal([]byte(`{"quotient":"0","remainder":"half"}`), &got))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &got))
}

// TestPrecisionAtLargeTimes verifies the motivation for the representation:
// two displacements that would collapse onto the same plain float64 stay
// distinguishable in quotient/remainder form.
func TestPrecisionAtLargeTimes(t *testing.T) {
	base := FromFloat(1e15)
	a := base.Add(1e-10)
	b := base.Add(2e-10)

	// The plain float64 sums are indistinguishable at this magnitude.
	assert.Equal(t, 1e15+1e-10, 1e15+2e-10)

	assert.True(t, a.Before(b))
	assert.Equal(t, base.Quotient, a.Quotient)
	assert.Equal(t, 1e-10, a.Remainder)
}
