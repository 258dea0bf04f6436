package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSource(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestCrashPointGenerator_AlwaysAboveOne(t *testing.T) {
	gen, err := NewCrashPointGenerator(DefaultBands, NewSeededSource(7))
	require.NoError(t, err)

	one := decimal.NewFromInt(1)
	for i := 0; i < 100000; i++ {
		point := gen.Draw()
		require.True(t, point.GreaterThan(one), "draw %d produced %s", i, point)
		require.True(t, point.LessThan(decimal.NewFromInt(15)), "draw %d produced %s", i, point)
	}
}

func TestCrashPointGenerator_ClampsFloor(t *testing.T) {
	gen, err := NewCrashPointGenerator(DefaultBands, fixedSource(0.1, 0.0))
	require.NoError(t, err)

	assert.True(t, gen.Draw().Equal(MinCrashPoint))
}

func TestCrashPointGenerator_BandSelection(t *testing.T) {
	tests := []struct {
		name string
		u    float64
		v    float64
		want string
	}{
		{"low band", 0.25, 0.5, "2.00"},
		{"middle band", 0.60, 0.5, "5.00"},
		{"high band", 0.95, 0.25, "9.00"},
		{"band edge goes to next band", 0.50, 0.0, "3.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewCrashPointGenerator(DefaultBands, fixedSource(tt.u, tt.v))
			require.NoError(t, err)

			got := gen.Draw()
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestCrashPointGenerator_DeterministicForSeed(t *testing.T) {
	a, err := NewCrashPointGenerator(DefaultBands, NewSeededSource(99))
	require.NoError(t, err)
	b, err := NewCrashPointGenerator(DefaultBands, NewSeededSource(99))
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		require.True(t, a.Draw().Equal(b.Draw()))
	}
}

func TestCrashPointGenerator_Distribution(t *testing.T) {
	gen, err := NewCrashPointGenerator(DefaultBands, NewSeededSource(2024))
	require.NoError(t, err)

	const n = 200000
	var low, mid, high int
	three, seven := decimal.NewFromInt(3), decimal.NewFromInt(7)
	for i := 0; i < n; i++ {
		p := gen.Draw()
		switch {
		case p.LessThan(three):
			low++
		case p.LessThan(seven):
			mid++
		default:
			high++
		}
	}

	assert.InDelta(t, 0.50, float64(low)/n, 0.01)
	assert.InDelta(t, 0.30, float64(mid)/n, 0.01)
	assert.InDelta(t, 0.20, float64(high)/n, 0.01)
}

func TestValidateBands(t *testing.T) {
	assert.NoError(t, ValidateBands(DefaultBands))
	assert.Error(t, ValidateBands(nil))
	assert.Error(t, ValidateBands([]Band{{Weight: 0.5, Min: 1, Max: 2}}))
	assert.Error(t, ValidateBands([]Band{{Weight: 1, Min: 0.5, Max: 2}}))
	assert.Error(t, ValidateBands([]Band{{Weight: 1, Min: 3, Max: 3}}))
}
