package engine

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// MinCrashPoint is the lowest multiplier a round may crash at.
var MinCrashPoint = decimal.RequireFromString("1.01")

// Band is one weighted range of the crash point distribution
type Band struct {
	Weight float64 `yaml:"weight"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// DefaultBands is the reference distribution: most rounds crash low.
var DefaultBands = []Band{
	{Weight: 0.50, Min: 1.0, Max: 3.0},
	{Weight: 0.30, Min: 3.0, Max: 7.0},
	{Weight: 0.20, Min: 7.0, Max: 15.0},
}

// ValidateBands checks that bands form a usable distribution
func ValidateBands(bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("at least one band is required")
	}

	var total float64
	for i, b := range bands {
		if b.Weight <= 0 {
			return fmt.Errorf("band %d: weight must be positive", i)
		}
		if b.Min < 1.0 {
			return fmt.Errorf("band %d: min must be at least 1.0, got %v", i, b.Min)
		}
		if b.Max <= b.Min {
			return fmt.Errorf("band %d: max %v must exceed min %v", i, b.Max, b.Min)
		}
		total += b.Weight
	}

	if math.Abs(total-1.0) > 1e-9 {
		return fmt.Errorf("band weights must sum to 1, got %v", total)
	}
	return nil
}

// CrashPointGenerator draws crash points from a weighted band distribution.
// It keeps no state beyond the immutable bands; determinism and concurrency
// safety come from the injected source.
type CrashPointGenerator struct {
	bands  []Band
	source func() float64
}

// NewCrashPointGenerator creates a generator. A nil source uses the
// goroutine-safe global math/rand/v2 generator.
func NewCrashPointGenerator(bands []Band, source func() float64) (*CrashPointGenerator, error) {
	if err := ValidateBands(bands); err != nil {
		return nil, fmt.Errorf("invalid crash distribution: %w", err)
	}
	if source == nil {
		source = rand.Float64
	}

	copied := make([]Band, len(bands))
	copy(copied, bands)

	return &CrashPointGenerator{bands: copied, source: source}, nil
}

// NewSeededSource returns a deterministic source for replaying draws.
func NewSeededSource(seed uint64) func() float64 {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Float64
}

// Draw returns a crash point strictly greater than 1.00
func (g *CrashPointGenerator) Draw() decimal.Decimal {
	u := g.source()

	band := g.bands[len(g.bands)-1]
	var cumulative float64
	for _, b := range g.bands {
		cumulative += b.Weight
		if u < cumulative {
			band = b
			break
		}
	}

	value := band.Min + g.source()*(band.Max-band.Min)
	point := decimal.NewFromFloat(value).Truncate(2)

	if point.LessThan(MinCrashPoint) {
		return MinCrashPoint
	}
	return point
}
