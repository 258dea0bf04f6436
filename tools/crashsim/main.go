// Command crashsim draws crash points from a distribution and reports how it
// behaves: band frequencies, the mean crash point and the return to player of
// fixed cash-out targets.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"aviator/config"
	"aviator/engine"

	"github.com/shopspring/decimal"
)

func main() {
	rounds := flag.Int("rounds", 100000, "number of rounds to simulate")
	file := flag.String("distribution", "", "YAML distribution file; empty uses the default bands")
	seed := flag.Uint64("seed", 0, "seed for a reproducible run; 0 draws from the global source")
	flag.Parse()

	bands := engine.DefaultBands
	if *file != "" {
		loaded, err := config.LoadBands(*file)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		bands = loaded
	}

	var source func() float64
	if *seed != 0 {
		source = engine.NewSeededSource(*seed)
	}
	generator, err := engine.NewCrashPointGenerator(bands, source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println("=== Crash Point Distribution Analysis ===")
	fmt.Printf("Rounds: %d\n\n", *rounds)

	points := make([]decimal.Decimal, *rounds)
	for i := range points {
		points[i] = generator.Draw()
	}

	analyzeBands(bands, points)
	analyzeTargets(points, []string{"1.10", "1.50", "2.00", "3.00", "5.00", "10.00"})
}

// analyzeBands compares observed band frequencies with the configured weights
func analyzeBands(bands []engine.Band, points []decimal.Decimal) {
	counts := make([]int, len(bands))
	sum := decimal.Zero
	for _, p := range points {
		sum = sum.Add(p)
		f := p.InexactFloat64()
		for i, b := range bands {
			if f >= b.Min && (f < b.Max || i == len(bands)-1) {
				counts[i]++
				break
			}
		}
	}

	n := float64(len(points))
	fmt.Println("Band frequencies:")
	for i, b := range bands {
		actual := float64(counts[i]) / n
		bar := strings.Repeat("█", int(actual*40))
		fmt.Printf("  [%6.2f-%6.2f) expected %5.1f%% actual %5.1f%% (%+.2f) %s\n",
			b.Min, b.Max, b.Weight*100, actual*100, (actual-b.Weight)*100, bar)
	}

	if len(points) > 0 {
		mean := sum.Div(decimal.NewFromInt(int64(len(points)))).StringFixed(2)
		fmt.Printf("\nMean crash point: %sx\n\n", mean)
	}
}

// analyzeTargets reports the win rate and RTP of always cashing out at target
func analyzeTargets(points []decimal.Decimal, targets []string) {
	fmt.Println("Fixed cash-out targets (stake 1.00):")
	for _, raw := range targets {
		target := decimal.RequireFromString(raw)
		wins := 0
		returned := decimal.Zero
		for _, p := range points {
			// the crash tick itself settles as a loss
			if target.LessThan(p) {
				wins++
				returned = returned.Add(target)
			}
		}

		n := float64(len(points))
		rtp := returned.InexactFloat64() / n
		fmt.Printf("  %6sx  win rate %6.2f%%  RTP %7.2f%%\n", target.StringFixed(2), float64(wins)/n*100, rtp*100)
	}
}
