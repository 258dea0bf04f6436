package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ErrClockStarted is returned when Start is called on a clock that already ran
var ErrClockStarted = errors.New("round clock already started")

// ClockConfig controls tick pacing
type ClockConfig struct {
	Interval  time.Duration
	Increment decimal.Decimal
	// OnStall is called when a tick arrives later than twice the interval.
	OnStall func(lag time.Duration)
}

// DefaultClockConfig ticks +0.01 every 50ms
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		Interval:  50 * time.Millisecond,
		Increment: decimal.RequireFromString("0.01"),
	}
}

// RoundClock produces the multiplier sequence of a single round.
// It is finite and not restartable.
type RoundClock struct {
	crashPoint decimal.Decimal
	cfg        ClockConfig
	started    atomic.Bool
}

// NewRoundClock creates a clock that ends exactly at crashPoint
func NewRoundClock(crashPoint decimal.Decimal, cfg ClockConfig) *RoundClock {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultClockConfig().Interval
	}
	if !cfg.Increment.IsPositive() {
		cfg.Increment = DefaultClockConfig().Increment
	}
	return &RoundClock{crashPoint: crashPoint, cfg: cfg}
}

// Start begins ticking. Values are sent on an unbuffered channel so a value is
// fully consumed before the next one is produced. done is closed after the
// terminal tick (equal to the crash point) has been received; if ctx is
// cancelled first, ticks is closed and done stays open.
func (c *RoundClock) Start(ctx context.Context) (<-chan decimal.Decimal, <-chan struct{}, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, nil, ErrClockStarted
	}

	ticks := make(chan decimal.Decimal)
	done := make(chan struct{})

	go c.run(ctx, ticks, done)

	return ticks, done, nil
}

func (c *RoundClock) run(ctx context.Context, ticks chan<- decimal.Decimal, done chan<- struct{}) {
	defer close(ticks)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	current := decimal.NewFromInt(1)
	if current.GreaterThan(c.crashPoint) {
		current = c.crashPoint
	}

	if !c.emit(ctx, ticks, current) {
		return
	}
	last := time.Now()

	for !current.Equal(c.crashPoint) {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if lag := now.Sub(last); lag > 2*c.cfg.Interval {
				log.WithFields(log.Fields{
					"lag":        lag,
					"multiplier": current.StringFixed(2),
				}).Warn("Round clock stalled, resuming without skipping values")
				if c.cfg.OnStall != nil {
					c.cfg.OnStall(lag)
				}
			}
			last = now
		}

		next := current.Add(c.cfg.Increment)
		if next.GreaterThan(c.crashPoint) {
			next = c.crashPoint
		}
		current = next

		if !c.emit(ctx, ticks, current) {
			return
		}
	}

	close(done)
}

func (c *RoundClock) emit(ctx context.Context, ticks chan<- decimal.Decimal, value decimal.Decimal) bool {
	select {
	case ticks <- value:
		return true
	case <-ctx.Done():
		return false
	}
}
