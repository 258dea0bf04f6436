package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClock(increment string) ClockConfig {
	return ClockConfig{Interval: time.Millisecond, Increment: decimal.RequireFromString(increment)}
}

func collectTicks(t *testing.T, clock *RoundClock) ([]string, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ticks, done, err := clock.Start(ctx)
	require.NoError(t, err)

	var values []string
	for v := range ticks {
		values = append(values, v.StringFixed(2))
	}

	select {
	case <-done:
		return values, true
	default:
		return values, false
	}
}

func TestRoundClock_EndsExactlyAtCrashPoint(t *testing.T) {
	clock := NewRoundClock(decimal.RequireFromString("1.05"), fastClock("0.01"))

	values, completed := collectTicks(t, clock)

	assert.True(t, completed)
	assert.Equal(t, []string{"1.00", "1.01", "1.02", "1.03", "1.04", "1.05"}, values)
}

func TestRoundClock_TerminalTickDoesNotOvershoot(t *testing.T) {
	clock := NewRoundClock(decimal.RequireFromString("1.10"), fastClock("0.03"))

	values, completed := collectTicks(t, clock)

	assert.True(t, completed)
	assert.Equal(t, []string{"1.00", "1.03", "1.06", "1.09", "1.10"}, values)
}

func TestRoundClock_MonotonicallyIncreasing(t *testing.T) {
	clock := NewRoundClock(decimal.RequireFromString("1.50"), fastClock("0.01"))

	values, completed := collectTicks(t, clock)
	require.True(t, completed)
	require.Len(t, values, 51)

	for i := 1; i < len(values); i++ {
		prev := decimal.RequireFromString(values[i-1])
		cur := decimal.RequireFromString(values[i])
		assert.True(t, cur.GreaterThan(prev), "tick %d (%s) not above %s", i, cur, prev)
	}
	assert.Equal(t, "1.50", values[len(values)-1])
}

func TestRoundClock_NotRestartable(t *testing.T) {
	clock := NewRoundClock(decimal.RequireFromString("1.02"), fastClock("0.01"))

	_, completed := collectTicks(t, clock)
	require.True(t, completed)

	_, _, err := clock.Start(context.Background())
	assert.ErrorIs(t, err, ErrClockStarted)
}

func TestRoundClock_CancelClosesTicksWithoutDone(t *testing.T) {
	clock := NewRoundClock(decimal.RequireFromString("14.00"), ClockConfig{
		Interval:  5 * time.Millisecond,
		Increment: decimal.RequireFromString("0.01"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	ticks, done, err := clock.Start(ctx)
	require.NoError(t, err)

	first := <-ticks
	assert.Equal(t, "1.00", first.StringFixed(2))
	cancel()

	for range ticks {
	}

	select {
	case <-done:
		t.Fatal("done must not close when the clock is cancelled")
	default:
	}
}

func TestRoundClock_SlowConsumerNeverSkipsValues(t *testing.T) {
	var stalls int
	clock := NewRoundClock(decimal.RequireFromString("1.04"), ClockConfig{
		Interval:  time.Millisecond,
		Increment: decimal.RequireFromString("0.01"),
		OnStall:   func(time.Duration) { stalls++ },
	})

	ticks, done, err := clock.Start(context.Background())
	require.NoError(t, err)

	var values []string
	for v := range ticks {
		values = append(values, v.StringFixed(2))
		time.Sleep(10 * time.Millisecond)
	}

	<-done
	assert.Equal(t, []string{"1.00", "1.01", "1.02", "1.03", "1.04"}, values)
	assert.Greater(t, stalls, 0)
}
