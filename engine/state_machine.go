package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aviator/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ErrRoundNotWaiting is returned by Start when there is no round to launch
var ErrRoundNotWaiting = errors.New("no round is waiting to start")

// CrashPointSource draws the crash point of a new round
type CrashPointSource interface {
	Draw() decimal.Decimal
}

// RoundRecorder persists round transitions
type RoundRecorder interface {
	// RecordCreated stores a freshly opened round before it accepts bets
	RecordCreated(ctx context.Context, round *models.Round) error

	// RecordStarted marks the round as flying
	RecordStarted(ctx context.Context, round *models.Round) error

	// RecordCrashed marks the round as crashed once its losses are settled
	RecordCrashed(ctx context.Context, round *models.Round, lostBets int) error

	// RecordArchived moves the round into history after cooldown
	RecordArchived(ctx context.Context, round *models.Round) error
}

// LossSettler resolves bets still active when their round crashes
type LossSettler interface {
	ActiveBets(ctx context.Context, roundID string) ([]*models.Bet, error)
	SettleAsLoss(ctx context.Context, betID string) (*models.Bet, error)
}

// Config controls round pacing
type Config struct {
	Clock    ClockConfig
	Cooldown time.Duration
	// BettingWindow starts a waiting round automatically; zero waits for Start.
	BettingWindow time.Duration
	// RetryDelay is the pause after a failed persistence step.
	RetryDelay time.Duration
}

// Snapshot is the client-visible view of the current round. CrashPoint is
// zero until the round has crashed.
type Snapshot struct {
	RoundID    string            `json:"roundId"`
	State      models.RoundState `json:"state"`
	Multiplier decimal.Decimal   `json:"multiplier"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	CrashPoint decimal.Decimal   `json:"crashPoint"`
}

// Engine sequences rounds: waiting -> flying -> crashed -> (cooldown) -> new round.
// A single Run goroutine drives it; every other method is safe for concurrent use.
type Engine struct {
	cfg         Config
	points      CrashPointSource
	recorder    RoundRecorder
	settler     LossSettler
	broadcaster *Broadcaster

	mu      sync.RWMutex
	round   *models.Round
	startCh chan struct{}
}

// New creates an engine. Call Run to begin sequencing rounds.
func New(cfg Config, points CrashPointSource, recorder RoundRecorder, settler LossSettler) *Engine {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Engine{
		cfg:         cfg,
		points:      points,
		recorder:    recorder,
		settler:     settler,
		broadcaster: NewBroadcaster(),
		startCh:     make(chan struct{}, 1),
	}
}

// Subscribe registers an observer for round notifications
func (e *Engine) Subscribe(o Observer) func() {
	return e.broadcaster.Subscribe(o)
}

// SubscribeChannel registers a channel subscriber for streaming adapters
func (e *Engine) SubscribeChannel(buffer int) (<-chan RoundEvent, func()) {
	return e.broadcaster.SubscribeChannel(buffer)
}

// Snapshot returns the current round as clients may see it
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.round == nil {
		return Snapshot{}
	}

	s := Snapshot{
		RoundID:    e.round.ID,
		State:      e.round.State,
		Multiplier: e.round.CurrentMultiplier,
		StartedAt:  e.round.StartedAt,
	}
	if e.round.State == models.RoundStateCrashed {
		s.CrashPoint = e.round.CrashPoint
	}
	return s
}

// AcceptBet runs place while the current round is guaranteed to stay in
// waiting. The waiting -> flying transition blocks until place returns.
func (e *Engine) AcceptBet(place func(roundID string) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.round == nil || e.round.State != models.RoundStateWaiting {
		return models.ErrRoundNotAcceptingBets
	}
	return place(e.round.ID)
}

// Start signals the waiting round to take off
func (e *Engine) Start() error {
	e.mu.RLock()
	waiting := e.round != nil && e.round.State == models.RoundStateWaiting
	e.mu.RUnlock()

	if !waiting {
		return ErrRoundNotWaiting
	}

	select {
	case e.startCh <- struct{}{}:
	default:
	}
	return nil
}

// Run sequences rounds until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"tickInterval":  e.cfg.Clock.Interval,
		"cooldown":      e.cfg.Cooldown,
		"bettingWindow": e.cfg.BettingWindow,
	}).Info("Round engine started")

	for {
		round, err := e.openRound(ctx)
		if err != nil {
			log.Info("Round engine shutting down (context cancelled)...")
			return nil
		}

		if !e.waitForStart(ctx) {
			log.Info("Round engine shutting down (context cancelled)...")
			return nil
		}

		if !e.fly(ctx, round) {
			log.WithField("roundID", round.ID).Warn("Round engine stopped mid-flight")
			return nil
		}

		e.crash(ctx)

		select {
		case <-ctx.Done():
			log.Info("Round engine shutting down (context cancelled)...")
			return nil
		case <-time.After(e.cfg.Cooldown):
		}

		e.archive(ctx)
	}
}

// openRound draws a crash point and persists the new round, retrying until
// it succeeds or ctx is done.
func (e *Engine) openRound(ctx context.Context) (*models.Round, error) {
	round := &models.Round{
		ID:                uuid.NewString(),
		CrashPoint:        e.points.Draw(),
		State:             models.RoundStateWaiting,
		CurrentMultiplier: decimal.NewFromInt(1),
		CreatedAt:         time.Now().UTC(),
	}

	for {
		err := e.recorder.RecordCreated(ctx, round.Clone())
		if err == nil {
			break
		}
		log.WithFields(log.Fields{
			"roundID": round.ID,
			"error":   err,
		}).Error("Failed to record new round, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.cfg.RetryDelay):
		}
	}

	// drop a start signal left over from the previous round
	select {
	case <-e.startCh:
	default:
	}

	e.mu.Lock()
	e.round = round
	e.mu.Unlock()

	log.WithField("roundID", round.ID).Info("Round open for bets")
	return round, nil
}

func (e *Engine) waitForStart(ctx context.Context) bool {
	var window <-chan time.Time
	if e.cfg.BettingWindow > 0 {
		timer := time.NewTimer(e.cfg.BettingWindow)
		defer timer.Stop()
		window = timer.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-e.startCh:
	case <-window:
	}
	return true
}

// fly runs the clock; it reports whether the round reached its crash point
func (e *Engine) fly(ctx context.Context, round *models.Round) bool {
	e.mu.Lock()
	now := time.Now().UTC()
	e.round.State = models.RoundStateFlying
	e.round.StartedAt = &now
	started := e.round.Clone()
	e.mu.Unlock()

	if err := e.recorder.RecordStarted(ctx, started); err != nil {
		log.WithFields(log.Fields{
			"roundID": round.ID,
			"error":   err,
		}).Error("Failed to record round start")
	}

	log.WithField("roundID", round.ID).Info("Round flying")
	e.broadcaster.RoundStart(ctx, round.ID)

	clock := NewRoundClock(round.CrashPoint, e.cfg.Clock)
	ticks, done, err := clock.Start(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to start round clock")
		return false
	}

	for m := range ticks {
		e.mu.Lock()
		e.round.CurrentMultiplier = m
		if m.Equal(e.round.CrashPoint) {
			crashedAt := time.Now().UTC()
			e.round.State = models.RoundStateCrashed
			e.round.CrashedAt = &crashedAt
		}
		e.mu.Unlock()

		e.broadcaster.Tick(ctx, round.ID, m)
	}

	select {
	case <-done:
		return true
	default:
		return false
	}
}

const settleTimeout = 30 * time.Second

// crash force-settles the round's remaining bets, records the crash and
// notifies observers. It runs to completion even during shutdown.
func (e *Engine) crash(ctx context.Context) {
	e.mu.Lock()
	e.round.CurrentMultiplier = e.round.CrashPoint
	crashed := e.round.Clone()
	e.mu.Unlock()

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	lost, err := e.settleLosses(settleCtx, crashed.ID)
	if err != nil {
		log.WithFields(log.Fields{
			"roundID": crashed.ID,
			"error":   err,
		}).Error("Failed to settle losses for crashed round")
	}

	if err := e.recorder.RecordCrashed(settleCtx, crashed, lost); err != nil {
		log.WithFields(log.Fields{
			"roundID": crashed.ID,
			"error":   err,
		}).Error("Failed to record round crash")
	}

	log.WithFields(log.Fields{
		"roundID":    crashed.ID,
		"crashPoint": crashed.CrashPoint.StringFixed(2),
		"lostBets":   lost,
	}).Info("Round crashed")

	e.broadcaster.Crash(ctx, crashed.ID, crashed.CrashPoint)
}

func (e *Engine) settleLosses(ctx context.Context, roundID string) (int, error) {
	var lost int
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		bets, err := e.settler.ActiveBets(ctx, roundID)
		if err != nil {
			lastErr = fmt.Errorf("failed to list active bets: %w", err)
			time.Sleep(e.cfg.RetryDelay)
			continue
		}

		lastErr = nil
		for _, bet := range bets {
			_, err := e.settler.SettleAsLoss(ctx, bet.ID)
			switch {
			case err == nil:
				lost++
			case errors.Is(err, models.ErrBetNotActive):
				log.WithField("betID", bet.ID).Debug("Bet cashed out before crash settlement")
			default:
				lastErr = fmt.Errorf("failed to settle bet %s: %w", bet.ID, err)
			}
		}
		if lastErr == nil {
			return lost, nil
		}
		time.Sleep(e.cfg.RetryDelay)
	}

	return lost, lastErr
}

func (e *Engine) archive(ctx context.Context) {
	e.mu.RLock()
	round := e.round.Clone()
	e.mu.RUnlock()

	now := time.Now().UTC()
	round.ArchivedAt = &now

	if err := e.recorder.RecordArchived(ctx, round); err != nil {
		log.WithFields(log.Fields{
			"roundID": round.ID,
			"error":   err,
		}).Error("Failed to archive round")
	}
}
