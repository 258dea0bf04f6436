package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"aviator/engine"
	"aviator/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// RoundView exposes the engine's live view of the current round
type RoundView interface {
	Snapshot() engine.Snapshot
}

// AutoCashOut cashes bets out when the multiplier reaches their target.
// It observes the round engine and runs inside the tick path. A target is
// honoured on the first tick at or above it, unless that tick is the crash:
// targets crossed between the last tick and the crash point lose, exactly as
// a manual cash-out at that instant would.
type AutoCashOut struct {
	ledger BetLedger
	rounds RoundView

	mu      sync.Mutex
	roundID string
	pending []*models.Bet // sorted by target, lowest first
}

// NewAutoCashOut creates an auto cash-out evaluator
func NewAutoCashOut(ledger BetLedger, rounds RoundView) *AutoCashOut {
	return &AutoCashOut{ledger: ledger, rounds: rounds}
}

// OnRoundStart loads the round's bets that carry a target
func (a *AutoCashOut) OnRoundStart(ctx context.Context, roundID string) {
	bets, err := a.ledger.ActiveBets(ctx, roundID)
	if err != nil {
		log.WithFields(log.Fields{
			"roundID": roundID,
			"error":   err,
		}).Error("Failed to load auto cash-out targets")
	}

	var pending []*models.Bet
	for _, bet := range bets {
		if bet.AutoCashOut.Valid {
			pending = append(pending, bet)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].AutoCashOut.Decimal.LessThan(pending[j].AutoCashOut.Decimal)
	})

	a.mu.Lock()
	a.roundID = roundID
	a.pending = pending
	a.mu.Unlock()
}

// OnTick cashes out every bet whose target the multiplier has reached
func (a *AutoCashOut) OnTick(ctx context.Context, roundID string, multiplier decimal.Decimal) {
	a.mu.Lock()
	if a.roundID != roundID {
		a.mu.Unlock()
		return
	}
	var due []*models.Bet
	for len(a.pending) > 0 && a.pending[0].AutoCashOut.Decimal.LessThanOrEqual(multiplier) {
		due = append(due, a.pending[0])
		a.pending = a.pending[1:]
	}
	a.mu.Unlock()

	if len(due) > 0 && a.crashed(roundID) {
		log.WithFields(log.Fields{
			"roundID": roundID,
			"bets":    len(due),
		}).Debug("Auto cash-out targets reached only at the crash tick")
		return
	}

	for _, bet := range due {
		target := bet.AutoCashOut.Decimal
		_, err := a.ledger.CashOut(ctx, bet.ID, target)
		switch {
		case err == nil:
			log.WithFields(log.Fields{
				"betID":  bet.ID,
				"target": target.StringFixed(2),
			}).Debug("Auto cash-out")
		case errors.Is(err, models.ErrBetNotActive), errors.Is(err, models.ErrRoundAlreadyCrashed):
			// cashed out by hand, or the target was the crash point itself
		default:
			log.WithFields(log.Fields{
				"betID": bet.ID,
				"error": err,
			}).Error("Auto cash-out failed")
		}
	}
}

// OnCrash drops targets that were never reached
func (a *AutoCashOut) OnCrash(_ context.Context, roundID string, _ decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.roundID == roundID {
		a.pending = nil
	}
}

// crashed reports whether the engine already marked roundID as crashed,
// which it does before broadcasting the terminal tick
func (a *AutoCashOut) crashed(roundID string) bool {
	snap := a.rounds.Snapshot()
	return snap.RoundID == roundID && snap.State == models.RoundStateCrashed
}
