package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus represents the lifecycle state of a bet
type BetStatus string

const (
	BetStatusActive    BetStatus = "active"
	BetStatusCashedOut BetStatus = "cashed_out"
	BetStatusLost      BetStatus = "lost"
)

// IsTerminal reports whether the status can no longer change
func (s BetStatus) IsTerminal() bool {
	return s == BetStatusCashedOut || s == BetStatusLost
}

// Bet represents a stake placed on a single round
type Bet struct {
	ID             string              `db:"id"`
	RoundID        string              `db:"round_id"`
	AccountID      string              `db:"account_id"`
	Stake          decimal.Decimal     `db:"stake"`
	Status         BetStatus           `db:"status"`
	ExitMultiplier decimal.NullDecimal `db:"exit_multiplier"`
	Payout         decimal.Decimal     `db:"payout"`
	AutoCashOut    decimal.NullDecimal `db:"auto_cash_out"`
	CreatedAt      time.Time           `db:"created_at"`
	SettledAt      *time.Time          `db:"settled_at"`
}

// PayoutFor computes stake * multiplier. Both carry two decimal places, so
// the product is exact in four.
func PayoutFor(stake, multiplier decimal.Decimal) decimal.Decimal {
	return stake.Mul(multiplier)
}
