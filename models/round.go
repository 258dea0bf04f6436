package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundState represents the phase of a crash round
type RoundState string

const (
	RoundStateWaiting RoundState = "waiting"
	RoundStateFlying  RoundState = "flying"
	RoundStateCrashed RoundState = "crashed"
)

// Round is one play of the crash game. CrashPoint is private until the round crashes.
// A round closed by recovery without ever reaching its crash point keeps a nil
// CrashedAt and is left out of crash history.
type Round struct {
	ID                string          `db:"id"`
	CrashPoint        decimal.Decimal `db:"crash_point"`
	State             RoundState      `db:"state"`
	CurrentMultiplier decimal.Decimal `db:"-"`
	StartedAt         *time.Time      `db:"started_at"`
	CrashedAt         *time.Time      `db:"crashed_at"`
	ArchivedAt        *time.Time      `db:"archived_at"`
	CreatedAt         time.Time       `db:"created_at"`
}

// Aborted reports whether the round was closed without crashing
func (r *Round) Aborted() bool {
	return r.State == RoundStateCrashed && r.CrashedAt == nil
}

// Clone returns a copy safe to hand to other goroutines
func (r *Round) Clone() *Round {
	c := *r
	return &c
}
