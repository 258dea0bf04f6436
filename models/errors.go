package models

import "errors"

// Caller-visible outcomes of ledger and deposit operations. None are fatal.
var (
	ErrInvalidStake          = errors.New("stake must be positive")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrRoundNotAcceptingBets = errors.New("round is not accepting bets")
	ErrBetNotActive          = errors.New("bet is not active")
	ErrRoundAlreadyCrashed   = errors.New("round already crashed")
	ErrRoundNotFlying        = errors.New("round has not started")
	ErrInvalidMultiplier     = errors.New("multiplier must be at least 1.00")
	ErrBetNotFound           = errors.New("bet not found")
	ErrRoundNotFound         = errors.New("round not found")
	ErrAccountNotFound       = errors.New("account not found")

	ErrInvalidAmount      = errors.New("deposit amount must be positive")
	ErrInvalidReference   = errors.New("external reference is required")
	ErrDuplicateReference = errors.New("external reference already used")
	ErrUnknownReference   = errors.New("unknown external reference")
	ErrNotConfirmed       = errors.New("deposit is not confirmed")
	ErrAlreadyCredited    = errors.New("deposit already credited")
)
