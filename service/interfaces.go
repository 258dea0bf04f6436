package service

import (
	"context"

	"aviator/engine"
	"aviator/events"
	"aviator/models"

	"github.com/shopspring/decimal"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// GetByID retrieves an account, returning nil when it does not exist
	GetByID(ctx context.Context, id string) (*models.Account, error)

	// Create inserts an account. It returns nil without error when the account already exists.
	Create(ctx context.Context, id string, kind models.AccountKind, initialBalance decimal.Decimal) (*models.Account, error)

	// Debit subtracts amount atomically, failing with ErrInsufficientBalance
	// or ErrAccountNotFound instead of going negative
	Debit(ctx context.Context, id string, amount decimal.Decimal) (*models.Account, error)

	// Credit adds amount atomically, failing with ErrAccountNotFound
	Credit(ctx context.Context, id string, amount decimal.Decimal) (*models.Account, error)
}

// RoundRepository defines the interface for round data access
type RoundRepository interface {
	// Create persists a newly opened round
	Create(ctx context.Context, round *models.Round) error

	// GetByID retrieves a round, returning nil when it does not exist
	GetByID(ctx context.Context, id string) (*models.Round, error)

	// UpdateState stores the round's state and its started/crashed timestamps
	UpdateState(ctx context.Context, round *models.Round) error

	// MarkArchived records that a crashed round has left the cooldown
	MarkArchived(ctx context.Context, id string) error

	// ListRecentCrashed returns crashed rounds, newest first
	ListRecentCrashed(ctx context.Context, limit int) ([]*models.Round, error)

	// ListUnarchived returns rounds that never reached the archive step
	ListUnarchived(ctx context.Context) ([]*models.Round, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	// Create creates a new bet record
	Create(ctx context.Context, bet *models.Bet) error

	// GetByID retrieves a bet, returning nil when it does not exist
	GetByID(ctx context.Context, id string) (*models.Bet, error)

	// Settle moves an active bet to a terminal status. It returns nil without
	// error when the bet is missing or no longer active.
	Settle(ctx context.Context, id string, status models.BetStatus, exitMultiplier decimal.NullDecimal, payout decimal.Decimal) (*models.Bet, error)

	// ListActiveByRound returns the round's bets that are still active
	ListActiveByRound(ctx context.Context, roundID string) ([]*models.Bet, error)

	// GetActiveByAccount returns the account's active bet in a round, or nil
	GetActiveByAccount(ctx context.Context, accountID, roundID string) (*models.Bet, error)

	// ListByAccount returns an account's bets, newest first
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Bet, error)

	// GetStats aggregates an account's settled bets
	GetStats(ctx context.Context, accountID string) (*models.PlayerStats, error)
}

// DepositRepository defines the interface for deposit data access
type DepositRepository interface {
	// Create inserts a pending deposit, failing with ErrDuplicateReference
	Create(ctx context.Context, deposit *models.Deposit) error

	// GetByReference retrieves a deposit, returning nil when it does not exist
	GetByReference(ctx context.Context, currency, reference string) (*models.Deposit, error)

	// RecordConfirmations raises the confirmation count monotonically and moves a
	// pending deposit to confirmed once required is reached. It returns the
	// updated deposit and the status it had before, or nil when it does not exist.
	RecordConfirmations(ctx context.Context, currency, reference string, count, required int) (*models.Deposit, models.DepositStatus, error)

	// TransitionStatus moves a deposit from one status to another. It returns nil
	// without error when the deposit is missing or not in the from status.
	TransitionStatus(ctx context.Context, currency, reference string, from, to models.DepositStatus) (*models.Deposit, error)

	// ListByAccount returns an account's deposits, newest first
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Deposit, error)

	// ListByStatus returns a currency's deposits in a status, oldest first
	ListByStatus(ctx context.Context, currency string, status models.DepositStatus, limit int) ([]*models.Deposit, error)
}

// BalanceHistoryRepository defines the interface for balance history tracking
type BalanceHistoryRepository interface {
	// Record creates a new balance history entry
	Record(ctx context.Context, history *models.BalanceHistory) error

	// GetByAccount returns balance history for an account, newest first
	GetByAccount(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	AccountRepository() AccountRepository
	RoundRepository() RoundRepository
	BetRepository() BetRepository
	DepositRepository() DepositRepository
	BalanceHistoryRepository() BalanceHistoryRepository

	// EventBus returns the publisher whose events are delivered only after Commit
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// AccountService defines the interface for account operations
type AccountService interface {
	// EnsureAccount returns the account, opening it with the starting balance for its kind if needed
	EnsureAccount(ctx context.Context, accountID string) (*models.Account, error)

	// GetBalance returns the account's balance
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// GetBalanceHistory returns the account's most recent balance changes
	GetBalanceHistory(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error)
}

// BetLedger defines the interface for stake and payout bookkeeping
type BetLedger interface {
	// PlaceBet debits stake and records an active bet in a waiting round
	PlaceBet(ctx context.Context, accountID string, stake decimal.Decimal, roundID string, autoCashOut decimal.NullDecimal) (*models.Bet, error)

	// CashOut settles an active bet at multiplier and credits the payout
	CashOut(ctx context.Context, betID string, multiplier decimal.Decimal) (*models.Bet, error)

	// SettleAsLoss settles an active bet with no payout
	SettleAsLoss(ctx context.Context, betID string) (*models.Bet, error)

	// RefundBet returns the stake of a bet whose round never finished
	RefundBet(ctx context.Context, betID string) (*models.Bet, error)

	// ActiveBets returns the round's unsettled bets
	ActiveBets(ctx context.Context, roundID string) ([]*models.Bet, error)

	// GetBet retrieves a bet by ID
	GetBet(ctx context.Context, betID string) (*models.Bet, error)

	// ActiveBetForAccount returns the account's active bet in a round, or nil
	ActiveBetForAccount(ctx context.Context, accountID, roundID string) (*models.Bet, error)

	// GetBetHistory returns an account's bets, newest first
	GetBetHistory(ctx context.Context, accountID string, limit int) ([]*models.Bet, error)

	// GetStats aggregates an account's results
	GetStats(ctx context.Context, accountID string) (*models.PlayerStats, error)
}

// DepositPipeline defines the interface for deposit claims
type DepositPipeline interface {
	// Submit records a pending deposit claim
	Submit(ctx context.Context, accountID string, amount decimal.Decimal, reference string, opts ...DepositOption) (*models.Deposit, error)

	// RecordConfirmation reports the confirmation count observed for a claim
	RecordConfirmation(ctx context.Context, reference string, count int) (*models.Deposit, error)

	// Credit credits a confirmed deposit to its account exactly once
	Credit(ctx context.Context, reference string) (*models.Deposit, error)

	// GetDeposit retrieves a deposit by reference
	GetDeposit(ctx context.Context, reference string) (*models.Deposit, error)

	// ListDeposits returns an account's deposits, newest first
	ListDeposits(ctx context.Context, accountID string, limit int) ([]*models.Deposit, error)

	// PendingCredits returns confirmed deposits that are not credited yet
	PendingCredits(ctx context.Context, limit int) ([]*models.Deposit, error)
}

// RoundService persists round lifecycle transitions and serves round history
type RoundService interface {
	engine.RoundRecorder

	// RecentRounds returns crashed rounds, newest first
	RecentRounds(ctx context.Context, limit int) ([]*models.Round, error)

	// RecoverInterrupted finishes rounds a previous process left behind
	RecoverInterrupted(ctx context.Context) error
}

// RoundEngine is the part of the round state machine the game facade drives
type RoundEngine interface {
	Snapshot() engine.Snapshot
	AcceptBet(place func(roundID string) error) error
	Start() error
	Subscribe(observer engine.Observer) func()
	SubscribeChannel(buffer int) (<-chan engine.RoundEvent, func())
}

// GameService defines the external interface of the game
type GameService interface {
	PlaceBet(ctx context.Context, accountID string, stake decimal.Decimal, opts ...BetOption) (*models.Bet, error)
	RequestCashOut(ctx context.Context, betID string) (*models.Bet, error)
	StartRound() error

	CurrentRound() engine.Snapshot
	RecentRounds(ctx context.Context, limit int) ([]*models.Round, error)
	ActiveBet(ctx context.Context, accountID string) (*models.Bet, error)
	Subscribe(observer engine.Observer) func()
	SubscribeChannel(buffer int) (<-chan engine.RoundEvent, func())

	EnsureAccount(ctx context.Context, accountID string) (*models.Account, error)
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetHistory(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error)
	GetBetHistory(ctx context.Context, accountID string, limit int) ([]*models.Bet, error)
	GetStats(ctx context.Context, accountID string) (*models.PlayerStats, error)

	SubmitDeposit(ctx context.Context, accountID string, amount decimal.Decimal, reference string, opts ...DepositOption) (*models.Deposit, error)
	ConfirmDeposit(ctx context.Context, reference string, confirmations int) (*models.Deposit, error)
	ListDeposits(ctx context.Context, accountID string, limit int) ([]*models.Deposit, error)
}
