package service

import (
	"context"
	"fmt"

	"aviator/engine"
	"aviator/models"

	"github.com/shopspring/decimal"
)

const (
	// DefaultHistoryLimit caps history listings when callers pass no limit
	DefaultHistoryLimit = 50
	// DefaultRecentRounds is the number of crashed rounds listed by default
	DefaultRecentRounds = 20
	maxListLimit        = 500
)

// BetOption customizes a bet placement
type BetOption func(*betOptions)

type betOptions struct {
	autoCashOut decimal.NullDecimal
}

// WithAutoCashOut cashes the bet out automatically once the multiplier reaches target
func WithAutoCashOut(target decimal.Decimal) BetOption {
	return func(o *betOptions) {
		o.autoCashOut = decimal.NewNullDecimal(target)
	}
}

type gameService struct {
	engine   RoundEngine
	accounts AccountService
	ledger   BetLedger
	deposits DepositPipeline
	rounds   RoundService
}

// NewGameService creates the facade every adapter talks to
func NewGameService(engine RoundEngine, accounts AccountService, ledger BetLedger, deposits DepositPipeline, rounds RoundService) GameService {
	return &gameService{
		engine:   engine,
		accounts: accounts,
		ledger:   ledger,
		deposits: deposits,
		rounds:   rounds,
	}
}

// PlaceBet stakes on the current round. The round cannot take off while the placement is in flight.
func (s *gameService) PlaceBet(ctx context.Context, accountID string, stake decimal.Decimal, opts ...BetOption) (*models.Bet, error) {
	var options betOptions
	for _, opt := range opts {
		opt(&options)
	}

	var bet *models.Bet
	err := s.engine.AcceptBet(func(roundID string) error {
		var err error
		bet, err = s.ledger.PlaceBet(ctx, accountID, stake, roundID, options.autoCashOut)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bet, nil
}

// RequestCashOut cashes a bet out at the live multiplier
func (s *gameService) RequestCashOut(ctx context.Context, betID string) (*models.Bet, error) {
	bet, err := s.ledger.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet.Status != models.BetStatusActive {
		return nil, fmt.Errorf("%w: bet %s is %s", models.ErrBetNotActive, betID, bet.Status)
	}

	snap := s.engine.Snapshot()
	if snap.RoundID != bet.RoundID {
		return nil, fmt.Errorf("%w: round %s", models.ErrRoundAlreadyCrashed, bet.RoundID)
	}

	switch snap.State {
	case models.RoundStateWaiting:
		return nil, fmt.Errorf("%w: round %s", models.ErrRoundNotFlying, bet.RoundID)
	case models.RoundStateCrashed:
		return nil, fmt.Errorf("%w: round %s", models.ErrRoundAlreadyCrashed, bet.RoundID)
	}

	return s.ledger.CashOut(ctx, betID, snap.Multiplier)
}

// StartRound launches the waiting round
func (s *gameService) StartRound() error {
	return s.engine.Start()
}

// CurrentRound returns the live round view
func (s *gameService) CurrentRound() engine.Snapshot {
	return s.engine.Snapshot()
}

// RecentRounds returns crashed rounds, newest first
func (s *gameService) RecentRounds(ctx context.Context, limit int) ([]*models.Round, error) {
	return s.rounds.RecentRounds(ctx, clampLimit(limit, DefaultRecentRounds))
}

// ActiveBet returns the account's unsettled bet in the current round, or nil
func (s *gameService) ActiveBet(ctx context.Context, accountID string) (*models.Bet, error) {
	snap := s.engine.Snapshot()
	if snap.RoundID == "" {
		return nil, nil
	}
	return s.ledger.ActiveBetForAccount(ctx, accountID, snap.RoundID)
}

// Subscribe registers a round observer
func (s *gameService) Subscribe(observer engine.Observer) func() {
	return s.engine.Subscribe(observer)
}

// SubscribeChannel registers a buffered channel subscriber
func (s *gameService) SubscribeChannel(buffer int) (<-chan engine.RoundEvent, func()) {
	return s.engine.SubscribeChannel(buffer)
}

func (s *gameService) EnsureAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return s.accounts.EnsureAccount(ctx, accountID)
}

func (s *gameService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.accounts.GetBalance(ctx, accountID)
}

func (s *gameService) GetHistory(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error) {
	return s.accounts.GetBalanceHistory(ctx, accountID, clampLimit(limit, DefaultHistoryLimit))
}

func (s *gameService) GetBetHistory(ctx context.Context, accountID string, limit int) ([]*models.Bet, error) {
	return s.ledger.GetBetHistory(ctx, accountID, clampLimit(limit, DefaultHistoryLimit))
}

func (s *gameService) GetStats(ctx context.Context, accountID string) (*models.PlayerStats, error) {
	return s.ledger.GetStats(ctx, accountID)
}

// SubmitDeposit records a pending deposit claim
func (s *gameService) SubmitDeposit(ctx context.Context, accountID string, amount decimal.Decimal, reference string, opts ...DepositOption) (*models.Deposit, error) {
	return s.deposits.Submit(ctx, accountID, amount, reference, opts...)
}

// ConfirmDeposit records confirmations and credits the deposit once it is confirmed
func (s *gameService) ConfirmDeposit(ctx context.Context, reference string, confirmations int) (*models.Deposit, error) {
	return confirmAndCredit(ctx, s.deposits, reference, confirmations)
}

func (s *gameService) ListDeposits(ctx context.Context, accountID string, limit int) ([]*models.Deposit, error) {
	return s.deposits.ListDeposits(ctx, accountID, clampLimit(limit, DefaultHistoryLimit))
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
