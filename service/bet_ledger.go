package service

import (
	"context"
	"fmt"

	"aviator/events"
	"aviator/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var one = decimal.NewFromInt(1)

type betLedger struct {
	uowFactory UnitOfWorkFactory
}

// NewBetLedger creates a new bet ledger
func NewBetLedger(uowFactory UnitOfWorkFactory) BetLedger {
	return &betLedger{uowFactory: uowFactory}
}

// PlaceBet debits the stake and records an active bet. The round must still be waiting.
func (s *betLedger) PlaceBet(ctx context.Context, accountID string, stake decimal.Decimal, roundID string, autoCashOut decimal.NullDecimal) (*models.Bet, error) {
	if !stake.IsPositive() || !hasCents(stake) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidStake, stake)
	}
	if autoCashOut.Valid && (autoCashOut.Decimal.LessThanOrEqual(one) || !hasCents(autoCashOut.Decimal)) {
		return nil, fmt.Errorf("%w: auto cash-out target %s", models.ErrInvalidMultiplier, autoCashOut.Decimal)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round, err := uow.RoundRepository().GetByID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoundNotFound, roundID)
	}
	if round.State != models.RoundStateWaiting {
		return nil, fmt.Errorf("%w: round %s is %s", models.ErrRoundNotAcceptingBets, roundID, round.State)
	}

	account, err := uow.AccountRepository().Debit(ctx, accountID, stake)
	if err != nil {
		return nil, err
	}

	bet := &models.Bet{
		ID:          uuid.NewString(),
		RoundID:     roundID,
		AccountID:   accountID,
		Stake:       stake,
		Status:      models.BetStatusActive,
		Payout:      decimal.Zero,
		AutoCashOut: autoCashOut,
	}
	if err := uow.BetRepository().Create(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	history := relatedTo(balanceChange(account, stake.Neg(), models.TransactionTypeBetPlaced, map[string]any{
		"round_id": roundID,
		"stake":    stake.StringFixed(2),
	}), bet.ID, models.RelatedTypeBet)
	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.BetPlacedEvent{
		BetID:       bet.ID,
		RoundID:     bet.RoundID,
		AccountID:   bet.AccountID,
		Stake:       bet.Stake,
		AutoCashOut: bet.AutoCashOut,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":     bet.ID,
		"roundID":   roundID,
		"accountID": accountID,
		"stake":     stake.StringFixed(2),
	}).Debug("Bet placed")

	return bet, nil
}

// CashOut settles an active bet at multiplier. The multiplier must be below
// the round's crash point; reaching it means the bet has already lost.
func (s *betLedger) CashOut(ctx context.Context, betID string, multiplier decimal.Decimal) (*models.Bet, error) {
	if multiplier.LessThan(one) || !hasCents(multiplier) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidMultiplier, multiplier)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrBetNotFound, betID)
	}
	if bet.Status != models.BetStatusActive {
		return nil, fmt.Errorf("%w: bet %s is %s", models.ErrBetNotActive, betID, bet.Status)
	}

	round, err := uow.RoundRepository().GetByID(ctx, bet.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoundNotFound, bet.RoundID)
	}
	if round.State == models.RoundStateCrashed || multiplier.GreaterThanOrEqual(round.CrashPoint) {
		return nil, fmt.Errorf("%w: round %s", models.ErrRoundAlreadyCrashed, round.ID)
	}

	return s.payOut(ctx, uow, bet, multiplier, models.PayoutFor(bet.Stake, multiplier), nil)
}

// RefundBet returns the stake of a bet whose round was interrupted, recorded as a cash-out at 1.00
func (s *betLedger) RefundBet(ctx context.Context, betID string) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrBetNotFound, betID)
	}

	return s.payOut(ctx, uow, bet, one, bet.Stake, map[string]any{"refund": true})
}

// payOut settles bet as cashed out and credits payout inside uow, then commits
func (s *betLedger) payOut(ctx context.Context, uow UnitOfWork, bet *models.Bet, multiplier, payout decimal.Decimal, metadata map[string]any) (*models.Bet, error) {
	settled, err := uow.BetRepository().Settle(ctx, bet.ID, models.BetStatusCashedOut, decimal.NewNullDecimal(multiplier), payout)
	if err != nil {
		return nil, fmt.Errorf("failed to settle bet: %w", err)
	}
	if settled == nil {
		// another settlement won the race
		return nil, fmt.Errorf("%w: %s", models.ErrBetNotActive, bet.ID)
	}

	account, err := uow.AccountRepository().Credit(ctx, settled.AccountID, payout)
	if err != nil {
		return nil, fmt.Errorf("failed to credit payout: %w", err)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["round_id"] = settled.RoundID
	metadata["multiplier"] = multiplier.StringFixed(2)

	history := relatedTo(balanceChange(account, payout, models.TransactionTypeBetCashOut, metadata), settled.ID, models.RelatedTypeBet)
	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(settledEvent(settled))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":      settled.ID,
		"accountID":  settled.AccountID,
		"multiplier": multiplier.StringFixed(2),
		"payout":     payout.StringFixed(2),
	}).Debug("Bet cashed out")

	return settled, nil
}

// SettleAsLoss settles an active bet with no payout
func (s *betLedger) SettleAsLoss(ctx context.Context, betID string) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settled, err := uow.BetRepository().Settle(ctx, betID, models.BetStatusLost, decimal.NullDecimal{}, decimal.Zero)
	if err != nil {
		return nil, fmt.Errorf("failed to settle bet: %w", err)
	}
	if settled == nil {
		existing, err := uow.BetRepository().GetByID(ctx, betID)
		if err != nil {
			return nil, fmt.Errorf("failed to get bet: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: %s", models.ErrBetNotFound, betID)
		}
		return nil, fmt.Errorf("%w: bet %s is %s", models.ErrBetNotActive, betID, existing.Status)
	}

	uow.EventBus().Publish(settledEvent(settled))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return settled, nil
}

// ActiveBets returns the round's unsettled bets
func (s *betLedger) ActiveBets(ctx context.Context, roundID string) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().ListActiveByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active bets: %w", err)
	}
	return bets, nil
}

// GetBet retrieves a bet by ID
func (s *betLedger) GetBet(ctx context.Context, betID string) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrBetNotFound, betID)
	}
	return bet, nil
}

// ActiveBetForAccount returns the account's active bet in a round, or nil
func (s *betLedger) ActiveBetForAccount(ctx context.Context, accountID, roundID string) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetActiveByAccount(ctx, accountID, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active bet: %w", err)
	}
	return bet, nil
}

// GetBetHistory returns an account's bets, newest first
func (s *betLedger) GetBetHistory(ctx context.Context, accountID string, limit int) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet history: %w", err)
	}
	return bets, nil
}

// GetStats aggregates an account's settled bets
func (s *betLedger) GetStats(ctx context.Context, accountID string) (*models.PlayerStats, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	stats, err := uow.BetRepository().GetStats(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func settledEvent(bet *models.Bet) events.BetSettledEvent {
	return events.BetSettledEvent{
		BetID:          bet.ID,
		RoundID:        bet.RoundID,
		AccountID:      bet.AccountID,
		Status:         bet.Status,
		Stake:          bet.Stake,
		ExitMultiplier: bet.ExitMultiplier,
		Payout:         bet.Payout,
	}
}
