package service

import (
	"context"
	"errors"
	"fmt"

	"aviator/events"
	"aviator/models"

	log "github.com/sirupsen/logrus"
)

type roundService struct {
	uowFactory UnitOfWorkFactory
	ledger     BetLedger
}

// NewRoundService creates the service that persists round transitions
func NewRoundService(uowFactory UnitOfWorkFactory, ledger BetLedger) RoundService {
	return &roundService{
		uowFactory: uowFactory,
		ledger:     ledger,
	}
}

// RecordCreated stores a freshly opened round
func (s *roundService) RecordCreated(ctx context.Context, round *models.Round) error {
	return s.withRounds(ctx, func(uow UnitOfWork) error {
		return uow.RoundRepository().Create(ctx, round)
	})
}

// RecordStarted marks the round as flying
func (s *roundService) RecordStarted(ctx context.Context, round *models.Round) error {
	return s.withRounds(ctx, func(uow UnitOfWork) error {
		return uow.RoundRepository().UpdateState(ctx, round)
	})
}

// RecordCrashed marks the round crashed and announces it
func (s *roundService) RecordCrashed(ctx context.Context, round *models.Round, lostBets int) error {
	return s.withRounds(ctx, func(uow UnitOfWork) error {
		if err := uow.RoundRepository().UpdateState(ctx, round); err != nil {
			return err
		}
		uow.EventBus().Publish(events.RoundCrashedEvent{
			RoundID:    round.ID,
			CrashPoint: round.CrashPoint,
			LostBets:   lostBets,
		})
		return nil
	})
}

// RecordArchived moves the round into history
func (s *roundService) RecordArchived(ctx context.Context, round *models.Round) error {
	return s.withRounds(ctx, func(uow UnitOfWork) error {
		return uow.RoundRepository().MarkArchived(ctx, round.ID)
	})
}

// RecentRounds returns crashed rounds, newest first
func (s *roundService) RecentRounds(ctx context.Context, limit int) ([]*models.Round, error) {
	var rounds []*models.Round
	err := s.withRounds(ctx, func(uow UnitOfWork) error {
		var err error
		rounds, err = uow.RoundRepository().ListRecentCrashed(ctx, limit)
		return err
	})
	return rounds, err
}

// RecoverInterrupted finishes rounds a previous process left unarchived.
// Bets in rounds that never crashed are refunded and the round is closed as
// aborted, outside crash history. Bets left active in a crashed round are
// settled as losses.
func (s *roundService) RecoverInterrupted(ctx context.Context) error {
	var rounds []*models.Round
	err := s.withRounds(ctx, func(uow UnitOfWork) error {
		var err error
		rounds, err = uow.RoundRepository().ListUnarchived(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list unfinished rounds: %w", err)
	}

	for _, round := range rounds {
		if err := s.recoverRound(ctx, round); err != nil {
			return fmt.Errorf("failed to recover round %s: %w", round.ID, err)
		}
	}
	return nil
}

func (s *roundService) recoverRound(ctx context.Context, round *models.Round) error {
	bets, err := s.ledger.ActiveBets(ctx, round.ID)
	if err != nil {
		return err
	}

	interrupted := round.State != models.RoundStateCrashed
	var refunded, lost int
	for _, bet := range bets {
		counter := &lost
		if interrupted {
			_, err = s.ledger.RefundBet(ctx, bet.ID)
			counter = &refunded
		} else {
			_, err = s.ledger.SettleAsLoss(ctx, bet.ID)
		}
		switch {
		case err == nil:
			*counter++
		case !errors.Is(err, models.ErrBetNotActive):
			return err
		}
	}

	if interrupted {
		round.State = models.RoundStateCrashed
		round.CrashedAt = nil
		err := s.withRounds(ctx, func(uow UnitOfWork) error {
			return uow.RoundRepository().UpdateState(ctx, round)
		})
		if err != nil {
			return err
		}
	}
	if err := s.RecordArchived(ctx, round); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"roundID":     round.ID,
		"interrupted": interrupted,
		"refunded":    refunded,
		"lost":        lost,
	}).Warn("Recovered unfinished round")
	return nil
}

func (s *roundService) withRounds(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
