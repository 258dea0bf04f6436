package service

import (
	"context"
	"fmt"

	"aviator/events"
	"aviator/models"

	"github.com/shopspring/decimal"
)

// RecordBalanceChange records a balance history entry and emits appropriate events.
// This is the single entry point for all balance changes in the system.
func RecordBalanceChange(ctx context.Context, uow UnitOfWork, history *models.BalanceHistory) error {
	if err := uow.BalanceHistoryRepository().Record(ctx, history); err != nil {
		return fmt.Errorf("failed to record balance history: %w", err)
	}

	// Flushed after the transaction commits
	uow.EventBus().Publish(events.BalanceChangeEvent{
		AccountID:       history.AccountID,
		OldBalance:      history.BalanceBefore,
		NewBalance:      history.BalanceAfter,
		TransactionType: history.TransactionType,
		ChangeAmount:    history.ChangeAmount,
	})

	return nil
}

// balanceChange builds a history entry from the account state after a change of delta
func balanceChange(account *models.Account, delta decimal.Decimal, txType models.TransactionType, metadata map[string]any) *models.BalanceHistory {
	return &models.BalanceHistory{
		AccountID:           account.ID,
		BalanceBefore:       account.Balance.Sub(delta),
		BalanceAfter:        account.Balance,
		ChangeAmount:        delta,
		TransactionType:     txType,
		TransactionMetadata: metadata,
	}
}

// relatedTo links a history entry to the bet or deposit that caused it
func relatedTo(history *models.BalanceHistory, id string, relatedType models.RelatedType) *models.BalanceHistory {
	history.RelatedID = &id
	history.RelatedType = &relatedType
	return history
}

// hasCents reports whether v fits in two decimal places
func hasCents(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(2))
}
