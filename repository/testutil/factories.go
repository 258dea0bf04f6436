package testutil

import (
	"time"

	"aviator/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateTestRound creates a waiting round with the given crash point
func CreateTestRound(crashPoint string) *models.Round {
	return &models.Round{
		ID:                uuid.NewString(),
		CrashPoint:        decimal.RequireFromString(crashPoint),
		State:             models.RoundStateWaiting,
		CurrentMultiplier: decimal.NewFromInt(1),
		CreatedAt:         time.Now().UTC(),
	}
}

// CreateCrashedRound creates a round that crashed at crashedAt
func CreateCrashedRound(crashPoint string, crashedAt time.Time) *models.Round {
	round := CreateTestRound(crashPoint)
	started := crashedAt.Add(-time.Second)
	round.State = models.RoundStateCrashed
	round.StartedAt = &started
	round.CrashedAt = &crashedAt
	return round
}

// CreateTestBet creates an active bet
func CreateTestBet(roundID, accountID, stake string) *models.Bet {
	return &models.Bet{
		ID:        uuid.NewString(),
		RoundID:   roundID,
		AccountID: accountID,
		Stake:     decimal.RequireFromString(stake),
		Status:    models.BetStatusActive,
		Payout:    decimal.Zero,
	}
}

// CreateTestBetWithTarget creates an active bet carrying an auto cash-out target
func CreateTestBetWithTarget(roundID, accountID, stake, target string) *models.Bet {
	bet := CreateTestBet(roundID, accountID, stake)
	bet.AutoCashOut = decimal.NewNullDecimal(decimal.RequireFromString(target))
	return bet
}

// CreateTestDeposit creates a pending deposit claim
func CreateTestDeposit(accountID, currency, reference, amount string) *models.Deposit {
	return &models.Deposit{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Currency:          currency,
		ClaimedAmount:     decimal.RequireFromString(amount),
		ExternalReference: reference,
		Status:            models.DepositStatusPending,
	}
}

// CreateTestBalanceHistory creates a balance history entry for a change of delta from before
func CreateTestBalanceHistory(accountID string, transactionType models.TransactionType, before, delta string) *models.BalanceHistory {
	b := decimal.RequireFromString(before)
	d := decimal.RequireFromString(delta)
	return &models.BalanceHistory{
		AccountID:       accountID,
		BalanceBefore:   b,
		BalanceAfter:    b.Add(d),
		ChangeAmount:    d,
		TransactionType: transactionType,
		TransactionMetadata: map[string]interface{}{
			"test": true,
		},
	}
}
