package service

import (
	"context"

	"aviator/engine"
	"aviator/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockBetLedger is a mock implementation of BetLedger
type MockBetLedger struct {
	mock.Mock
}

func (m *MockBetLedger) PlaceBet(ctx context.Context, accountID string, stake decimal.Decimal, roundID string, autoCashOut decimal.NullDecimal) (*models.Bet, error) {
	args := m.Called(ctx, accountID, stake, roundID, autoCashOut)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetLedger) CashOut(ctx context.Context, betID string, multiplier decimal.Decimal) (*models.Bet, error) {
	args := m.Called(ctx, betID, multiplier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetLedger) SettleAsLoss(ctx context.Context, betID string) (*models.Bet, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetLedger) RefundBet(ctx context.Context, betID string) (*models.Bet, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetLedger) ActiveBets(ctx context.Context, roundID string) ([]*models.Bet, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetLedger) GetBet(ctx context.Context, betID string) (*models.Bet, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetLedger) ActiveBetForAccount(ctx context.Context, accountID, roundID string) (*models.Bet, error) {
	args := m.Called(ctx, accountID, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetLedger) GetBetHistory(ctx context.Context, accountID string, limit int) ([]*models.Bet, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetLedger) GetStats(ctx context.Context, accountID string) (*models.PlayerStats, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlayerStats), args.Error(1)
}

// MockGameService is a mock implementation of GameService for transport adapters
type MockGameService struct {
	mock.Mock
}

func (m *MockGameService) PlaceBet(ctx context.Context, accountID string, stake decimal.Decimal, opts ...BetOption) (*models.Bet, error) {
	args := m.Called(ctx, accountID, stake, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockGameService) RequestCashOut(ctx context.Context, betID string) (*models.Bet, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockGameService) StartRound() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockGameService) CurrentRound() engine.Snapshot {
	args := m.Called()
	return args.Get(0).(engine.Snapshot)
}

func (m *MockGameService) RecentRounds(ctx context.Context, limit int) ([]*models.Round, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Round), args.Error(1)
}

func (m *MockGameService) ActiveBet(ctx context.Context, accountID string) (*models.Bet, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockGameService) Subscribe(observer engine.Observer) func() {
	args := m.Called(observer)
	return args.Get(0).(func())
}

func (m *MockGameService) SubscribeChannel(buffer int) (<-chan engine.RoundEvent, func()) {
	args := m.Called(buffer)
	return args.Get(0).(<-chan engine.RoundEvent), args.Get(1).(func())
}

func (m *MockGameService) EnsureAccount(ctx context.Context, accountID string) (*models.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockGameService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockGameService) GetHistory(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BalanceHistory), args.Error(1)
}

func (m *MockGameService) GetBetHistory(ctx context.Context, accountID string, limit int) ([]*models.Bet, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockGameService) GetStats(ctx context.Context, accountID string) (*models.PlayerStats, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlayerStats), args.Error(1)
}

func (m *MockGameService) SubmitDeposit(ctx context.Context, accountID string, amount decimal.Decimal, reference string, opts ...DepositOption) (*models.Deposit, error) {
	args := m.Called(ctx, accountID, amount, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deposit), args.Error(1)
}

func (m *MockGameService) ConfirmDeposit(ctx context.Context, reference string, confirmations int) (*models.Deposit, error) {
	args := m.Called(ctx, reference, confirmations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deposit), args.Error(1)
}

func (m *MockGameService) ListDeposits(ctx context.Context, accountID string, limit int) ([]*models.Deposit, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Deposit), args.Error(1)
}
