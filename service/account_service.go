package service

import (
	"context"
	"fmt"
	"strings"

	"aviator/events"
	"aviator/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// AccountSettings are the balances new accounts open with
type AccountSettings struct {
	StartingBalance     decimal.Decimal
	DemoStartingBalance decimal.Decimal
}

type accountService struct {
	uowFactory UnitOfWorkFactory
	settings   AccountSettings
}

// NewAccountService creates a new account service
func NewAccountService(uowFactory UnitOfWorkFactory, settings AccountSettings) AccountService {
	return &accountService{
		uowFactory: uowFactory,
		settings:   settings,
	}
}

// EnsureAccount retrieves an existing account or opens a new one with its starting balance
func (s *accountService) EnsureAccount(ctx context.Context, accountID string) (*models.Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: empty account id", models.ErrAccountNotFound)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account != nil {
		return account, nil
	}

	kind := models.KindForAccountID(accountID)
	initial := s.settings.StartingBalance
	if kind == models.AccountKindDemo {
		initial = s.settings.DemoStartingBalance
	}

	account, err = uow.AccountRepository().Create(ctx, accountID, kind, initial)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if account == nil {
		// Lost a race with a concurrent open; the winner recorded the initial balance
		uow.Rollback()
		return s.getAccount(ctx, accountID)
	}

	if initial.IsPositive() {
		history := balanceChange(account, initial, models.TransactionTypeInitial, map[string]any{
			"kind": string(kind),
		})
		if err := RecordBalanceChange(ctx, uow, history); err != nil {
			return nil, err
		}
	}

	uow.EventBus().Publish(events.AccountCreatedEvent{
		AccountID:      account.ID,
		Kind:           kind,
		InitialBalance: initial,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"accountID": account.ID,
		"kind":      kind,
		"balance":   initial.StringFixed(2),
	}).Info("Opened account")

	return account, nil
}

// GetBalance returns an account's balance
func (s *accountService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// GetBalanceHistory returns an account's most recent balance changes
func (s *accountService) GetBalanceHistory(ctx context.Context, accountID string, limit int) ([]*models.BalanceHistory, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	history, err := uow.BalanceHistoryRepository().GetByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance history: %w", err)
	}
	return history, nil
}

func (s *accountService) getAccount(ctx context.Context, accountID string) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, accountID)
	}
	return account, nil
}
