package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aviator/events"
	"aviator/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// DepositSettings configure the deposit pipeline
type DepositSettings struct {
	Currency              string
	RequiredConfirmations int
}

// DepositOption customizes a deposit claim
type DepositOption func(*models.Deposit)

// WithAddress records the address the funds were sent to
func WithAddress(address string) DepositOption {
	return func(d *models.Deposit) {
		d.Address = strings.TrimSpace(address)
	}
}

type depositPipeline struct {
	uowFactory UnitOfWorkFactory
	settings   DepositSettings
}

// NewDepositPipeline creates a new deposit pipeline
func NewDepositPipeline(uowFactory UnitOfWorkFactory, settings DepositSettings) DepositPipeline {
	if settings.RequiredConfirmations < 0 {
		settings.RequiredConfirmations = 0
	}
	return &depositPipeline{
		uowFactory: uowFactory,
		settings:   settings,
	}
}

// Submit records a pending claim; the balance is untouched until the deposit is credited
func (p *depositPipeline) Submit(ctx context.Context, accountID string, amount decimal.Decimal, reference string, opts ...DepositOption) (*models.Deposit, error) {
	if !amount.IsPositive() || !hasCents(amount) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAmount, amount)
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, models.ErrInvalidReference
	}

	deposit := &models.Deposit{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Currency:          p.settings.Currency,
		ClaimedAmount:     amount,
		ExternalReference: reference,
		Status:            models.DepositStatusPending,
	}
	for _, opt := range opts {
		opt(deposit)
	}

	uow := p.uowFactory.Create()
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

	if err := uow.DepositRepository().Create(ctx, deposit); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.NewDepositEvent(events.EventTypeDepositSubmitted, deposit))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"depositID": deposit.ID,
		"accountID": accountID,
		"reference": reference,
		"amount":    amount.StringFixed(2),
	}).Info("Deposit submitted")

	return deposit, nil
}

// RecordConfirmation raises the observed confirmation count. Counts never
// decrease, and a pending deposit becomes confirmed once the requirement is met.
func (p *depositPipeline) RecordConfirmation(ctx context.Context, reference string, count int) (*models.Deposit, error) {
	if count < 0 {
		return nil, fmt.Errorf("confirmation count cannot be negative: %d", count)
	}

	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	deposit, previous, err := uow.DepositRepository().RecordConfirmations(ctx, p.settings.Currency, reference, count, p.settings.RequiredConfirmations)
	if err != nil {
		return nil, fmt.Errorf("failed to record confirmations: %w", err)
	}
	if deposit == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownReference, reference)
	}

	if previous == models.DepositStatusPending && deposit.Status == models.DepositStatusConfirmed {
		uow.EventBus().Publish(events.NewDepositEvent(events.EventTypeDepositConfirmed, deposit))
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deposit, nil
}

// Credit adds a confirmed deposit to its account. The confirmed -> credited
// transition and the balance credit commit together, so it happens once.
func (p *depositPipeline) Credit(ctx context.Context, reference string) (*models.Deposit, error) {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	deposit, err := uow.DepositRepository().TransitionStatus(ctx, p.settings.Currency, reference, models.DepositStatusConfirmed, models.DepositStatusCredited)
	if err != nil {
		return nil, fmt.Errorf("failed to transition deposit: %w", err)
	}
	if deposit == nil {
		return nil, p.creditRejection(ctx, uow, reference)
	}

	account, err := uow.AccountRepository().Credit(ctx, deposit.AccountID, deposit.ClaimedAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to credit deposit: %w", err)
	}

	history := relatedTo(balanceChange(account, deposit.ClaimedAmount, models.TransactionTypeDepositCredit, map[string]any{
		"currency":  deposit.Currency,
		"reference": deposit.ExternalReference,
	}), deposit.ID, models.RelatedTypeDeposit)
	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.NewDepositEvent(events.EventTypeDepositCredited, deposit))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"depositID": deposit.ID,
		"accountID": deposit.AccountID,
		"amount":    deposit.ClaimedAmount.StringFixed(2),
	}).Info("Deposit credited")

	return deposit, nil
}

// creditRejection explains why a deposit could not move to credited
func (p *depositPipeline) creditRejection(ctx context.Context, uow UnitOfWork, reference string) error {
	current, err := uow.DepositRepository().GetByReference(ctx, p.settings.Currency, reference)
	if err != nil {
		return fmt.Errorf("failed to get deposit: %w", err)
	}
	if current == nil {
		return fmt.Errorf("%w: %s", models.ErrUnknownReference, reference)
	}
	switch current.Status {
	case models.DepositStatusCredited:
		return fmt.Errorf("%w: %s", models.ErrAlreadyCredited, reference)
	default:
		return fmt.Errorf("%w: %s has %d confirmations", models.ErrNotConfirmed, reference, current.Confirmations)
	}
}

// GetDeposit retrieves a deposit by reference
func (p *depositPipeline) GetDeposit(ctx context.Context, reference string) (*models.Deposit, error) {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	deposit, err := uow.DepositRepository().GetByReference(ctx, p.settings.Currency, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	if deposit == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownReference, reference)
	}
	return deposit, nil
}

// ListDeposits returns an account's deposits, newest first
func (p *depositPipeline) ListDeposits(ctx context.Context, accountID string, limit int) ([]*models.Deposit, error) {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	deposits, err := uow.DepositRepository().ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	return deposits, nil
}

// PendingCredits returns confirmed deposits that are not credited yet
func (p *depositPipeline) PendingCredits(ctx context.Context, limit int) ([]*models.Deposit, error) {
	uow := p.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	deposits, err := uow.DepositRepository().ListByStatus(ctx, p.settings.Currency, models.DepositStatusConfirmed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed deposits: %w", err)
	}
	return deposits, nil
}

// confirmAndCredit records confirmations and, once confirmed, credits the deposit.
// A duplicate delivery of an already credited deposit is not an error.
func confirmAndCredit(ctx context.Context, pipeline DepositPipeline, reference string, count int) (*models.Deposit, error) {
	deposit, err := pipeline.RecordConfirmation(ctx, reference, count)
	if err != nil {
		return nil, err
	}
	if deposit.Status != models.DepositStatusConfirmed {
		return deposit, nil
	}

	credited, err := pipeline.Credit(ctx, reference)
	if errors.Is(err, models.ErrAlreadyCredited) {
		return pipeline.GetDeposit(ctx, reference)
	}
	return credited, err
}
