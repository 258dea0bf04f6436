package repository

import (
	"context"
	"errors"
	"fmt"

	"aviator/database"
	"aviator/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

const depositColumns = `id, account_id, currency, address, claimed_amount, external_reference, confirmations, status, created_at, confirmed_at, credited_at`

// DepositRepository implements the DepositRepository interface
type DepositRepository struct {
	q queryable
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *database.DB) *DepositRepository {
	return &DepositRepository{q: db.Pool}
}

// newDepositRepositoryWithTx creates a new deposit repository with a transaction
func newDepositRepositoryWithTx(tx queryable) *DepositRepository {
	return &DepositRepository{q: tx}
}

func depositDest(d *models.Deposit) []any {
	return []any{
		&d.ID,
		&d.AccountID,
		&d.Currency,
		&d.Address,
		&d.ClaimedAmount,
		&d.ExternalReference,
		&d.Confirmations,
		&d.Status,
		&d.CreatedAt,
		&d.ConfirmedAt,
		&d.CreditedAt,
	}
}

func scanDeposit(row scanner) (*models.Deposit, error) {
	var d models.Deposit
	if err := row.Scan(depositDest(&d)...); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a deposit. The (currency, external_reference) constraint rejects replays.
func (r *DepositRepository) Create(ctx context.Context, deposit *models.Deposit) error {
	query := `
		INSERT INTO deposits (id, account_id, currency, address, claimed_amount, external_reference, confirmations, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		deposit.ID,
		deposit.AccountID,
		deposit.Currency,
		deposit.Address,
		deposit.ClaimedAmount,
		deposit.ExternalReference,
		deposit.Confirmations,
		deposit.Status,
	).Scan(&deposit.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s", models.ErrDuplicateReference, deposit.Currency, deposit.ExternalReference)
	}
	if err != nil {
		return fmt.Errorf("failed to create deposit %s: %w", deposit.ExternalReference, err)
	}
	return nil
}

// GetByReference retrieves a deposit by its external reference
func (r *DepositRepository) GetByReference(ctx context.Context, currency, reference string) (*models.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE currency = $1 AND external_reference = $2`

	deposit, err := scanDeposit(r.q.QueryRow(ctx, query, currency, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit %s: %w", reference, err)
	}
	return deposit, nil
}

// RecordConfirmations raises the confirmation count and promotes a pending
// deposit once required is met. The row is locked before the update so the
// returned previous status is the one this call transitioned from.
func (r *DepositRepository) RecordConfirmations(ctx context.Context, currency, reference string, count, required int) (*models.Deposit, models.DepositStatus, error) {
	query := `
		WITH prev AS (
			SELECT id, status
			FROM deposits
			WHERE currency = $1 AND external_reference = $2
			FOR UPDATE
		)
		UPDATE deposits d
		SET confirmations = GREATEST(d.confirmations, $3::int),
		    status = CASE
		        WHEN d.status = 'pending' AND GREATEST(d.confirmations, $3::int) >= $4::int THEN 'confirmed'
		        ELSE d.status
		    END,
		    confirmed_at = CASE
		        WHEN d.status = 'pending' AND GREATEST(d.confirmations, $3::int) >= $4::int THEN NOW()
		        ELSE d.confirmed_at
		    END
		FROM prev
		WHERE d.id = prev.id
		RETURNING d.id, d.account_id, d.currency, d.address, d.claimed_amount, d.external_reference,
		          d.confirmations, d.status, d.created_at, d.confirmed_at, d.credited_at, prev.status
	`

	var d models.Deposit
	var previous models.DepositStatus
	dest := append(depositDest(&d), &previous)

	err := r.q.QueryRow(ctx, query, currency, reference, count, required).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to record confirmations for deposit %s: %w", reference, err)
	}
	return &d, previous, nil
}

// TransitionStatus moves a deposit from one status to another
func (r *DepositRepository) TransitionStatus(ctx context.Context, currency, reference string, from, to models.DepositStatus) (*models.Deposit, error) {
	query := `
		UPDATE deposits
		SET status = $4::text,
		    confirmed_at = CASE WHEN $4::text = 'confirmed' THEN COALESCE(confirmed_at, NOW()) ELSE confirmed_at END,
		    credited_at = CASE WHEN $4::text = 'credited' THEN NOW() ELSE credited_at END
		WHERE currency = $1 AND external_reference = $2 AND status = $3
		RETURNING ` + depositColumns

	deposit, err := scanDeposit(r.q.QueryRow(ctx, query, currency, reference, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to move deposit %s to %s: %w", reference, to, err)
	}
	return deposit, nil
}

// ListByAccount returns an account's deposits, newest first
func (r *DepositRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Deposit, error) {
	builder := psql.Select(depositColumns).
		From("deposits").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("created_at DESC", "id DESC")

	return r.list(ctx, withLimit(builder, limit))
}

// ListByStatus returns a currency's deposits in a status, oldest first
func (r *DepositRepository) ListByStatus(ctx context.Context, currency string, status models.DepositStatus, limit int) ([]*models.Deposit, error) {
	builder := psql.Select(depositColumns).
		From("deposits").
		Where(sq.Eq{"currency": currency, "status": string(status)}).
		OrderBy("created_at ASC")

	return r.list(ctx, withLimit(builder, limit))
}

func (r *DepositRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]*models.Deposit, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build deposit query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer rows.Close()

	var deposits []*models.Deposit
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deposits = append(deposits, deposit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deposits: %w", err)
	}
	return deposits, nil
}
