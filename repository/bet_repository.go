package repository

import (
	"context"
	"errors"
	"fmt"

	"aviator/database"
	"aviator/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const betColumns = `id, round_id, account_id, stake, status, exit_multiplier, payout, auto_cash_out, created_at, settled_at`

// BetRepository implements the BetRepository interface
type BetRepository struct {
	q queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx queryable) *BetRepository {
	return &BetRepository{q: tx}
}

func scanBet(row scanner) (*models.Bet, error) {
	var bet models.Bet
	err := row.Scan(
		&bet.ID,
		&bet.RoundID,
		&bet.AccountID,
		&bet.Stake,
		&bet.Status,
		&bet.ExitMultiplier,
		&bet.Payout,
		&bet.AutoCashOut,
		&bet.CreatedAt,
		&bet.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return &bet, nil
}

// Create creates a new bet record
func (r *BetRepository) Create(ctx context.Context, bet *models.Bet) error {
	query := `
		INSERT INTO bets (id, round_id, account_id, stake, status, payout, auto_cash_out)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		bet.ID,
		bet.RoundID,
		bet.AccountID,
		bet.Stake,
		bet.Status,
		bet.Payout,
		bet.AutoCashOut,
	).Scan(&bet.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bet %s: %w", bet.ID, err)
	}
	return nil
}

// GetByID retrieves a bet by id
func (r *BetRepository) GetByID(ctx context.Context, id string) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id = $1`

	bet, err := scanBet(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %s: %w", id, err)
	}
	return bet, nil
}

// Settle moves an active bet to a terminal status. The status guard makes
// concurrent settlements race on the row; only one of them updates it.
func (r *BetRepository) Settle(ctx context.Context, id string, status models.BetStatus, exitMultiplier decimal.NullDecimal, payout decimal.Decimal) (*models.Bet, error) {
	query := `
		UPDATE bets
		SET status = $2, exit_multiplier = $3, payout = $4, settled_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + betColumns

	bet, err := scanBet(r.q.QueryRow(ctx, query, id, status, exitMultiplier, payout))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to settle bet %s: %w", id, err)
	}
	return bet, nil
}

// ListActiveByRound returns the round's bets that are still active
func (r *BetRepository) ListActiveByRound(ctx context.Context, roundID string) ([]*models.Bet, error) {
	builder := psql.Select(betColumns).
		From("bets").
		Where(sq.Eq{"round_id": roundID, "status": models.BetStatusActive}).
		OrderBy("created_at ASC")

	return r.list(ctx, builder)
}

// GetActiveByAccount returns the account's active bet in a round
func (r *BetRepository) GetActiveByAccount(ctx context.Context, accountID, roundID string) (*models.Bet, error) {
	builder := psql.Select(betColumns).
		From("bets").
		Where(sq.Eq{"account_id": accountID, "round_id": roundID, "status": models.BetStatusActive}).
		OrderBy("created_at DESC").
		Limit(1)

	bets, err := r.list(ctx, builder)
	if err != nil {
		return nil, err
	}
	if len(bets) == 0 {
		return nil, nil
	}
	return bets[0], nil
}

// ListByAccount returns an account's bets, newest first
func (r *BetRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Bet, error) {
	builder := psql.Select(betColumns).
		From("bets").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("created_at DESC", "id DESC")

	return r.list(ctx, withLimit(builder, limit))
}

// GetStats aggregates an account's settled bets
func (r *BetRepository) GetStats(ctx context.Context, accountID string) (*models.PlayerStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status <> 'active'),
			COUNT(*) FILTER (WHERE status = 'cashed_out'),
			COUNT(*) FILTER (WHERE status = 'lost'),
			COALESCE(SUM(stake) FILTER (WHERE status <> 'active'), 0),
			COALESCE(SUM(payout) FILTER (WHERE status <> 'active'), 0),
			COALESCE(MAX(exit_multiplier), 0)
		FROM bets
		WHERE account_id = $1
	`

	var stats models.PlayerStats
	err := r.q.QueryRow(ctx, query, accountID).Scan(
		&stats.GamesPlayed,
		&stats.Wins,
		&stats.Losses,
		&stats.TotalWagered,
		&stats.TotalWon,
		&stats.BestExit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for account %s: %w", accountID, err)
	}

	stats.Finalize()
	return &stats, nil
}

func (r *BetRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]*models.Bet, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build bet query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bets: %w", err)
	}
	return bets, nil
}
