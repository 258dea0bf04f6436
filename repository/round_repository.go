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

var one = decimal.NewFromInt(1)

var roundColumns = []string{"id", "crash_point", "state", "started_at", "crashed_at", "archived_at", "created_at"}

// RoundRepository implements the RoundRepository interface
type RoundRepository struct {
	q queryable
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(db *database.DB) *RoundRepository {
	return &RoundRepository{q: db.Pool}
}

// newRoundRepositoryWithTx creates a new round repository with a transaction
func newRoundRepositoryWithTx(tx queryable) *RoundRepository {
	return &RoundRepository{q: tx}
}

func scanRound(row scanner) (*models.Round, error) {
	var round models.Round
	err := row.Scan(
		&round.ID,
		&round.CrashPoint,
		&round.State,
		&round.StartedAt,
		&round.CrashedAt,
		&round.ArchivedAt,
		&round.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	round.CurrentMultiplier = round.CrashPoint
	if round.State != models.RoundStateCrashed {
		round.CurrentMultiplier = one
	}
	return &round, nil
}

// Create persists a newly opened round
func (r *RoundRepository) Create(ctx context.Context, round *models.Round) error {
	query := `
		INSERT INTO rounds (id, crash_point, state, started_at, crashed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		round.ID,
		round.CrashPoint,
		round.State,
		round.StartedAt,
		round.CrashedAt,
	).Scan(&round.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create round %s: %w", round.ID, err)
	}
	return nil
}

// GetByID retrieves a round by id
func (r *RoundRepository) GetByID(ctx context.Context, id string) (*models.Round, error) {
	query, args, err := psql.Select(roundColumns...).
		From("rounds").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build round query: %w", err)
	}

	round, err := scanRound(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round %s: %w", id, err)
	}
	return round, nil
}

// UpdateState stores the round's state and lifecycle timestamps
func (r *RoundRepository) UpdateState(ctx context.Context, round *models.Round) error {
	query := `
		UPDATE rounds
		SET state = $2, started_at = $3, crashed_at = $4
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, round.ID, round.State, round.StartedAt, round.CrashedAt)
	if err != nil {
		return fmt.Errorf("failed to update round %s: %w", round.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrRoundNotFound, round.ID)
	}
	return nil
}

// MarkArchived records the end of the round's cooldown
func (r *RoundRepository) MarkArchived(ctx context.Context, id string) error {
	result, err := r.q.Exec(ctx, `UPDATE rounds SET archived_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to archive round %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrRoundNotFound, id)
	}
	return nil
}

// ListRecentCrashed returns crashed rounds, newest first
func (r *RoundRepository) ListRecentCrashed(ctx context.Context, limit int) ([]*models.Round, error) {
	builder := psql.Select(roundColumns...).
		From("rounds").
		Where(sq.Eq{"state": models.RoundStateCrashed}).
		Where(sq.NotEq{"crashed_at": nil}).
		OrderBy("crashed_at DESC")

	return r.list(ctx, withLimit(builder, limit))
}

// ListUnarchived returns rounds that never reached the archive step, oldest first
func (r *RoundRepository) ListUnarchived(ctx context.Context) ([]*models.Round, error) {
	builder := psql.Select(roundColumns...).
		From("rounds").
		Where(sq.Eq{"archived_at": nil}).
		OrderBy("created_at ASC")

	return r.list(ctx, builder)
}

func (r *RoundRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]*models.Round, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build round query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}
	return rounds, nil
}
