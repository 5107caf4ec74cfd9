package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/matchdesk/scoring-system/models"
)

var (
	ErrSetNotFound       = errors.New("set not found")
	ErrSetNumberConflict = errors.New("set number already exists for this match")
	ErrSetMatchInvalid   = errors.New("set match conflict or invalid")
)

type SetRepository interface {
	Create(ctx context.Context, exec SQLExecutor, set *models.Set) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Set, error)
	ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.Set, error)
	UpdateScore(ctx context.Context, exec SQLExecutor, id uuid.UUID, score1, score2 int) error
	MarkPlayed(ctx context.Context, exec SQLExecutor, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresSetRepository struct {
	db *sql.DB
}

func NewPostgresSetRepository(db *sql.DB) SetRepository {
	return &postgresSetRepository{db: db}
}

func (r *postgresSetRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresSetRepository) Create(ctx context.Context, exec SQLExecutor, set *models.Set) error {
	query := `
		INSERT INTO sets
			(id, match_id, set_number, registration1_score, registration2_score, played)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		set.ID,
		set.MatchID,
		set.SetNumber,
		set.Registration1Score,
		set.Registration2Score,
		set.Played,
	).Scan(&set.CreatedAt)

	return r.handleSetError(err)
}

func (r *postgresSetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Set, error) {
	query := `
		SELECT id, match_id, set_number, registration1_score, registration2_score, played, created_at
		FROM sets
		WHERE id = $1`

	set := &models.Set{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&set.ID,
		&set.MatchID,
		&set.SetNumber,
		&set.Registration1Score,
		&set.Registration2Score,
		&set.Played,
		&set.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSetNotFound
		}
		return nil, fmt.Errorf("failed to scan set by id %s: %w", id, err)
	}
	return set, nil
}

func (r *postgresSetRepository) ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.Set, error) {
	query := `
		SELECT id, match_id, set_number, registration1_score, registration2_score, played, created_at
		FROM sets
		WHERE match_id = $1
		ORDER BY set_number ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sets for match %s: %w", matchID, err)
	}
	defer rows.Close()

	sets := make([]*models.Set, 0)
	for rows.Next() {
		var set models.Set
		if scanErr := rows.Scan(
			&set.ID,
			&set.MatchID,
			&set.SetNumber,
			&set.Registration1Score,
			&set.Registration2Score,
			&set.Played,
			&set.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan set row: %w", scanErr)
		}
		sets = append(sets, &set)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during set rows iteration: %w", err)
	}
	return sets, nil
}

func (r *postgresSetRepository) UpdateScore(ctx context.Context, exec SQLExecutor, id uuid.UUID, score1, score2 int) error {
	// The played gate lives in the validator; the WHERE clause keeps a
	// played set immutable even if a stale caller bypasses it.
	query := `
		UPDATE sets
		SET registration1_score = $1, registration2_score = $2
		WHERE id = $3 AND played = FALSE`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, score1, score2, id)
	if err != nil {
		return r.handleSetError(err)
	}
	return checkAffectedRows(result, ErrSetNotFound)
}

func (r *postgresSetRepository) MarkPlayed(ctx context.Context, exec SQLExecutor, id uuid.UUID) error {
	query := `UPDATE sets SET played = TRUE WHERE id = $1 AND played = FALSE`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id)
	if err != nil {
		return r.handleSetError(err)
	}
	return checkAffectedRows(result, ErrSetNotFound)
}

func (r *postgresSetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sets WHERE id = $1 AND played = FALSE`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSetNotFound)
}

func (r *postgresSetRepository) handleSetError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "sets_match_id_set_number_key":
			return ErrSetNumberConflict
		case "sets_match_id_fkey":
			return ErrSetMatchInvalid
		}
	}
	return err
}
