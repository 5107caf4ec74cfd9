package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/matchdesk/scoring-system/models"
)

var (
	ErrMatchNotFound            = errors.New("match not found")
	ErrMatchRegistrationInvalid = errors.New("match registration conflict or invalid")
)

type MatchRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error)
	UpdateMatchDate(ctx context.Context, id uuid.UUID, matchDate *time.Time) error
	// CompleteMatch performs the one-way played transition. It reports
	// whether this call actually transitioned the match, so a lost race or a
	// duplicate trigger shows up as transitioned=false instead of a second
	// completion.
	CompleteMatch(ctx context.Context, exec SQLExecutor, id uuid.UUID, winnerID uuid.UUID) (transitioned bool, err error)
	// ListStandingsPending returns completed matches whose standings write
	// has not landed yet, oldest first.
	ListStandingsPending(ctx context.Context, limit int) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, event_id, group_id, round, match_number, registration1_id, registration2_id,
	match_date, played, winner_id, bracket_position, standings_applied, created_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID,
		&m.EventID,
		&m.GroupID,
		&m.Round,
		&m.MatchNumber,
		&m.Registration1ID,
		&m.Registration2ID,
		&m.MatchDate,
		&m.Played,
		&m.WinnerID,
		&m.BracketPosition,
		&m.StandingsApplied,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return scanMatch(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) UpdateMatchDate(ctx context.Context, id uuid.UUID, matchDate *time.Time) error {
	query := `UPDATE matches SET match_date = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, matchDate, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) CompleteMatch(ctx context.Context, exec SQLExecutor, id uuid.UUID, winnerID uuid.UUID) (bool, error) {
	query := `
		UPDATE matches
		SET played = TRUE, winner_id = $1
		WHERE id = $2 AND played = FALSE`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, winnerID, id)
	if err != nil {
		return false, r.handleMatchError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *postgresMatchRepository) ListStandingsPending(ctx context.Context, limit int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE played = TRUE AND standings_applied = FALSE
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings-pending matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "matches_registration1_id_fkey", "matches_registration2_id_fkey", "matches_winner_id_fkey":
			return ErrMatchRegistrationInvalid
		}
	}
	return err
}
