package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/matchdesk/scoring-system/models"
	"github.com/matchdesk/scoring-system/scoring"
)

var (
	ErrRegistrationNotFound      = errors.New("registration not found")
	ErrStandingsAlreadyApplied   = errors.New("standings already applied for this match")
	ErrStandingsMatchNotComplete = errors.New("standings can only be applied to a completed match")
)

type RegistrationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// ApplyMatchOutcome writes both registrations' counters and flips the
	// match's standings_applied flag in a single transaction. The flag guard
	// makes the write exactly-once: a duplicate trigger gets
	// ErrStandingsAlreadyApplied and changes nothing.
	ApplyMatchOutcome(ctx context.Context, outcome *scoring.MatchOutcome) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	query := `
		SELECT id, event_id, matches_won, matches_lost, sets_won, sets_lost, points, updated_at
		FROM registrations
		WHERE id = $1`

	reg := &models.Registration{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&reg.ID,
		&reg.EventID,
		&reg.MatchesWon,
		&reg.MatchesLost,
		&reg.SetsWon,
		&reg.SetsLost,
		&reg.Points,
		&reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to scan registration by id %s: %w", id, err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) ApplyMatchOutcome(ctx context.Context, outcome *scoring.MatchOutcome) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin standings transaction: %w", err)
	}
	var txErr error
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			_ = tx.Rollback()
		}
	}()

	guard := `
		UPDATE matches
		SET standings_applied = TRUE
		WHERE id = $1 AND played = TRUE AND standings_applied = FALSE`
	result, txErr := tx.ExecContext(ctx, guard, outcome.MatchID)
	if txErr != nil {
		return fmt.Errorf("failed to claim standings application for match %s: %w", outcome.MatchID, txErr)
	}
	rowsAffected, raErr := result.RowsAffected()
	if raErr != nil {
		txErr = raErr
		return fmt.Errorf("failed to check affected rows: %w", raErr)
	}
	if rowsAffected == 0 {
		txErr = r.classifyGuardMiss(ctx, tx, outcome.MatchID)
		return txErr
	}

	for _, delta := range []scoring.RegistrationDelta{outcome.Winner, outcome.Loser} {
		if txErr = r.applyDelta(ctx, tx, delta); txErr != nil {
			return txErr
		}
	}

	if txErr = tx.Commit(); txErr != nil {
		return fmt.Errorf("failed to commit standings for match %s: %w", outcome.MatchID, txErr)
	}
	return nil
}

func (r *postgresRegistrationRepository) applyDelta(ctx context.Context, exec SQLExecutor, delta scoring.RegistrationDelta) error {
	query := `
		UPDATE registrations
		SET matches_won  = matches_won + $1,
		    matches_lost = matches_lost + $2,
		    sets_won     = sets_won + $3,
		    sets_lost    = sets_lost + $4,
		    points       = points + $5,
		    updated_at   = NOW()
		WHERE id = $6`
	result, err := exec.ExecContext(ctx, query,
		delta.MatchesWon, delta.MatchesLost, delta.SetsWon, delta.SetsLost, delta.Points,
		delta.RegistrationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update standings for registration %s: %w", delta.RegistrationID, err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

// classifyGuardMiss tells a duplicate application apart from an attempt to
// apply standings to a match that never completed.
func (r *postgresRegistrationRepository) classifyGuardMiss(ctx context.Context, exec SQLExecutor, matchID uuid.UUID) error {
	var played bool
	err := exec.QueryRowContext(ctx, `SELECT played FROM matches WHERE id = $1`, matchID).Scan(&played)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("failed to inspect match %s after guard miss: %w", matchID, err)
	}
	if !played {
		return ErrStandingsMatchNotComplete
	}
	return ErrStandingsAlreadyApplied
}
