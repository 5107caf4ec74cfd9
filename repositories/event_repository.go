package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/matchdesk/scoring-system/models"
)

var ErrEventContextNotFound = errors.New("event context not found")

// EventContextRepository resolves the scoring parameters of the event a
// match belongs to. The events table is owned by the CRUD layer; this is a
// read-only view of the three fields the scoring core consumes.
type EventContextRepository interface {
	GetByMatchID(ctx context.Context, matchID uuid.UUID) (*models.EventContext, error)
}

type postgresEventContextRepository struct {
	db *sql.DB
}

func NewPostgresEventContextRepository(db *sql.DB) EventContextRepository {
	return &postgresEventContextRepository{db: db}
}

func (r *postgresEventContextRepository) GetByMatchID(ctx context.Context, matchID uuid.UUID) (*models.EventContext, error) {
	query := `
		SELECT e.id, e.best_of, e.points_per_win, e.points_per_loss
		FROM events e
		JOIN matches m ON m.event_id = e.id
		WHERE m.id = $1`

	evctx := &models.EventContext{}
	err := r.db.QueryRowContext(ctx, query, matchID).Scan(
		&evctx.EventID,
		&evctx.BestOf,
		&evctx.PointsPerWin,
		&evctx.PointsPerLoss,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventContextNotFound
		}
		return nil, fmt.Errorf("failed to scan event context for match %s: %w", matchID, err)
	}
	return evctx, nil
}
