package models

import (
	"time"

	"github.com/google/uuid"
)

// Registration is a tournament entry. The CRUD layer owns its identity and
// profile; this core only ever writes the aggregate counters below, and only
// through the standings updater on a match's completion transition.
type Registration struct {
	ID          uuid.UUID `json:"id" db:"id"`
	EventID     uuid.UUID `json:"event_id" db:"event_id"`
	MatchesWon  int       `json:"matches_won" db:"matches_won"`
	MatchesLost int       `json:"matches_lost" db:"matches_lost"`
	SetsWon     int       `json:"sets_won" db:"sets_won"`
	SetsLost    int       `json:"sets_lost" db:"sets_lost"`
	Points      int       `json:"points" db:"points"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
