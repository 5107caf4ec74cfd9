package models

import "github.com/google/uuid"

// EventContext carries the scoring parameters of a championship event.
// Read-only input for this core; the event CRUD layer owns it.
type EventContext struct {
	EventID       uuid.UUID `json:"event_id" db:"event_id"`
	BestOf        int       `json:"best_of" db:"best_of"`
	PointsPerWin  int       `json:"points_per_win" db:"points_per_win"`
	PointsPerLoss int       `json:"points_per_loss" db:"points_per_loss"`
}

// Majority is the number of set wins that decides a match: ceil(bestOf/2).
func (e *EventContext) Majority() int {
	return e.BestOf/2 + 1
}
