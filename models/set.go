package models

import (
	"time"

	"github.com/google/uuid"
)

type Set struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	MatchID            uuid.UUID `json:"match_id" db:"match_id"`
	SetNumber          int       `json:"set_number" db:"set_number"`
	Registration1Score int       `json:"registration1_score" db:"registration1_score"`
	Registration2Score int       `json:"registration2_score" db:"registration2_score"`
	Played             bool      `json:"played" db:"played"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Winner reports which side took the set: 1, 2, or 0 for an unplayed or
// tied set. Played sets can never be tied.
func (s *Set) Winner() int {
	if !s.Played {
		return 0
	}
	switch {
	case s.Registration1Score > s.Registration2Score:
		return 1
	case s.Registration2Score > s.Registration1Score:
		return 2
	default:
		return 0
	}
}
