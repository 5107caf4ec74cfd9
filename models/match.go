package models

import (
	"time"

	"github.com/google/uuid"
)

type Match struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	EventID         uuid.UUID  `json:"event_id" db:"event_id"`
	GroupID         *uuid.UUID `json:"group_id,omitempty" db:"group_id"`
	Round           int        `json:"round" db:"round"`
	MatchNumber     int        `json:"match_number" db:"match_number"`
	Registration1ID *uuid.UUID `json:"registration1_id,omitempty" db:"registration1_id"`
	Registration2ID *uuid.UUID `json:"registration2_id,omitempty" db:"registration2_id"`
	MatchDate       *time.Time `json:"match_date,omitempty" db:"match_date"`
	Played          bool       `json:"played" db:"played"`
	WinnerID        *uuid.UUID `json:"winner_id,omitempty" db:"winner_id"`
	// BracketPosition is opaque to the scoring core; the bracket layer owns it.
	BracketPosition  *int      `json:"bracket_position,omitempty" db:"bracket_position"`
	StandingsApplied bool      `json:"-" db:"standings_applied"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// MatchSnapshot is the authoritative state sent on join/request: the match
// together with all of its sets, ordered by set number.
type MatchSnapshot struct {
	Match *Match `json:"match"`
	Sets  []*Set `json:"sets"`
}

// HasBothRegistrations reports whether the match has two real entries.
// A bye (either side nil) can never be scored.
func (m *Match) HasBothRegistrations() bool {
	return m.Registration1ID != nil && m.Registration2ID != nil
}
