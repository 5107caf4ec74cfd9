package scoring

import (
	"github.com/google/uuid"

	"github.com/matchdesk/scoring-system/models"
)

// Outcome is the completion detector's verdict over the played sets of a
// match. Decided means one side has reached the majority for the event's
// best-of; WinnerID is only set when Decided.
type Outcome struct {
	Decided  bool
	WinnerID *uuid.UUID
	Wins1    int
	Wins2    int
}

// EvaluateCompletion derives the match outcome from the played subset of
// sets. It is re-run after every played transition and never after a mere
// score edit; edits on unplayed sets cannot decide a match.
func EvaluateCompletion(match *models.Match, sets []*models.Set, evctx *models.EventContext) Outcome {
	wins1, wins2 := countSetWins(sets)
	out := Outcome{Wins1: wins1, Wins2: wins2}

	majority := evctx.Majority()
	switch {
	case wins1 >= majority:
		out.Decided = true
		out.WinnerID = match.Registration1ID
	case wins2 >= majority:
		out.Decided = true
		out.WinnerID = match.Registration2ID
	}
	return out
}
