package scoring

import (
	"errors"

	"github.com/google/uuid"

	"github.com/matchdesk/scoring-system/models"
)

var ErrMatchNotDecided = errors.New("cannot compute standings for an undecided match")

// RegistrationDelta is the increment a finalized match applies to one
// registration's aggregate counters.
type RegistrationDelta struct {
	RegistrationID uuid.UUID
	MatchesWon     int
	MatchesLost    int
	SetsWon        int
	SetsLost       int
	Points         int
}

// MatchOutcome is the complete, finalized effect of one completed match on
// standings. It is applied atomically, exactly once, by the registration
// repository on the match's played transition.
type MatchOutcome struct {
	MatchID  uuid.UUID
	WinnerID uuid.UUID
	Winner   RegistrationDelta
	Loser    RegistrationDelta
}

// ComputeMatchOutcome re-tallies the played sets and produces both
// registrations' deltas. The tally goes through the same set-win counting as
// the completion detector, so the two can never disagree on who won a set.
func ComputeMatchOutcome(match *models.Match, sets []*models.Set, evctx *models.EventContext) (*MatchOutcome, error) {
	out := EvaluateCompletion(match, sets, evctx)
	if !out.Decided || out.WinnerID == nil {
		return nil, ErrMatchNotDecided
	}

	reg1 := RegistrationDelta{
		RegistrationID: *match.Registration1ID,
		SetsWon:        out.Wins1,
		SetsLost:       out.Wins2,
	}
	reg2 := RegistrationDelta{
		RegistrationID: *match.Registration2ID,
		SetsWon:        out.Wins2,
		SetsLost:       out.Wins1,
	}

	winner, loser := reg1, reg2
	if *out.WinnerID == reg2.RegistrationID {
		winner, loser = reg2, reg1
	}
	winner.MatchesWon = 1
	winner.Points = evctx.PointsPerWin
	loser.MatchesLost = 1
	loser.Points = evctx.PointsPerLoss

	return &MatchOutcome{
		MatchID:  match.ID,
		WinnerID: *out.WinnerID,
		Winner:   winner,
		Loser:    loser,
	}, nil
}
