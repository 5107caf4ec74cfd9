package scoring

import (
	"github.com/matchdesk/scoring-system/models"
)

// ValidateSetCreation decides whether a new set may be added to a match and,
// if so, returns the unplayed set skeleton to persist. requestedNumber may be
// nil, in which case the next number in sequence is assigned. The function
// has no side effects; the caller persists the returned set.
func ValidateSetCreation(
	match *models.Match,
	evctx *models.EventContext,
	existing []*models.Set,
	requestedNumber *int,
	score1, score2 int,
) (*models.Set, error) {
	if evctx.BestOf < 1 || evctx.BestOf%2 == 0 {
		return nil, ErrInvalidBestOf
	}
	if match.MatchDate == nil {
		return nil, ErrMatchDateNotSet
	}
	if !match.HasBothRegistrations() {
		return nil, ErrMatchMissingOpponent
	}
	if match.Played {
		return nil, ErrMatchAlreadyCompleted
	}

	wins1, wins2 := countSetWins(existing)
	if wins1 >= evctx.Majority() || wins2 >= evctx.Majority() {
		return nil, ErrMatchAlreadyDecided
	}

	// At most one unplayed set may exist at a time, so the scoring flow is
	// always create, score, mark played, create the next.
	for _, s := range existing {
		if !s.Played {
			return nil, ErrUnplayedSetExists
		}
	}

	next := maxSetNumber(existing) + 1
	if requestedNumber != nil && *requestedNumber != next {
		return nil, ErrSetNumberOutOfSequence
	}
	if score1 < 0 || score2 < 0 {
		return nil, ErrNegativeScore
	}

	return &models.Set{
		MatchID:            match.ID,
		SetNumber:          next,
		Registration1Score: score1,
		Registration2Score: score2,
		Played:             false,
	}, nil
}

// ValidateSetPlayed decides whether target may transition to played.
// allSets must be the full set list of the match, target included.
func ValidateSetPlayed(match *models.Match, target *models.Set, allSets []*models.Set) error {
	if target.Played {
		return ErrSetAlreadyPlayed
	}
	for _, s := range allSets {
		if s.SetNumber < target.SetNumber && !s.Played {
			return ErrSetOutOfOrder
		}
	}
	if target.Registration1Score == target.Registration2Score {
		return ErrSetScoreTied
	}
	// Unreachable through the order rule alone, but two concurrent
	// mark-played calls on sibling sets race against the completion
	// transition. The serialized critical section re-reads state, so this
	// check closes that window.
	if match.Played {
		return ErrMatchAlreadyCompleted
	}
	return nil
}

// ValidateSetMutation gates score edits and deletions of an existing set.
// A played set, and any set of a completed match, is immutable.
func ValidateSetMutation(match *models.Match, target *models.Set) error {
	if match.Played {
		return ErrMatchAlreadyCompleted
	}
	if target.Played {
		return ErrSetAlreadyPlayed
	}
	if match.MatchDate == nil {
		return ErrMatchDateNotSet
	}
	return nil
}

func countSetWins(sets []*models.Set) (wins1, wins2 int) {
	for _, s := range sets {
		switch s.Winner() {
		case 1:
			wins1++
		case 2:
			wins2++
		}
	}
	return wins1, wins2
}

func maxSetNumber(sets []*models.Set) int {
	max := 0
	for _, s := range sets {
		if s.SetNumber > max {
			max = s.SetNumber
		}
	}
	return max
}
