package services

import (
	"errors"

	"github.com/matchdesk/scoring-system/repositories"
	"github.com/matchdesk/scoring-system/scoring"
)

var (
	// ErrAccessDenied is terminal for the client's session on that match.
	ErrAccessDenied = errors.New("not authorized for this operation")

	// ErrPlayedFieldImmutable rejects direct mutation of match.played; the
	// completion detector is its only writer.
	ErrPlayedFieldImmutable = errors.New("played is derived from set results and cannot be set directly")

	// ErrNoFieldsToUpdate rejects an update-match request carrying nothing.
	// Absent fields mean no-change, never a clear.
	ErrNoFieldsToUpdate = errors.New("match update must carry at least one field")

	// ErrStandingsApply wraps a standings persistence failure after the
	// match itself already completed. The completion stands; the repair
	// worker retries the standings write.
	ErrStandingsApply = errors.New("failed to apply standings for completed match")
)

// ErrorClass is the taxonomy every surface (websocket and HTTP) maps
// responses from.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassValidation
	ClassStateConflict
	ClassNotFound
	ClassAccessDenied
	ClassStandingsApply
)

// Classify buckets an error into the response taxonomy. Validation means the
// request itself is user-correctable; a state conflict means the request was
// aimed at state that has since moved on, and the client should refresh its
// snapshot rather than retry blindly.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, scoring.ErrMatchDateNotSet),
		errors.Is(err, scoring.ErrMatchMissingOpponent),
		errors.Is(err, scoring.ErrInvalidBestOf),
		errors.Is(err, scoring.ErrSetNumberOutOfSequence),
		errors.Is(err, scoring.ErrUnplayedSetExists),
		errors.Is(err, scoring.ErrNegativeScore),
		errors.Is(err, scoring.ErrSetScoreTied),
		errors.Is(err, scoring.ErrSetOutOfOrder),
		errors.Is(err, repositories.ErrSetNumberConflict),
		errors.Is(err, ErrPlayedFieldImmutable),
		errors.Is(err, ErrNoFieldsToUpdate):
		return ClassValidation

	case errors.Is(err, scoring.ErrMatchAlreadyCompleted),
		errors.Is(err, scoring.ErrMatchAlreadyDecided),
		errors.Is(err, scoring.ErrSetAlreadyPlayed):
		return ClassStateConflict

	case errors.Is(err, repositories.ErrMatchNotFound),
		errors.Is(err, repositories.ErrSetNotFound),
		errors.Is(err, repositories.ErrRegistrationNotFound),
		errors.Is(err, repositories.ErrEventContextNotFound):
		return ClassNotFound

	case errors.Is(err, ErrAccessDenied):
		return ClassAccessDenied

	case errors.Is(err, ErrStandingsApply):
		return ClassStandingsApply

	default:
		return ClassInternal
	}
}
