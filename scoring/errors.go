package scoring

import "errors"

// Rule rejections. Which of these are user-correctable validation failures
// and which are conflicts with state that moved on is decided by the
// services layer classifier; the rules themselves only name the reason.
var (
	// Validation: the request itself is wrong.
	ErrMatchDateNotSet        = errors.New("match date must be set before scoring")
	ErrMatchMissingOpponent   = errors.New("match has an open slot and cannot be scored")
	ErrInvalidBestOf          = errors.New("best-of must be a positive odd number")
	ErrSetNumberOutOfSequence = errors.New("set number must extend the sequence by exactly one")
	ErrNegativeScore          = errors.New("set scores must be non-negative")
	ErrSetScoreTied           = errors.New("a set must have a winner, tied scores cannot be marked played")
	ErrSetOutOfOrder          = errors.New("sets must be completed in order")
	ErrUnplayedSetExists      = errors.New("previous set must be completed before adding another")

	// State conflicts: the request was aimed at state that has moved on.
	ErrMatchAlreadyCompleted = errors.New("match already completed")
	ErrMatchAlreadyDecided   = errors.New("match already decided, cannot add more sets")
	ErrSetAlreadyPlayed      = errors.New("set already marked played")
)
