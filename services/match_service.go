package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/matchdesk/scoring-system/live"
	"github.com/matchdesk/scoring-system/models"
	"github.com/matchdesk/scoring-system/repositories"
	"github.com/matchdesk/scoring-system/scoring"
)

const archiveTimeout = 30 * time.Second

// Broadcaster is the protocol-layer port the service emits through. Events
// are emitted inside the per-match critical section, which is what makes
// broadcast order equal application order for every subscriber of a room.
type Broadcaster interface {
	BroadcastToRoom(matchID uuid.UUID, event live.Event)
}

// ReportArchiver receives the finalized report of a completed match.
// Best-effort: archive failures never affect the completion itself.
type ReportArchiver interface {
	ArchiveMatchReport(ctx context.Context, snapshot *models.MatchSnapshot, outcome *scoring.MatchOutcome) (string, error)
}

type CreateSetParams struct {
	SetNumber          *int
	Registration1Score int
	Registration2Score int
}

type UpdateMatchParams struct {
	MatchDate *time.Time
	Played    *bool
}

// SetPlayedResult carries the played transition plus the completion outcome
// when the set decided the match.
type SetPlayedResult struct {
	Set            *models.Set
	Match          *models.Match
	MatchCompleted bool
	WinnerID       *uuid.UUID
}

type MatchScoringService interface {
	GetSnapshot(ctx context.Context, matchID uuid.UUID) (*models.MatchSnapshot, error)
	DeliverSnapshot(ctx context.Context, matchID uuid.UUID, deliver func(*models.MatchSnapshot)) error
	CreateSet(ctx context.Context, actor models.Actor, matchID uuid.UUID, params CreateSetParams) (*models.Set, error)
	UpdateSetScore(ctx context.Context, actor models.Actor, setID uuid.UUID, score1, score2 int) (*models.Set, error)
	MarkSetPlayed(ctx context.Context, actor models.Actor, setID uuid.UUID) (*SetPlayedResult, error)
	DeleteSet(ctx context.Context, actor models.Actor, setID uuid.UUID) error
	UpdateMatch(ctx context.Context, actor models.Actor, matchID uuid.UUID, params UpdateMatchParams) (*models.Match, error)
	ApplyPendingStandings(ctx context.Context, match *models.Match) error
}

type matchScoringService struct {
	matchRepo repositories.MatchRepository
	setRepo   repositories.SetRepository
	regRepo   repositories.RegistrationRepository
	evctxRepo repositories.EventContextRepository

	authorizer  Authorizer
	broadcaster Broadcaster
	archiver    ReportArchiver
	logger      zerolog.Logger

	// One mutex per match id. Every mutating operation for a match runs as
	// a critical section: validate, persist, detect, standings, broadcast.
	// Different matches proceed concurrently without coordination.
	locks sync.Map
}

func NewMatchScoringService(
	matchRepo repositories.MatchRepository,
	setRepo repositories.SetRepository,
	regRepo repositories.RegistrationRepository,
	evctxRepo repositories.EventContextRepository,
	authorizer Authorizer,
	broadcaster Broadcaster,
	archiver ReportArchiver,
	logger zerolog.Logger,
) MatchScoringService {
	return &matchScoringService{
		matchRepo:   matchRepo,
		setRepo:     setRepo,
		regRepo:     regRepo,
		evctxRepo:   evctxRepo,
		authorizer:  authorizer,
		broadcaster: broadcaster,
		archiver:    archiver,
		logger:      logger.With().Str("component", "match_scoring").Logger(),
	}
}

func (s *matchScoringService) lockMatch(matchID uuid.UUID) func() {
	v, _ := s.locks.LoadOrStore(matchID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *matchScoringService) GetSnapshot(ctx context.Context, matchID uuid.UUID) (*models.MatchSnapshot, error) {
	var snapshot *models.MatchSnapshot
	err := s.DeliverSnapshot(ctx, matchID, func(snap *models.MatchSnapshot) {
		snapshot = snap
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// DeliverSnapshot assembles the match-with-sets snapshot inside the
// per-match critical section and invokes deliver before releasing it. The
// lock makes the two reads atomic against any mutation, and handing the
// snapshot to the transport under the same lock means no event can be
// enqueued between the read and the delivery: a client that applies the
// snapshot and then every following event in order always converges.
func (s *matchScoringService) DeliverSnapshot(ctx context.Context, matchID uuid.UUID, deliver func(*models.MatchSnapshot)) error {
	unlock := s.lockMatch(matchID)
	defer unlock()

	var (
		match *models.Match
		sets  []*models.Set
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		match, err = s.matchRepo.GetByID(gCtx, matchID)
		return err
	})
	g.Go(func() error {
		var err error
		sets, err = s.setRepo.ListByMatch(gCtx, matchID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	deliver(&models.MatchSnapshot{Match: match, Sets: sets})
	return nil
}

func (s *matchScoringService) CreateSet(ctx context.Context, actor models.Actor, matchID uuid.UUID, params CreateSetParams) (*models.Set, error) {
	unlock := s.lockMatch(matchID)
	defer unlock()

	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.CanCreateSet(ctx, actor, match) {
		return nil, ErrAccessDenied
	}

	evctx, err := s.evctxRepo.GetByMatchID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	existing, err := s.setRepo.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	set, err := scoring.ValidateSetCreation(match, evctx, existing, params.SetNumber, params.Registration1Score, params.Registration2Score)
	if err != nil {
		return nil, err
	}
	set.ID = uuid.New()
	if err := s.setRepo.Create(ctx, nil, set); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("match_id", matchID.String()).
		Int("set_number", set.SetNumber).
		Msg("set created")

	s.broadcaster.BroadcastToRoom(matchID, live.Event{
		Type:    live.EventSetCreated,
		Payload: live.SetCreatedPayload{MatchID: matchID, Set: set},
	})
	return set, nil
}

func (s *matchScoringService) UpdateSetScore(ctx context.Context, actor models.Actor, setID uuid.UUID, score1, score2 int) (*models.Set, error) {
	// Resolve the match id outside the lock, then re-read inside it.
	probe, err := s.setRepo.GetByID(ctx, setID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockMatch(probe.MatchID)
	defer unlock()

	set, err := s.setRepo.GetByID(ctx, setID)
	if err != nil {
		return nil, err
	}
	match, err := s.matchRepo.GetByID(ctx, set.MatchID)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.CanCreateSet(ctx, actor, match) {
		return nil, ErrAccessDenied
	}
	if err := scoring.ValidateSetMutation(match, set); err != nil {
		return nil, err
	}
	if score1 < 0 || score2 < 0 {
		return nil, scoring.ErrNegativeScore
	}

	if err := s.setRepo.UpdateScore(ctx, nil, setID, score1, score2); err != nil {
		return nil, err
	}
	set.Registration1Score = score1
	set.Registration2Score = score2

	s.broadcaster.BroadcastToRoom(match.ID, live.Event{
		Type: live.EventMatchScoreUpdated,
		Payload: live.MatchScoreUpdatedPayload{
			MatchID:            match.ID,
			SetID:              set.ID,
			SetNumber:          set.SetNumber,
			Registration1Score: set.Registration1Score,
			Registration2Score: set.Registration2Score,
			Played:             set.Played,
		},
	})
	return set, nil
}

func (s *matchScoringService) MarkSetPlayed(ctx context.Context, actor models.Actor, setID uuid.UUID) (*SetPlayedResult, error) {
	probe, err := s.setRepo.GetByID(ctx, setID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockMatch(probe.MatchID)
	defer unlock()

	set, err := s.setRepo.GetByID(ctx, setID)
	if err != nil {
		return nil, err
	}
	match, err := s.matchRepo.GetByID(ctx, set.MatchID)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.CanMarkSetPlayed(ctx, actor, match) {
		return nil, ErrAccessDenied
	}

	evctx, err := s.evctxRepo.GetByMatchID(ctx, match.ID)
	if err != nil {
		return nil, err
	}
	allSets, err := s.setRepo.ListByMatch(ctx, match.ID)
	if err != nil {
		return nil, err
	}

	if err := scoring.ValidateSetPlayed(match, set, allSets); err != nil {
		return nil, err
	}
	if err := s.setRepo.MarkPlayed(ctx, nil, setID); err != nil {
		return nil, err
	}
	set.Played = true
	for i, existing := range allSets {
		if existing.ID == set.ID {
			allSets[i] = set
		}
	}

	result := &SetPlayedResult{Set: set, Match: match}

	outcome := scoring.EvaluateCompletion(match, allSets, evctx)
	if outcome.Decided {
		if err := s.completeMatch(ctx, match, allSets, evctx, outcome); err != nil {
			return nil, err
		}
		result.MatchCompleted = true
		result.WinnerID = outcome.WinnerID
	}

	s.broadcaster.BroadcastToRoom(match.ID, live.Event{
		Type: live.EventSetPlayed,
		Payload: live.SetPlayedPayload{
			MatchID:        match.ID,
			Set:            set,
			MatchCompleted: result.MatchCompleted,
			WinnerID:       result.WinnerID,
		},
	})
	if result.MatchCompleted {
		// Redundant with the set-played flag so clients that missed it
		// still converge. The protocol layer tears the room down afterwards.
		s.broadcaster.BroadcastToRoom(match.ID, live.Event{
			Type:    live.EventMatchCompleted,
			Payload: live.MatchCompletedPayload{MatchID: match.ID, WinnerID: *result.WinnerID},
		})
	}
	return result, nil
}

// completeMatch performs the one-time completion transition and its side
// effects. Standings and archiving are decoupled: once the played transition
// commits, the outcome is final and their failures only get logged and
// retried.
func (s *matchScoringService) completeMatch(ctx context.Context, match *models.Match, allSets []*models.Set, evctx *models.EventContext, outcome scoring.Outcome) error {
	transitioned, err := s.matchRepo.CompleteMatch(ctx, nil, match.ID, *outcome.WinnerID)
	if err != nil {
		return err
	}
	if !transitioned {
		// A sibling mark-played call won the race and already completed the
		// match; standings were that call's responsibility.
		match.Played = true
		match.WinnerID = outcome.WinnerID
		return nil
	}
	match.Played = true
	match.WinnerID = outcome.WinnerID

	s.logger.Info().
		Str("match_id", match.ID.String()).
		Str("winner_id", outcome.WinnerID.String()).
		Int("wins1", outcome.Wins1).
		Int("wins2", outcome.Wins2).
		Msg("match completed")

	matchOutcome, err := scoring.ComputeMatchOutcome(match, allSets, evctx)
	if err != nil {
		// Cannot happen after a decided evaluation over the same sets, but
		// never let a tally bug roll back a committed completion.
		s.logger.Error().Err(err).Str("match_id", match.ID.String()).Msg("outcome tally failed after completion")
		return nil
	}

	if err := s.regRepo.ApplyMatchOutcome(ctx, matchOutcome); err != nil {
		s.logger.Error().Err(fmt.Errorf("%w: %w", ErrStandingsApply, err)).
			Str("match_id", match.ID.String()).
			Msg("standings update failed after completion, repair worker will retry")
	}

	s.archiveReport(match, allSets, matchOutcome)
	return nil
}

func (s *matchScoringService) archiveReport(match *models.Match, sets []*models.Set, outcome *scoring.MatchOutcome) {
	if s.archiver == nil {
		return
	}
	snapshot := &models.MatchSnapshot{Match: match, Sets: sets}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		location, err := s.archiver.ArchiveMatchReport(ctx, snapshot, outcome)
		if err != nil {
			s.logger.Warn().Err(err).Str("match_id", match.ID.String()).Msg("failed to archive match report")
			return
		}
		s.logger.Info().Str("match_id", match.ID.String()).Str("location", location).Msg("match report archived")
	}()
}

func (s *matchScoringService) DeleteSet(ctx context.Context, actor models.Actor, setID uuid.UUID) error {
	probe, err := s.setRepo.GetByID(ctx, setID)
	if err != nil {
		return err
	}
	unlock := s.lockMatch(probe.MatchID)
	defer unlock()

	set, err := s.setRepo.GetByID(ctx, setID)
	if err != nil {
		return err
	}
	match, err := s.matchRepo.GetByID(ctx, set.MatchID)
	if err != nil {
		return err
	}
	if !s.authorizer.CanCreateSet(ctx, actor, match) {
		return ErrAccessDenied
	}
	if err := scoring.ValidateSetMutation(match, set); err != nil {
		return err
	}
	if err := s.setRepo.Delete(ctx, setID); err != nil {
		return err
	}

	// No dedicated delete event in the vocabulary; the room reconciles from
	// a fresh authoritative snapshot.
	sets, err := s.setRepo.ListByMatch(ctx, match.ID)
	if err != nil {
		return err
	}
	s.broadcaster.BroadcastToRoom(match.ID, live.Event{
		Type:    live.EventMatchData,
		Payload: live.MatchDataPayload{Match: match, Sets: sets},
	})
	return nil
}

func (s *matchScoringService) UpdateMatch(ctx context.Context, actor models.Actor, matchID uuid.UUID, params UpdateMatchParams) (*models.Match, error) {
	unlock := s.lockMatch(matchID)
	defer unlock()

	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.CanUpdateMatch(ctx, actor, match) {
		return nil, ErrAccessDenied
	}
	if params.Played != nil {
		return nil, ErrPlayedFieldImmutable
	}
	// A nil date means "leave it alone". Clearing a schedule would disable
	// scoring on a live match through the date gate, so there is no clear
	// path; an empty request is a caller bug.
	if params.MatchDate == nil {
		return nil, ErrNoFieldsToUpdate
	}
	if match.Played {
		return nil, scoring.ErrMatchAlreadyCompleted
	}

	if err := s.matchRepo.UpdateMatchDate(ctx, matchID, params.MatchDate); err != nil {
		return nil, err
	}
	match.MatchDate = params.MatchDate

	s.broadcaster.BroadcastToRoom(matchID, live.Event{
		Type: live.EventMatchUpdated,
		Payload: live.MatchUpdatedPayload{
			MatchID:   matchID,
			MatchDate: match.MatchDate,
		},
	})
	return match, nil
}

// ApplyPendingStandings retries the standings write for a completed match
// whose counters never landed. Used by the repair worker; a concurrent
// application surfacing as "already applied" counts as success.
func (s *matchScoringService) ApplyPendingStandings(ctx context.Context, match *models.Match) error {
	unlock := s.lockMatch(match.ID)
	defer unlock()

	evctx, err := s.evctxRepo.GetByMatchID(ctx, match.ID)
	if err != nil {
		return err
	}
	sets, err := s.setRepo.ListByMatch(ctx, match.ID)
	if err != nil {
		return err
	}
	outcome, err := scoring.ComputeMatchOutcome(match, sets, evctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStandingsApply, err)
	}
	if err := s.regRepo.ApplyMatchOutcome(ctx, outcome); err != nil {
		if errors.Is(err, repositories.ErrStandingsAlreadyApplied) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrStandingsApply, err)
	}
	s.logger.Info().Str("match_id", match.ID.String()).Msg("standings repaired")
	return nil
}
