package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchdesk/scoring-system/live"
	"github.com/matchdesk/scoring-system/models"
	"github.com/matchdesk/scoring-system/repositories"
	"github.com/matchdesk/scoring-system/scoring"
)

// memStore is shared in-memory state behind the fake repositories, with the
// same guard semantics as the Postgres implementations.
type memStore struct {
	mu      sync.Mutex
	matches map[uuid.UUID]*models.Match
	sets    map[uuid.UUID]*models.Set
	regs    map[uuid.UUID]*models.Registration
	evctx   map[uuid.UUID]*models.EventContext

	completions int
	applyCalls  int
	applyErr    error
}

func newMemStore() *memStore {
	return &memStore{
		matches: make(map[uuid.UUID]*models.Match),
		sets:    make(map[uuid.UUID]*models.Set),
		regs:    make(map[uuid.UUID]*models.Registration),
		evctx:   make(map[uuid.UUID]*models.EventContext),
	}
}

type fakeMatchRepo struct{ s *memStore }

func (r *fakeMatchRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMatchRepo) UpdateMatchDate(_ context.Context, id uuid.UUID, matchDate *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.MatchDate = matchDate
	return nil
}

func (r *fakeMatchRepo) CompleteMatch(_ context.Context, _ repositories.SQLExecutor, id, winnerID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return false, repositories.ErrMatchNotFound
	}
	if m.Played {
		return false, nil
	}
	m.Played = true
	m.WinnerID = &winnerID
	r.s.completions++
	return true, nil
}

func (r *fakeMatchRepo) ListStandingsPending(_ context.Context, limit int) ([]*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var pending []*models.Match
	for _, m := range r.s.matches {
		if m.Played && !m.StandingsApplied {
			cp := *m
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

type fakeSetRepo struct{ s *memStore }

func (r *fakeSetRepo) Create(_ context.Context, _ repositories.SQLExecutor, set *models.Set) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.sets {
		if existing.MatchID == set.MatchID && existing.SetNumber == set.SetNumber {
			return repositories.ErrSetNumberConflict
		}
	}
	set.CreatedAt = time.Now()
	cp := *set
	r.s.sets[set.ID] = &cp
	return nil
}

func (r *fakeSetRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Set, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set, ok := r.s.sets[id]
	if !ok {
		return nil, repositories.ErrSetNotFound
	}
	cp := *set
	return &cp, nil
}

func (r *fakeSetRepo) ListByMatch(_ context.Context, matchID uuid.UUID) ([]*models.Set, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var sets []*models.Set
	for _, set := range r.s.sets {
		if set.MatchID == matchID {
			cp := *set
			sets = append(sets, &cp)
		}
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].SetNumber < sets[j].SetNumber })
	return sets, nil
}

func (r *fakeSetRepo) UpdateScore(_ context.Context, _ repositories.SQLExecutor, id uuid.UUID, score1, score2 int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set, ok := r.s.sets[id]
	if !ok || set.Played {
		return repositories.ErrSetNotFound
	}
	set.Registration1Score = score1
	set.Registration2Score = score2
	return nil
}

func (r *fakeSetRepo) MarkPlayed(_ context.Context, _ repositories.SQLExecutor, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set, ok := r.s.sets[id]
	if !ok || set.Played {
		return repositories.ErrSetNotFound
	}
	set.Played = true
	return nil
}

func (r *fakeSetRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set, ok := r.s.sets[id]
	if !ok || set.Played {
		return repositories.ErrSetNotFound
	}
	delete(r.s.sets, id)
	return nil
}

type fakeRegRepo struct{ s *memStore }

func (r *fakeRegRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.regs[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r *fakeRegRepo) ApplyMatchOutcome(_ context.Context, outcome *scoring.MatchOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.applyErr != nil {
		return r.s.applyErr
	}
	m, ok := r.s.matches[outcome.MatchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if !m.Played {
		return repositories.ErrStandingsMatchNotComplete
	}
	if m.StandingsApplied {
		return repositories.ErrStandingsAlreadyApplied
	}
	for _, delta := range []scoring.RegistrationDelta{outcome.Winner, outcome.Loser} {
		reg, ok := r.s.regs[delta.RegistrationID]
		if !ok {
			return repositories.ErrRegistrationNotFound
		}
		reg.MatchesWon += delta.MatchesWon
		reg.MatchesLost += delta.MatchesLost
		reg.SetsWon += delta.SetsWon
		reg.SetsLost += delta.SetsLost
		reg.Points += delta.Points
	}
	m.StandingsApplied = true
	r.s.applyCalls++
	return nil
}

type fakeEventContextRepo struct{ s *memStore }

func (r *fakeEventContextRepo) GetByMatchID(_ context.Context, matchID uuid.UUID) (*models.EventContext, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev, ok := r.s.evctx[matchID]
	if !ok {
		return nil, repositories.ErrEventContextNotFound
	}
	cp := *ev
	return &cp, nil
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []live.Event
}

func (b *captureBroadcaster) BroadcastToRoom(_ uuid.UUID, event live.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBroadcaster) types() []live.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]live.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store   *memStore
	bus     *captureBroadcaster
	svc     MatchScoringService
	matchID uuid.UUID
	reg1    uuid.UUID
	reg2    uuid.UUID
	scorer  models.Actor
	viewer  models.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	eventID := uuid.New()
	reg1 := uuid.New()
	reg2 := uuid.New()
	matchID := uuid.New()
	date := time.Date(2025, 9, 20, 18, 0, 0, 0, time.UTC)

	store.regs[reg1] = &models.Registration{ID: reg1, EventID: eventID}
	store.regs[reg2] = &models.Registration{ID: reg2, EventID: eventID}
	store.matches[matchID] = &models.Match{
		ID:              matchID,
		EventID:         eventID,
		Registration1ID: &reg1,
		Registration2ID: &reg2,
		MatchDate:       &date,
		CreatedAt:       time.Now(),
	}
	store.evctx[matchID] = &models.EventContext{BestOf: 3, PointsPerWin: 2, PointsPerLoss: 0}

	bus := &captureBroadcaster{}
	svc := NewMatchScoringService(
		&fakeMatchRepo{s: store},
		&fakeSetRepo{s: store},
		&fakeRegRepo{s: store},
		&fakeEventContextRepo{s: store},
		NewRoleAuthorizer("organizer", "referee"),
		bus,
		nil,
		zerolog.Nop(),
	)
	return &fixture{
		store:   store,
		bus:     bus,
		svc:     svc,
		matchID: matchID,
		reg1:    reg1,
		reg2:    reg2,
		scorer:  models.Actor{UserID: uuid.New(), Role: "referee"},
		viewer:  models.Actor{UserID: uuid.New(), Role: "viewer"},
	}
}

// playSet drives one full set through the service: create, then mark played.
func (f *fixture) playSet(t *testing.T, s1, s2 int) *models.Set {
	t.Helper()
	set, err := f.svc.CreateSet(context.Background(), f.scorer, f.matchID, CreateSetParams{
		Registration1Score: s1,
		Registration2Score: s2,
	})
	require.NoError(t, err)
	_, err = f.svc.MarkSetPlayed(context.Background(), f.scorer, set.ID)
	require.NoError(t, err)
	return set
}

func TestCreateSet(t *testing.T) {
	t.Run("assigns next number when none requested", func(t *testing.T) {
		f := newFixture(t)
		set, err := f.svc.CreateSet(context.Background(), f.scorer, f.matchID, CreateSetParams{
			Registration1Score: 3,
			Registration2Score: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, set.SetNumber)
		assert.NotEqual(t, uuid.Nil, set.ID)
		assert.Equal(t, []live.EventType{live.EventSetCreated}, f.bus.types())
	})

	t.Run("rejects second open set", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateSet(context.Background(), f.scorer, f.matchID, CreateSetParams{})
		require.NoError(t, err)
		_, err = f.svc.CreateSet(context.Background(), f.scorer, f.matchID, CreateSetParams{})
		assert.ErrorIs(t, err, scoring.ErrUnplayedSetExists)
	})

	t.Run("rejects unauthorized actor", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateSet(context.Background(), f.viewer, f.matchID, CreateSetParams{})
		assert.ErrorIs(t, err, ErrAccessDenied)
		assert.Equal(t, ClassAccessDenied, Classify(err))
		assert.Empty(t, f.bus.types())
	})

	t.Run("unknown match", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateSet(context.Background(), f.scorer, uuid.New(), CreateSetParams{})
		assert.ErrorIs(t, err, repositories.ErrMatchNotFound)
	})
}

func TestMatchScoringScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.playSet(t, 11, 5)
	f.playSet(t, 9, 11)

	// 1:1 in sets, nothing decided yet.
	match, err := (&fakeMatchRepo{s: f.store}).GetByID(ctx, f.matchID)
	require.NoError(t, err)
	assert.False(t, match.Played)

	set3, err := f.svc.CreateSet(ctx, f.scorer, f.matchID, CreateSetParams{
		Registration1Score: 11,
		Registration2Score: 8,
	})
	require.NoError(t, err)
	result, err := f.svc.MarkSetPlayed(ctx, f.scorer, set3.ID)
	require.NoError(t, err)

	assert.True(t, result.MatchCompleted)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, f.reg1, *result.WinnerID)

	match, err = (&fakeMatchRepo{s: f.store}).GetByID(ctx, f.matchID)
	require.NoError(t, err)
	assert.True(t, match.Played)
	assert.True(t, match.StandingsApplied)

	winner := f.store.regs[f.reg1]
	loser := f.store.regs[f.reg2]
	assert.Equal(t, 1, winner.MatchesWon)
	assert.Equal(t, 0, winner.MatchesLost)
	assert.Equal(t, 2, winner.SetsWon)
	assert.Equal(t, 1, winner.SetsLost)
	assert.Equal(t, 2, winner.Points)
	assert.Equal(t, 0, loser.MatchesWon)
	assert.Equal(t, 1, loser.MatchesLost)
	assert.Equal(t, 1, loser.SetsWon)
	assert.Equal(t, 2, loser.SetsLost)
	assert.Equal(t, 0, loser.Points)

	assert.Equal(t, []live.EventType{
		live.EventSetCreated, live.EventSetPlayed,
		live.EventSetCreated, live.EventSetPlayed,
		live.EventSetCreated, live.EventSetPlayed, live.EventMatchCompleted,
	}, f.bus.types())

	// The match is over; nothing more can be scored.
	_, err = f.svc.CreateSet(ctx, f.scorer, f.matchID, CreateSetParams{})
	assert.ErrorIs(t, err, scoring.ErrMatchAlreadyCompleted)
}

func TestMarkSetPlayed(t *testing.T) {
	t.Run("rejects already played set", func(t *testing.T) {
		f := newFixture(t)
		set := f.playSet(t, 11, 7)
		_, err := f.svc.MarkSetPlayed(context.Background(), f.scorer, set.ID)
		assert.ErrorIs(t, err, scoring.ErrSetAlreadyPlayed)
		assert.Equal(t, ClassStateConflict, Classify(err))
	})

	t.Run("rejects tied score", func(t *testing.T) {
		f := newFixture(t)
		set, err := f.svc.CreateSet(context.Background(), f.scorer, f.matchID, CreateSetParams{
			Registration1Score: 10,
			Registration2Score: 10,
		})
		require.NoError(t, err)
		_, err = f.svc.MarkSetPlayed(context.Background(), f.scorer, set.ID)
		assert.ErrorIs(t, err, scoring.ErrSetScoreTied)
	})

	t.Run("rejects unauthorized actor", func(t *testing.T) {
		f := newFixture(t)
		set, err := f.svc.CreateSet(context.Background(), f.scorer, f.matchID, CreateSetParams{
			Registration1Score: 11,
			Registration2Score: 4,
		})
		require.NoError(t, err)
		_, err = f.svc.MarkSetPlayed(context.Background(), f.viewer, set.ID)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestStandingsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.playSet(t, 11, 5)
	f.playSet(t, 11, 3)
	require.Equal(t, 1, f.store.applyCalls)

	// A repair sweep over an already-applied match changes nothing.
	match, err := (&fakeMatchRepo{s: f.store}).GetByID(ctx, f.matchID)
	require.NoError(t, err)
	require.NoError(t, f.svc.ApplyPendingStandings(ctx, match))

	assert.Equal(t, 1, f.store.applyCalls)
	assert.Equal(t, 1, f.store.regs[f.reg1].MatchesWon)
	assert.Equal(t, 2, f.store.regs[f.reg1].Points)
}

func TestStandingsFailureDoesNotRollBackCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.playSet(t, 11, 5)
	f.store.mu.Lock()
	f.store.applyErr = errors.New("registrations table unavailable")
	f.store.mu.Unlock()

	set, err := f.svc.CreateSet(ctx, f.scorer, f.matchID, CreateSetParams{
		Registration1Score: 11,
		Registration2Score: 6,
	})
	require.NoError(t, err)
	result, err := f.svc.MarkSetPlayed(ctx, f.scorer, set.ID)
	require.NoError(t, err)
	assert.True(t, result.MatchCompleted)

	// Completion committed, counters did not land.
	match, err := (&fakeMatchRepo{s: f.store}).GetByID(ctx, f.matchID)
	require.NoError(t, err)
	assert.True(t, match.Played)
	assert.False(t, match.StandingsApplied)
	assert.Equal(t, 0, f.store.regs[f.reg1].MatchesWon)

	// The repair path picks it up once the failure clears.
	f.store.mu.Lock()
	f.store.applyErr = nil
	f.store.mu.Unlock()

	require.NoError(t, f.svc.ApplyPendingStandings(ctx, match))
	assert.Equal(t, 1, f.store.applyCalls)
	assert.Equal(t, 1, f.store.regs[f.reg1].MatchesWon)
	assert.True(t, f.store.matches[f.matchID].StandingsApplied)
}

func TestConcurrentMarkSetPlayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.playSet(t, 11, 5)
	deciding, err := f.svc.CreateSet(ctx, f.scorer, f.matchID, CreateSetParams{
		Registration1Score: 11,
		Registration2Score: 9,
	})
	require.NoError(t, err)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.svc.MarkSetPlayed(ctx, f.scorer, deciding.ID)
			results <- err
		}()
	}

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, scoring.ErrSetAlreadyPlayed):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, f.store.completions)
	assert.Equal(t, 1, f.store.applyCalls)
}

func TestUpdateSetScore(t *testing.T) {
	t.Run("updates an open set", func(t *testing.T) {
		f := newFixture(t)
		set, err := f.svc.CreateSet(context.Background(), f.scorer, f.matchID, CreateSetParams{
			Registration1Score: 5,
			Registration2Score: 2,
		})
		require.NoError(t, err)

		updated, err := f.svc.UpdateSetScore(context.Background(), f.scorer, set.ID, 11, 7)
		require.NoError(t, err)
		assert.Equal(t, 11, updated.Registration1Score)
		assert.Equal(t, 7, updated.Registration2Score)
		assert.Equal(t, []live.EventType{live.EventSetCreated, live.EventMatchScoreUpdated}, f.bus.types())
	})

	t.Run("played set is immutable", func(t *testing.T) {
		f := newFixture(t)
		set := f.playSet(t, 11, 7)
		_, err := f.svc.UpdateSetScore(context.Background(), f.scorer, set.ID, 11, 9)
		assert.ErrorIs(t, err, scoring.ErrSetAlreadyPlayed)
	})

	t.Run("rejects negative score", func(t *testing.T) {
		f := newFixture(t)
		set, err := f.svc.CreateSet(context.Background(), f.scorer, f.matchID, CreateSetParams{})
		require.NoError(t, err)
		_, err = f.svc.UpdateSetScore(context.Background(), f.scorer, set.ID, -1, 4)
		assert.ErrorIs(t, err, scoring.ErrNegativeScore)
		assert.Equal(t, ClassValidation, Classify(err))
	})
}

func TestDeleteSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.svc.CreateSet(ctx, f.scorer, f.matchID, CreateSetParams{
		Registration1Score: 4,
		Registration2Score: 4,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSet(ctx, f.scorer, set.ID))
	_, ok := f.store.sets[set.ID]
	assert.False(t, ok)

	// Deletion resyncs the room with a fresh snapshot.
	assert.Equal(t, []live.EventType{live.EventSetCreated, live.EventMatchData}, f.bus.types())
}

func TestUpdateMatch(t *testing.T) {
	t.Run("reschedules the match", func(t *testing.T) {
		f := newFixture(t)
		newDate := time.Date(2025, 9, 21, 12, 0, 0, 0, time.UTC)
		match, err := f.svc.UpdateMatch(context.Background(), f.scorer, f.matchID, UpdateMatchParams{
			MatchDate: &newDate,
		})
		require.NoError(t, err)
		require.NotNil(t, match.MatchDate)
		assert.True(t, newDate.Equal(*match.MatchDate))
		assert.Equal(t, []live.EventType{live.EventMatchUpdated}, f.bus.types())
	})

	t.Run("empty update is rejected and changes nothing", func(t *testing.T) {
		f := newFixture(t)
		before := *f.store.matches[f.matchID].MatchDate

		_, err := f.svc.UpdateMatch(context.Background(), f.scorer, f.matchID, UpdateMatchParams{})
		assert.ErrorIs(t, err, ErrNoFieldsToUpdate)
		assert.Equal(t, ClassValidation, Classify(err))

		stored := f.store.matches[f.matchID].MatchDate
		require.NotNil(t, stored, "empty update cleared the match date")
		assert.True(t, before.Equal(*stored))
		assert.Empty(t, f.bus.types())
	})

	t.Run("played flag is not writable", func(t *testing.T) {
		f := newFixture(t)
		played := true
		_, err := f.svc.UpdateMatch(context.Background(), f.scorer, f.matchID, UpdateMatchParams{
			Played: &played,
		})
		assert.ErrorIs(t, err, ErrPlayedFieldImmutable)
	})

	t.Run("completed match cannot be rescheduled", func(t *testing.T) {
		f := newFixture(t)
		f.playSet(t, 11, 5)
		f.playSet(t, 11, 3)

		newDate := time.Now().Add(24 * time.Hour)
		_, err := f.svc.UpdateMatch(context.Background(), f.scorer, f.matchID, UpdateMatchParams{
			MatchDate: &newDate,
		})
		assert.ErrorIs(t, err, scoring.ErrMatchAlreadyCompleted)
	})
}

func TestGetSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.playSet(t, 11, 5)
	_, err := f.svc.CreateSet(ctx, f.scorer, f.matchID, CreateSetParams{
		Registration1Score: 2,
		Registration2Score: 6,
	})
	require.NoError(t, err)

	snapshot, err := f.svc.GetSnapshot(ctx, f.matchID)
	require.NoError(t, err)
	assert.Equal(t, f.matchID, snapshot.Match.ID)
	require.Len(t, snapshot.Sets, 2)
	assert.Equal(t, 1, snapshot.Sets[0].SetNumber)
	assert.Equal(t, 2, snapshot.Sets[1].SetNumber)

	_, err = f.svc.GetSnapshot(ctx, uuid.New())
	assert.ErrorIs(t, err, repositories.ErrMatchNotFound)
}

func TestSnapshotAtomicWithCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.playSet(t, 11, 5)
	deciding, err := f.svc.CreateSet(ctx, f.scorer, f.matchID, CreateSetParams{
		Registration1Score: 11,
		Registration2Score: 9,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.svc.MarkSetPlayed(ctx, f.scorer, deciding.ID)
	}()

	// A snapshot must never show the deciding set played while the match is
	// still open: both belong to the same critical section.
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		snapshot, err := f.svc.GetSnapshot(ctx, f.matchID)
		require.NoError(t, err)
		for _, set := range snapshot.Sets {
			if set.ID == deciding.ID && set.Played {
				assert.True(t, snapshot.Match.Played,
					"snapshot shows the deciding set played but the match open")
			}
		}
	}
}

func TestDeliverSnapshotHoldsOutMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	delivered := make(chan *models.MatchSnapshot, 1)
	go func() {
		_ = f.svc.DeliverSnapshot(ctx, f.matchID, func(snapshot *models.MatchSnapshot) {
			close(entered)
			<-release
			delivered <- snapshot
		})
	}()
	<-entered

	created := make(chan error, 1)
	go func() {
		_, err := f.svc.CreateSet(ctx, f.scorer, f.matchID, CreateSetParams{
			Registration1Score: 7,
			Registration2Score: 2,
		})
		created <- err
	}()

	// The mutation must wait until the snapshot has been handed off.
	select {
	case <-created:
		t.Fatal("mutation ran while the snapshot was being delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-created)

	snapshot := <-delivered
	assert.Empty(t, snapshot.Sets, "delivered snapshot includes a set created after the read")
}
