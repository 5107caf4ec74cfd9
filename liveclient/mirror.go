package liveclient

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matchdesk/scoring-system/models"
)

// Mirror is the local copy of one match that a viewing session renders from.
// It is reconciled exclusively through room events and snapshots. Every patch
// is applied by set id, never by position, so out-of-order delivery of two
// different sets' updates cannot corrupt either set.
type Mirror struct {
	mu    sync.RWMutex
	match *models.Match
	sets  []*models.Set
}

func NewMirror() *Mirror {
	return &Mirror{}
}

// ApplySnapshot replaces the whole mirror. A snapshot is always authoritative
// over any partially applied local patches.
func (m *Mirror) ApplySnapshot(match *models.Match, sets []*models.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.match = cloneMatch(match)
	m.sets = make([]*models.Set, 0, len(sets))
	for _, s := range sets {
		m.sets = append(m.sets, cloneSet(s))
	}
	sort.Slice(m.sets, func(i, j int) bool {
		return m.sets[i].SetNumber < m.sets[j].SetNumber
	})
}

// AppendSet adds a newly created set. The server echoes creations back to the
// requester as well as the room, so duplicates by id are dropped.
func (m *Mirror) AppendSet(set *models.Set) {
	if set == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sets {
		if s.ID == set.ID {
			return
		}
	}
	m.sets = append(m.sets, cloneSet(set))
}

// PatchSetScore updates the score of the set with the given id. Unknown ids
// are ignored; the next snapshot resolves the divergence.
func (m *Mirror) PatchSetScore(setID uuid.UUID, score1, score2 int, played bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sets {
		if s.ID == setID {
			s.Registration1Score = score1
			s.Registration2Score = score2
			s.Played = played
			return
		}
	}
}

// PatchSet replaces the stored set with the given one, matched by id.
func (m *Mirror) PatchSet(set *models.Set) {
	if set == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.sets {
		if s.ID == set.ID {
			m.sets[i] = cloneSet(set)
			return
		}
	}
}

// Complete marks the mirrored match as played with the given winner.
func (m *Mirror) Complete(winnerID *uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.match == nil {
		return
	}
	m.match.Played = true
	if winnerID != nil {
		id := *winnerID
		m.match.WinnerID = &id
	}
}

// PatchMatchDate applies a confirmed match date change.
func (m *Mirror) PatchMatchDate(date *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.match == nil || date == nil {
		return
	}
	d := *date
	m.match.MatchDate = &d
}

// Snapshot returns a deep copy of the current mirror state. It returns nil
// until the first snapshot has been applied.
func (m *Mirror) Snapshot() *models.MatchSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.match == nil {
		return nil
	}
	sets := make([]*models.Set, 0, len(m.sets))
	for _, s := range m.sets {
		sets = append(sets, cloneSet(s))
	}
	return &models.MatchSnapshot{Match: cloneMatch(m.match), Sets: sets}
}

func cloneMatch(in *models.Match) *models.Match {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneSet(in *models.Set) *models.Set {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}
