package services

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/matchdesk/scoring-system/repositories"
)

const repairBatchSize = 50

// StandingsRepairWorker periodically retries standings writes for matches
// that completed but whose counters never landed.
// The completion itself is final; only the counters are replayed.
type StandingsRepairWorker struct {
	matchRepo repositories.MatchRepository
	scoring   MatchScoringService
	clock     clockwork.Clock
	interval  time.Duration
	logger    zerolog.Logger
}

func NewStandingsRepairWorker(
	matchRepo repositories.MatchRepository,
	scoring MatchScoringService,
	clock clockwork.Clock,
	interval time.Duration,
	logger zerolog.Logger,
) *StandingsRepairWorker {
	return &StandingsRepairWorker{
		matchRepo: matchRepo,
		scoring:   scoring,
		clock:     clock,
		interval:  interval,
		logger:    logger.With().Str("component", "standings_repair").Logger(),
	}
}

// Run blocks until ctx is cancelled. One sweep runs immediately at startup,
// then on every tick.
func (w *StandingsRepairWorker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("standings repair worker started")
	w.Sweep(ctx)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("standings repair worker stopped")
			return
		case <-ticker.Chan():
			w.Sweep(ctx)
		}
	}
}

// Sweep replays standings for every pending match, continuing past
// individual failures so one poisoned match cannot stall the rest.
func (w *StandingsRepairWorker) Sweep(ctx context.Context) {
	pending, err := w.matchRepo.ListStandingsPending(ctx, repairBatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to list standings-pending matches")
		return
	}
	for _, match := range pending {
		if err := w.scoring.ApplyPendingStandings(ctx, match); err != nil {
			w.logger.Error().Err(err).
				Str("match_id", match.ID.String()).
				Msg("standings repair attempt failed")
		}
	}
}
