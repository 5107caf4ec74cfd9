package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matchdesk/scoring-system/models"
	"github.com/matchdesk/scoring-system/scoring"
)

// matchReport is the archived document: the final snapshot plus the applied
// standings deltas, enough to reconstruct the result without the database.
type matchReport struct {
	ArchivedAt time.Time                 `json:"archived_at"`
	Match      *models.Match             `json:"match"`
	Sets       []*models.Set             `json:"sets"`
	WinnerID   string                    `json:"winner_id"`
	Winner     scoring.RegistrationDelta `json:"winner_delta"`
	Loser      scoring.RegistrationDelta `json:"loser_delta"`
}

// R2ReportArchiver stores a JSON report of every completed match in the
// portal's R2 bucket. Invoked best-effort on the completion transition.
type R2ReportArchiver struct {
	uploader ObjectUploader
}

func NewR2ReportArchiver(uploader ObjectUploader) *R2ReportArchiver {
	return &R2ReportArchiver{uploader: uploader}
}

func (a *R2ReportArchiver) ArchiveMatchReport(ctx context.Context, snapshot *models.MatchSnapshot, outcome *scoring.MatchOutcome) (string, error) {
	report := matchReport{
		ArchivedAt: time.Now().UTC(),
		Match:      snapshot.Match,
		Sets:       snapshot.Sets,
		WinnerID:   outcome.WinnerID.String(),
		Winner:     outcome.Winner,
		Loser:      outcome.Loser,
	}
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal match report: %w", err)
	}

	key := fmt.Sprintf("match-reports/%s/%s.json", snapshot.Match.EventID, snapshot.Match.ID)
	result, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return result.Location, nil
}
