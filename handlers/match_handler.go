package handlers

import (
	"database/sql"
	"net/http"

	"github.com/matchdesk/scoring-system/services"
)

// MatchHandler is the thin read surface for non-realtime consumers; the
// portal's listing pages render from the same snapshot the websocket serves.
type MatchHandler struct {
	scoringService services.MatchScoringService
	db             *sql.DB
}

func NewMatchHandler(scoringService services.MatchScoringService, db *sql.DB) *MatchHandler {
	return &MatchHandler{scoringService: scoringService, db: db}
}

func (h *MatchHandler) GetMatchSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getUUIDFromURL(r, "matchID")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.scoringService.GetSnapshot(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": snapshot.Match, "sets": snapshot.Sets}, nil); err != nil {
		errorResponse(w, http.StatusInternalServerError, "failed to write response")
	}
}

func (h *MatchHandler) GetMatchSetsHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getUUIDFromURL(r, "matchID")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.scoringService.GetSnapshot(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"sets": snapshot.Sets}, nil); err != nil {
		errorResponse(w, http.StatusInternalServerError, "failed to write response")
	}
}

func (h *MatchHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		errorResponse(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	_ = writeJSON(w, http.StatusOK, jsonResponse{"status": "ok"}, nil)
}
