package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/matchdesk/scoring-system/live"
	"github.com/matchdesk/scoring-system/middleware"
	"github.com/matchdesk/scoring-system/models"
	"github.com/matchdesk/scoring-system/repositories"
	"github.com/matchdesk/scoring-system/services"
)

const requestTimeout = 15 * time.Second

// WebSocketHandler owns the realtime surface: one connection is one scoring
// session on one match's room. Joining the room is the upgrade itself;
// everything after arrives as live.Request frames.
type WebSocketHandler struct {
	hub            *live.Hub
	scoringService services.MatchScoringService
	logger         zerolog.Logger
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(hub *live.Hub, scoringService services.MatchScoringService, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		scoringService: scoringService,
		logger:         logger.With().Str("component", "ws_handler").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO(origin check): restrict to the portal's domains once the
			// frontend hosts are pinned down.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWs upgrades /ws/matches/{matchID} and serves the scoring session.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	matchIDRaw := chi.URLParam(r, "matchID")
	matchID, err := uuid.Parse(matchIDRaw)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid matchID parameter")
		return
	}
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	// The join must fail before the upgrade if the match does not exist.
	if _, err := h.scoringService.GetSnapshot(r.Context(), matchID); err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			errorResponse(w, http.StatusNotFound, "match not found")
			return
		}
		mapServiceErrorToHTTP(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("match_id", matchIDRaw).Msg("websocket upgrade failed")
		return
	}

	client := live.NewClient(h.hub, conn, matchID, actor, h.handleRequest)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	// Authoritative state on join. The client is registered first and the
	// snapshot is read and enqueued inside the match's critical section, so
	// every mutation either shows up in the snapshot or is broadcast after
	// it; nothing can fall between.
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := h.scoringService.DeliverSnapshot(ctx, matchID, func(snapshot *models.MatchSnapshot) {
		h.hub.SendToClient(client, live.Event{
			Type:    live.EventMatchData,
			Payload: live.MatchDataPayload{Match: snapshot.Match, Sets: snapshot.Sets},
		})
	}); err != nil {
		h.logger.Error().Err(err).Str("match_id", matchIDRaw).Msg("failed to deliver join snapshot")
		client.Leave()
		return
	}

	h.logger.Info().
		Str("match_id", matchIDRaw).
		Str("user_id", actor.UserID.String()).
		Msg("scoring session started")
}

func (h *WebSocketHandler) handleRequest(c *live.Client, message []byte) {
	var req live.Request
	if err := json.Unmarshal(message, &req); err != nil {
		h.sendError(c, "", live.CodeValidation, "malformed request")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch req.Type {
	case live.RequestGetSnapshot:
		h.handleGetSnapshot(ctx, c, req)
	case live.RequestCreateSet:
		h.handleCreateSet(ctx, c, req)
	case live.RequestUpdateSetScore:
		h.handleUpdateSetScore(ctx, c, req)
	case live.RequestMarkSetPlayed:
		h.handleMarkSetPlayed(ctx, c, req)
	case live.RequestUpdateMatch:
		h.handleUpdateMatch(ctx, c, req)
	case live.RequestLeave:
		c.Leave()
	default:
		h.sendError(c, req.RequestID, live.CodeValidation, "unknown request type")
	}
}

func (h *WebSocketHandler) handleGetSnapshot(ctx context.Context, c *live.Client, req live.Request) {
	err := h.scoringService.DeliverSnapshot(ctx, c.Room, func(snapshot *models.MatchSnapshot) {
		h.hub.SendToClient(c, live.Event{
			Type:      live.EventMatchData,
			RequestID: req.RequestID,
			Payload:   live.MatchDataPayload{Match: snapshot.Match, Sets: snapshot.Sets},
		})
	})
	if err != nil {
		h.sendServiceError(c, req.RequestID, err)
	}
}

func (h *WebSocketHandler) handleCreateSet(ctx context.Context, c *live.Client, req live.Request) {
	var body live.CreateSetRequest
	if err := json.Unmarshal(req.Data, &body); err != nil {
		h.sendError(c, req.RequestID, live.CodeValidation, "malformed create-set request")
		return
	}
	set, err := h.scoringService.CreateSet(ctx, c.Actor, c.Room, services.CreateSetParams{
		SetNumber:          body.SetNumber,
		Registration1Score: body.Registration1Score,
		Registration2Score: body.Registration2Score,
	})
	if err != nil {
		h.sendServiceError(c, req.RequestID, err)
		return
	}
	// The room broadcast already went out inside the critical section; this
	// is the request-correlated acknowledgment. Mirrors apply by id, so the
	// duplicate is harmless.
	h.hub.SendToClient(c, live.Event{
		Type:      live.EventSetCreated,
		RequestID: req.RequestID,
		Payload:   live.SetCreatedPayload{MatchID: c.Room, Set: set},
	})
}

func (h *WebSocketHandler) handleUpdateSetScore(ctx context.Context, c *live.Client, req live.Request) {
	var body live.UpdateSetScoreRequest
	if err := json.Unmarshal(req.Data, &body); err != nil {
		h.sendError(c, req.RequestID, live.CodeValidation, "malformed update-set-score request")
		return
	}
	set, err := h.scoringService.UpdateSetScore(ctx, c.Actor, body.SetID, body.Registration1Score, body.Registration2Score)
	if err != nil {
		h.sendServiceError(c, req.RequestID, err)
		return
	}
	h.hub.SendToClient(c, live.Event{
		Type:      live.EventMatchScoreUpdated,
		RequestID: req.RequestID,
		Payload: live.MatchScoreUpdatedPayload{
			MatchID:            set.MatchID,
			SetID:              set.ID,
			SetNumber:          set.SetNumber,
			Registration1Score: set.Registration1Score,
			Registration2Score: set.Registration2Score,
			Played:             set.Played,
		},
	})
}

func (h *WebSocketHandler) handleMarkSetPlayed(ctx context.Context, c *live.Client, req live.Request) {
	var body live.MarkSetPlayedRequest
	if err := json.Unmarshal(req.Data, &body); err != nil {
		h.sendError(c, req.RequestID, live.CodeValidation, "malformed mark-set-played request")
		return
	}
	result, err := h.scoringService.MarkSetPlayed(ctx, c.Actor, body.SetID)
	if err != nil {
		h.sendServiceError(c, req.RequestID, err)
		return
	}
	h.hub.SendToClient(c, live.Event{
		Type:      live.EventSetPlayed,
		RequestID: req.RequestID,
		Payload: live.SetPlayedPayload{
			MatchID:        c.Room,
			Set:            result.Set,
			MatchCompleted: result.MatchCompleted,
			WinnerID:       result.WinnerID,
		},
	})
	if result.MatchCompleted {
		// No further events for a completed match; tear the room down.
		h.hub.CloseRoom(c.Room)
	}
}

func (h *WebSocketHandler) handleUpdateMatch(ctx context.Context, c *live.Client, req live.Request) {
	var body live.UpdateMatchRequest
	if err := json.Unmarshal(req.Data, &body); err != nil {
		h.sendError(c, req.RequestID, live.CodeValidation, "malformed update-match request")
		return
	}
	match, err := h.scoringService.UpdateMatch(ctx, c.Actor, c.Room, services.UpdateMatchParams{
		MatchDate: body.MatchDate,
		Played:    body.Played,
	})
	if err != nil {
		h.sendServiceError(c, req.RequestID, err)
		return
	}
	h.hub.SendToClient(c, live.Event{
		Type:      live.EventMatchUpdated,
		RequestID: req.RequestID,
		Payload: live.MatchUpdatedPayload{
			MatchID:   match.ID,
			MatchDate: match.MatchDate,
		},
	})
}

func (h *WebSocketHandler) sendServiceError(c *live.Client, requestID string, err error) {
	class := services.Classify(err)
	code := live.CodeInternal
	message := err.Error()
	switch class {
	case services.ClassValidation:
		code = live.CodeValidation
	case services.ClassStateConflict:
		code = live.CodeStateConflict
	case services.ClassNotFound:
		code = live.CodeNotFound
	case services.ClassAccessDenied:
		code = live.CodeAccessDenied
	default:
		message = "internal error"
		h.logger.Error().Err(err).Str("match_id", c.Room.String()).Msg("request failed")
	}
	h.sendError(c, requestID, code, message)

	// access-denied ends the session on this match; the client must not be
	// offered a retry.
	if class == services.ClassAccessDenied {
		c.Leave()
	}
}

func (h *WebSocketHandler) sendError(c *live.Client, requestID, code, message string) {
	h.hub.SendToClient(c, live.Event{
		Type:      live.EventError,
		RequestID: requestID,
		Payload:   live.ErrorPayload{Message: message, Code: code},
	})
}
