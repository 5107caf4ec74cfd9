package live

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/matchdesk/scoring-system/models"
)

// EventType names the server-to-client events of a match room.
type EventType string

const (
	EventMatchData         EventType = "match-data"
	EventSetCreated        EventType = "set-created"
	EventMatchScoreUpdated EventType = "match-score-updated"
	EventSetPlayed         EventType = "set-played"
	EventMatchCompleted    EventType = "match-completed"
	EventMatchUpdated      EventType = "match-updated"
	EventError             EventType = "err"
)

// Event is the wire envelope for everything the server sends. RequestID is
// echoed from the request that caused the event when there is one, so a
// client can match acknowledgments to in-flight requests.
type Event struct {
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

type MatchDataPayload struct {
	Match *models.Match `json:"match"`
	Sets  []*models.Set `json:"sets"`
}

type SetCreatedPayload struct {
	MatchID uuid.UUID   `json:"match_id"`
	Set     *models.Set `json:"set"`
}

type MatchScoreUpdatedPayload struct {
	MatchID            uuid.UUID `json:"match_id"`
	SetID              uuid.UUID `json:"set_id"`
	SetNumber          int       `json:"set_number"`
	Registration1Score int       `json:"registration1_score"`
	Registration2Score int       `json:"registration2_score"`
	Played             bool      `json:"played"`
}

type SetPlayedPayload struct {
	MatchID        uuid.UUID   `json:"match_id"`
	Set            *models.Set `json:"set"`
	MatchCompleted bool        `json:"match_completed"`
	WinnerID       *uuid.UUID  `json:"winner_id,omitempty"`
}

type MatchCompletedPayload struct {
	MatchID  uuid.UUID `json:"match_id"`
	WinnerID uuid.UUID `json:"winner_id"`
}

type MatchUpdatedPayload struct {
	MatchID   uuid.UUID  `json:"match_id"`
	Played    *bool      `json:"played,omitempty"`
	MatchDate *time.Time `json:"match_date,omitempty"`
	WinnerID  *uuid.UUID `json:"winner_id,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error codes carried on the err event. access-denied is terminal for the
// session; state-conflict tells the client to refetch its snapshot instead
// of retrying.
const (
	CodeValidation    = "validation"
	CodeStateConflict = "state-conflict"
	CodeNotFound      = "not-found"
	CodeAccessDenied  = "access-denied"
	CodeInternal      = "internal"
)

// RequestType names the client-to-server requests. Joining a room is the
// websocket upgrade itself; everything else arrives as a Request.
type RequestType string

const (
	RequestGetSnapshot    RequestType = "get-snapshot"
	RequestCreateSet      RequestType = "create-set"
	RequestUpdateSetScore RequestType = "update-set-score"
	RequestMarkSetPlayed  RequestType = "mark-set-played"
	RequestUpdateMatch    RequestType = "update-match"
	RequestLeave          RequestType = "leave"
)

type Request struct {
	Type      RequestType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type CreateSetRequest struct {
	SetNumber          *int `json:"set_number,omitempty"`
	Registration1Score int  `json:"registration1_score"`
	Registration2Score int  `json:"registration2_score"`
}

type UpdateSetScoreRequest struct {
	SetID              uuid.UUID `json:"set_id"`
	Registration1Score int       `json:"registration1_score"`
	Registration2Score int       `json:"registration2_score"`
}

type MarkSetPlayedRequest struct {
	SetID uuid.UUID `json:"set_id"`
}

type UpdateMatchRequest struct {
	MatchDate *time.Time `json:"match_date,omitempty"`
	Played    *bool      `json:"played,omitempty"`
}
