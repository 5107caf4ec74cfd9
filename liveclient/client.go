// Package liveclient implements the client side of the match room protocol:
// a websocket session bound to one match, a local mirror reconciled from room
// events, and request/acknowledgment correlation for mutations.
//
// There is no event replay. After a disconnect the caller dials a fresh
// session; the join snapshot is authoritative over anything the old mirror
// held.
package liveclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/matchdesk/scoring-system/live"
	"github.com/matchdesk/scoring-system/models"
)

// DefaultSnapshotTimeout bounds how long a session waits for match-data. A
// snapshot that does not arrive in time is a terminal load failure, not a
// validation error.
const DefaultSnapshotTimeout = 15 * time.Second

var (
	// ErrSnapshotTimeout reports that no match-data arrived within the
	// snapshot window.
	ErrSnapshotTimeout = errors.New("liveclient: timed out waiting for match snapshot")

	// ErrAccessDenied reports that the server refused a request for this
	// actor. The session is over; a retry will not succeed.
	ErrAccessDenied = errors.New("liveclient: access denied")

	// ErrMatchCompleted reports that the mirrored match completed and the
	// room was torn down. This is the normal end of a session.
	ErrMatchCompleted = errors.New("liveclient: match completed")

	// ErrSessionClosed reports that the session ended before the request was
	// acknowledged.
	ErrSessionClosed = errors.New("liveclient: session closed")
)

// RequestError is a request rejection delivered on the err event.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("liveclient: request rejected (%s): %s", e.Code, e.Message)
}

type envelope struct {
	Type      live.EventType  `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type Options struct {
	Clock           clockwork.Clock
	SnapshotTimeout time.Duration
	Logger          zerolog.Logger
}

// Client is one scoring session on one match's room.
type Client struct {
	matchID uuid.UUID
	conn    *websocket.Conn
	mirror  *Mirror
	clock   clockwork.Clock
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	pending  map[string]chan error
	snapshot []chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	writeMu sync.Mutex
}

// Dial joins the room for matchID and blocks until the join snapshot has been
// applied to the mirror, or the snapshot window elapses.
//
// baseURL is the server's websocket origin, e.g. "ws://host:8080". The token
// is passed as a query parameter because browsers cannot set headers on
// websocket upgrades.
func Dial(ctx context.Context, baseURL string, matchID uuid.UUID, token string, opts Options) (*Client, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = DefaultSnapshotTimeout
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("liveclient: invalid base url: %w", err)
	}
	u.Path = fmt.Sprintf("/ws/matches/%s", matchID)
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("liveclient: dialing room: %w", err)
	}

	c := &Client{
		matchID: matchID,
		conn:    conn,
		mirror:  NewMirror(),
		clock:   opts.Clock,
		timeout: opts.SnapshotTimeout,
		logger:  opts.Logger.With().Str("component", "liveclient").Str("match_id", matchID.String()).Logger(),
		pending: make(map[string]chan error),
		done:    make(chan struct{}),
	}

	ready := c.registerSnapshotWaiter()
	go c.readLoop()

	select {
	case <-ready:
		return c, nil
	case <-c.clock.After(c.timeout):
		c.shutdown(ErrSnapshotTimeout)
		return nil, ErrSnapshotTimeout
	case <-ctx.Done():
		c.shutdown(ctx.Err())
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.Err()
	}
}

// Mirror returns the session's local match state.
func (c *Client) Mirror() *Mirror { return c.mirror }

// Done is closed when the session ends for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the session ended. ErrMatchCompleted is the normal
// conclusion; anything else is a failure that a fresh Dial may recover from,
// except ErrAccessDenied which is terminal for this actor and match.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// CreateSet asks the server to open a new set. A nil setNumber lets the
// server assign the next number in sequence.
func (c *Client) CreateSet(ctx context.Context, setNumber *int, score1, score2 int) error {
	return c.request(ctx, live.RequestCreateSet, live.CreateSetRequest{
		SetNumber:          setNumber,
		Registration1Score: score1,
		Registration2Score: score2,
	})
}

// UpdateSetScore corrects the score of an unplayed set.
func (c *Client) UpdateSetScore(ctx context.Context, setID uuid.UUID, score1, score2 int) error {
	return c.request(ctx, live.RequestUpdateSetScore, live.UpdateSetScoreRequest{
		SetID:              setID,
		Registration1Score: score1,
		Registration2Score: score2,
	})
}

// MarkSetPlayed finalizes a set. If it is the deciding set the session ends
// with ErrMatchCompleted once the completion events arrive.
func (c *Client) MarkSetPlayed(ctx context.Context, setID uuid.UUID) error {
	return c.request(ctx, live.RequestMarkSetPlayed, live.MarkSetPlayedRequest{SetID: setID})
}

// UpdateMatchDate reschedules the match. The mirror applies the confirmed
// value from the match-updated event, not the requested one.
func (c *Client) UpdateMatchDate(ctx context.Context, date time.Time) error {
	return c.request(ctx, live.RequestUpdateMatch, live.UpdateMatchRequest{MatchDate: &date})
}

// RefreshSnapshot refetches authoritative state into the mirror, bounded by
// the snapshot window.
func (c *Client) RefreshSnapshot(ctx context.Context) error {
	ready := c.registerSnapshotWaiter()

	if err := c.request(ctx, live.RequestGetSnapshot, nil); err != nil {
		return err
	}
	select {
	case <-ready:
		return nil
	case <-c.clock.After(c.timeout):
		return ErrSnapshotTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.sessionErr()
	}
}

// Close leaves the room and ends the session. In-flight mutations already
// accepted by the server still complete and are broadcast to the room.
func (c *Client) Close() error {
	c.shutdown(ErrSessionClosed)
	return nil
}

func (c *Client) request(ctx context.Context, reqType live.RequestType, body interface{}) error {
	requestID := uuid.New().String()

	var data json.RawMessage
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("liveclient: encoding request: %w", err)
		}
		data = raw
	}

	ack := make(chan error, 1)
	c.mu.Lock()
	c.pending[requestID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.writeJSON(live.Request{Type: reqType, RequestID: requestID, Data: data}); err != nil {
		return fmt.Errorf("liveclient: sending request: %w", err)
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.sessionErr()
	}
}

func (c *Client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) registerSnapshotWaiter() <-chan struct{} {
	ready := make(chan struct{})
	c.mu.Lock()
	c.snapshot = append(c.snapshot, ready)
	c.mu.Unlock()
	return ready
}

func (c *Client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("liveclient: connection lost: %w", err))
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed event")
			continue
		}
		if terminal := c.handleEvent(env); terminal != nil {
			c.shutdown(terminal)
			return
		}
	}
}

// handleEvent applies one event to the mirror and resolves any pending
// request it acknowledges. A non-nil return ends the session.
func (c *Client) handleEvent(env envelope) error {
	switch env.Type {
	case live.EventMatchData:
		var p struct {
			Match *models.Match `json:"match"`
			Sets  []*models.Set `json:"sets"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed match-data payload")
			return nil
		}
		c.mirror.ApplySnapshot(p.Match, p.Sets)
		c.resolve(env.RequestID, nil)
		c.notifySnapshotWaiters()

	case live.EventSetCreated:
		var p live.SetCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil
		}
		c.mirror.AppendSet(p.Set)
		c.resolve(env.RequestID, nil)

	case live.EventMatchScoreUpdated:
		var p live.MatchScoreUpdatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil
		}
		c.mirror.PatchSetScore(p.SetID, p.Registration1Score, p.Registration2Score, p.Played)
		c.resolve(env.RequestID, nil)

	case live.EventSetPlayed:
		var p live.SetPlayedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil
		}
		c.mirror.PatchSet(p.Set)
		c.resolve(env.RequestID, nil)
		if p.MatchCompleted {
			c.mirror.Complete(p.WinnerID)
			return ErrMatchCompleted
		}

	case live.EventMatchCompleted:
		var p live.MatchCompletedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil
		}
		winner := p.WinnerID
		c.mirror.Complete(&winner)
		return ErrMatchCompleted

	case live.EventMatchUpdated:
		var p live.MatchUpdatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil
		}
		c.mirror.PatchMatchDate(p.MatchDate)
		c.resolve(env.RequestID, nil)

	case live.EventError:
		var p live.ErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil
		}
		if p.Code == live.CodeAccessDenied {
			c.resolve(env.RequestID, ErrAccessDenied)
			return ErrAccessDenied
		}
		c.resolve(env.RequestID, &RequestError{Code: p.Code, Message: p.Message})

	default:
		c.logger.Warn().Str("type", string(env.Type)).Msg("ignoring unknown event type")
	}
	return nil
}

func (c *Client) resolve(requestID string, err error) {
	if requestID == "" {
		return
	}
	c.mu.Lock()
	ack, ok := c.pending[requestID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ack <- err:
	default:
	}
}

func (c *Client) notifySnapshotWaiters() {
	c.mu.Lock()
	waiters := c.snapshot
	c.snapshot = nil
	c.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

func (c *Client) sessionErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrSessionClosed
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		_ = c.conn.Close()
		close(c.done)
	})
}
