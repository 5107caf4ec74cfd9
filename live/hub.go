package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/matchdesk/scoring-system/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket subscriber of a single match room.
type Client struct {
	ID    uuid.UUID
	Room  uuid.UUID
	Actor models.Actor

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// onRequest receives every inbound frame; set once before the pumps
	// start.
	onRequest func(*Client, []byte)

	mu     sync.Mutex
	closed bool
}

// Hub keeps one room per match id and fans events out to every subscriber of
// that room. Registration flows through channels processed by Run; broadcast
// is called synchronously from the per-match critical section so that
// broadcast order equals application order.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	rooms  map[uuid.UUID]map[*Client]bool
	mu     sync.RWMutex
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		logger:     logger.With().Str("component", "live_hub").Logger(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.rooms[client.Room]; !ok {
				h.rooms[client.Room] = make(map[*Client]bool)
			}
			h.rooms[client.Room][client] = true
			h.logger.Debug().
				Str("match_id", client.Room.String()).
				Int("subscribers", len(h.rooms[client.Room])).
				Msg("client joined room")
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			h.removeClientLocked(client)
			h.mu.Unlock()
		}
	}
}

// removeClientLocked drops a client from its room and closes its send
// channel once. Callers hold h.mu.
func (h *Hub) removeClientLocked(client *Client) {
	roomClients, ok := h.rooms[client.Room]
	if !ok {
		return
	}
	if _, member := roomClients[client]; !member {
		return
	}
	client.markClosed()
	delete(roomClients, client)
	if len(roomClients) == 0 {
		delete(h.rooms, client.Room)
		h.logger.Debug().Str("match_id", client.Room.String()).Msg("room empty, removed")
	}
}

// BroadcastToRoom sends an event to every subscriber of a match's room.
// The payload is marshalled once.
func (h *Hub) BroadcastToRoom(matchID uuid.UUID, event Event) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("match_id", matchID.String()).Msg("failed to marshal broadcast event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	roomClients, ok := h.rooms[matchID]
	if !ok {
		return
	}
	for client := range roomClients {
		client.enqueue(messageBytes, h.logger)
	}
}

// SendToClient delivers an event to a single client only. Used for err
// responses and snapshot replies, which must not reach other subscribers.
func (h *Hub) SendToClient(client *Client, event Event) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal client event")
		return
	}
	client.enqueue(messageBytes, h.logger)
}

// CloseRoom tears a room down. Completed matches emit no further events, so
// every remaining subscriber is disconnected.
func (h *Hub) CloseRoom(matchID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomClients, ok := h.rooms[matchID]
	if !ok {
		return
	}
	for client := range roomClients {
		client.markClosed()
	}
	delete(h.rooms, matchID)
	h.logger.Info().Str("match_id", matchID.String()).Msg("room closed")
}

// RoomSize reports the current subscriber count of a match's room.
func (h *Hub) RoomSize(matchID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

func NewClient(hub *Hub, conn *websocket.Conn, matchID uuid.UUID, actor models.Actor, onRequest func(*Client, []byte)) *Client {
	return &Client{
		ID:        uuid.New(),
		Room:      matchID,
		Actor:     actor,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		onRequest: onRequest,
	}
}

func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

func (c *Client) enqueue(message []byte, logger zerolog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		logger.Warn().
			Str("client_id", c.ID.String()).
			Str("match_id", c.Room.String()).
			Msg("client send buffer full, dropping event")
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn().Err(err).
					Str("client_id", c.ID.String()).
					Str("match_id", c.Room.String()).
					Msg("unexpected websocket close")
			}
			break
		}
		if c.onRequest != nil {
			c.onRequest(c, message)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn().Err(err).
					Str("client_id", c.ID.String()).
					Msg("failed to write websocket message")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Leave detaches the client from its room without waiting for the read pump
// to notice a closed connection. In-flight mutations already accepted by the
// server still broadcast to the remaining subscribers.
func (c *Client) Leave() {
	c.hub.mu.Lock()
	c.hub.removeClientLocked(c)
	c.hub.mu.Unlock()
}
