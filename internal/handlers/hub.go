// internal/handlers/hub.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/events"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/sirupsen/logrus"
)

const clientBuffer = 32

// serverMessage is what every connected client receives after a committed change.
// GameState is built for the receiving player, so hands stay private.
type serverMessage struct {
	Type        events.Type      `json:"type"`
	RoomCode    string           `json:"roomCode"`
	ActorID     *uuid.UUID       `json:"actorId,omitempty"`
	Amount      int              `json:"amount,omitempty"`
	Version     int64            `json:"version"`
	Room        *game.RoomView   `json:"room,omitempty"`
	GameState   *game.StateView  `json:"gameState,omitempty"`
	RoundResult *game.Settlement `json:"roundResult,omitempty"`
}

func buildMessage(ev events.Event, sess *game.Session, viewer uuid.UUID) serverMessage {
	msg := serverMessage{
		Type:        ev.Type,
		RoomCode:    ev.RoomCode,
		Amount:      ev.Amount,
		Version:     ev.Version,
		RoundResult: ev.Settlement,
	}
	if ev.ActorID != uuid.Nil {
		id := ev.ActorID
		msg.ActorID = &id
	}
	if sess != nil {
		rv := sess.RoomView()
		sv := sess.ViewFor(viewer)
		msg.Room = &rv
		msg.GameState = &sv
		if msg.RoomCode == "" {
			msg.RoomCode = sess.Code
		}
		if msg.Version == 0 {
			msg.Version = sess.Version
		}
	}
	return msg
}

// Client is one websocket connection seated in a room.
type Client struct {
	PlayerID uuid.UUID

	out  chan []byte
	done chan struct{}
	once sync.Once

	closeCode   websocket.StatusCode
	closeReason string
}

// NewClient returns a client with an empty outbound buffer.
func NewClient(playerID uuid.UUID) *Client {
	return &Client{
		PlayerID: playerID,
		out:      make(chan []byte, clientBuffer),
		done:     make(chan struct{}),
	}
}

// send queues data without blocking and reports whether there was room.
func (c *Client) send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

// Close asks the write pump to flush and close the connection with code.
func (c *Client) Close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hub tracks the websocket clients of every room served by this process and fans
// committed events out to them. It implements events.Publisher.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *logrus.Logger
	encode func(v any) ([]byte, error)
}

// NewHub returns an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
		encode: json.Marshal,
	}
}

// Register adds c to the room's broadcast set.
func (h *Hub) Register(code string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[code]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[code] = set
	}
	set[c] = struct{}{}
}

// Unregister removes c; the room entry goes away with its last client.
func (h *Hub) Unregister(code string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.rooms[code]
	delete(set, c)
	if len(set) == 0 {
		delete(h.rooms, code)
	}
}

// Clients returns the number of connections registered for code.
func (h *Hub) Clients(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

func (h *Hub) snapshot(code string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.rooms[code]))
	for c := range h.rooms[code] {
		out = append(out, c)
	}
	return out
}

// Publish delivers ev to every client in the room, each with its own view.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	h.broadcast(ev, ev.Session)
	return nil
}

func (h *Hub) broadcast(ev events.Event, sess *game.Session) {
	for _, c := range h.snapshot(ev.RoomCode) {
		data, err := h.encode(buildMessage(ev, sess, c.PlayerID))
		if err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{"event": ev.Type, "player": c.PlayerID}).Error("failed to marshal event")
			continue
		}
		if !c.send(data) {
			h.logger.WithFields(logrus.Fields{"room": ev.RoomCode, "player": c.PlayerID}).Warn("client too slow, disconnecting")
			c.Close(SlowConsumerError, "too many pending messages")
			continue
		}
		switch {
		case ev.Type == events.RoomClosed:
			c.Close(RoomClosedError, "room closed")
		case sess != nil && sess.Player(c.PlayerID) == nil:
			c.Close(websocket.StatusNormalClosure, "left room")
		}
	}
}

// Loader fetches the committed state of a room.
type Loader func(ctx context.Context, code string) (*game.Session, error)

// Refresh rebroadcasts a room after another instance changed it.
func (h *Hub) Refresh(ctx context.Context, n events.Notice, load Loader) {
	if h.Clients(n.RoomCode) == 0 {
		return
	}
	ev := events.Event{Type: n.Type, RoomCode: n.RoomCode, Version: n.Version}
	sess, err := load(ctx, n.RoomCode)
	if errors.Is(err, game.ErrNotFound) {
		ev.Type = events.RoomClosed
		h.broadcast(ev, nil)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("room", n.RoomCode).Warn("failed to refresh room")
		return
	}
	ev.Settlement = nil
	if n.Type == events.RoundEnded {
		ev.Settlement = sess.LastSettlement
	}
	h.broadcast(ev, sess)
}
