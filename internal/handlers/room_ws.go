// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/oichokabu/internal/events"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/jason-s-yu/oichokabu/internal/middleware"
	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/jason-s-yu/oichokabu/internal/room"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "oichokabu"

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// RoomWSHandler upgrades GET /room/ws/{code} for a seated player. Every committed
// change to the room is pushed to the client with that player's view of the game,
// and client messages are applied through the registry.
func RoomWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "Missing room code in path (/room/ws/{code})", http.StatusBadRequest)
			return
		}
		code := room.NormalizeCode(pathParts[0])
		if !room.ValidRoomCode(code) {
			http.Error(w, "Invalid room code", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: gs.AllowedOrigins,
		})
		if err != nil {
			logger.Warnf("websocket accept error for room %s: %v", code, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, fmt.Sprintf("client must speak the %s subprotocol", Subprotocol))
			return
		}
		claims, err := authenticate(r)
		if err != nil {
			logger.Warnf("websocket authentication failed for room %s: %v", code, err)
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}
		if claims.RoomCode != code {
			c.Close(InvalidRoomCodeError, "token was issued for another room")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := NewClient(claims.PlayerID)
		gs.Hub.Register(code, client)
		defer gs.Hub.Unregister(code, client)

		sess, err := gs.Registry.SetConnected(ctx, code, claims.PlayerID, true)
		if err != nil {
			logger.Warnf("player %s cannot connect to room %s: %v", claims.PlayerID, code, err)
			c.Close(RoomNotFoundError, "not seated in this room")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		// The joining client gets a full snapshot before any broadcast.
		if data, err := json.Marshal(buildMessage(events.Event{Type: events.RoomJoined, ActorID: claims.PlayerID}, sess, claims.PlayerID)); err == nil {
			client.send(data)
		}

		go writePump(ctx, c, client, logger)
		readErr := readPump(ctx, c, gs, code, client, logger)

		cancel()
		if left := errors.Is(readErr, errLeftRoom); !left {
			if _, err := gs.Registry.SetConnected(context.Background(), code, claims.PlayerID, false); err != nil && !errors.Is(err, game.ErrNotFound) {
				logger.WithError(err).Warn("failed to mark player disconnected")
			}
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

var errLeftRoom = errors.New("player left the room")

// readPump applies client messages until the connection fails, the client is closed
// by the hub, or the player leaves. It returns the reason it stopped.
func readPump(ctx context.Context, c *websocket.Conn, gs *GameServer, code string, client *Client, logger *logrus.Logger) error {
	log := logger.WithFields(logrus.Fields{"room": code, "player": client.PlayerID})
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			log.Warnf("ignoring non-text message type %d", msgType)
			continue
		}

		var action models.PlayerAction
		if err := json.Unmarshal(data, &action); err != nil {
			sendClientError(client, errorResponse{Kind: "bad_request", Message: "Invalid JSON format."})
			continue
		}
		log.Debugf("received %s", action.ActionType)

		if err := handleAction(ctx, gs, code, client, action); err != nil {
			if errors.Is(err, errLeftRoom) {
				return err
			}
			sendClientError(client, describe(err))
		}
	}
}

// handleAction routes one client message to the registry. Successful changes reach
// the client through the hub broadcast, so only errors and pongs are answered here.
func handleAction(ctx context.Context, gs *GameServer, code string, client *Client, action models.PlayerAction) error {
	id := client.PlayerID
	var err error
	switch action.ActionType {
	case models.ActionStartGame:
		_, err = gs.Registry.StartGame(ctx, code, id)
	case models.ActionPlaceBet:
		_, err = gs.Registry.PlaceBet(ctx, code, id, action.Amount)
	case models.ActionDrawCard:
		_, _, err = gs.Registry.DrawCard(ctx, code, id)
	case models.ActionStand:
		_, _, err = gs.Registry.Stand(ctx, code, id)
	case models.ActionNextRound:
		_, err = gs.Registry.NextRound(ctx, code, id)
	case models.ActionResetStats:
		_, err = gs.Registry.ResetStats(ctx, code, id)
	case models.ActionLeaveRoom:
		if _, err = gs.Registry.LeaveSession(ctx, id); err == nil {
			return errLeftRoom
		}
	case models.ActionPing:
		if data, mErr := json.Marshal(map[string]string{"type": "pong"}); mErr == nil {
			client.send(data)
		}
	default:
		sendClientError(client, errorResponse{Kind: "bad_request", Message: fmt.Sprintf("Unknown action type: %s", action.ActionType)})
	}
	return err
}

func sendClientError(client *Client, resp errorResponse) {
	resp.Type = "error"
	if data, err := json.Marshal(resp); err == nil {
		client.send(data)
	}
}

// writePump is the only writer on c. It drains the client's queue, pings periodically,
// and closes the connection with the client's close code once the hub closes it.
func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(data []byte) error {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return c.Write(writeCtx, websocket.MessageText, data)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
		drain:
			for {
				select {
				case data := <-client.out:
					if err := write(data); err != nil {
						return
					}
				default:
					break drain
				}
			}
			_ = c.Close(client.closeCode, client.closeReason)
			return
		case data := <-client.out:
			if err := write(data); err != nil {
				logger.Warnf("failed to write to websocket for player %s: %v", client.PlayerID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping player %s: %v, assuming disconnect", client.PlayerID, err)
				return
			}
		}
	}
}
