// internal/handlers/room.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/oichokabu/internal/auth"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/jason-s-yu/oichokabu/internal/room"
	"github.com/sirupsen/logrus"
)

type createRoomRequest struct {
	Nickname string `json:"nickname"`
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Nickname string `json:"nickname"`
}

type seatResponse struct {
	RoomCode string            `json:"roomCode"`
	Player   *models.Player    `json:"player"`
	Players  []game.PlayerView `json:"players,omitempty"`
	Room     game.RoomView     `json:"room"`
	Token    string            `json:"token"`
}

type statusResponse struct {
	Room        game.RoomView    `json:"room"`
	GameState   game.StateView   `json:"gameState"`
	RoundResult *game.Settlement `json:"roundResult,omitempty"`
}

// CreateRoomHandler opens a room and seats the caller as host and first dealer.
func CreateRoomHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req createRoomRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(w, "bad create request payload")
			return
		}
		nickname, ok := validNickname(req.Nickname)
		if !ok {
			writeBadRequest(w, "nickname must be 1 to 20 characters")
			return
		}

		sess, player, err := gs.Registry.CreateSession(r.Context(), nickname)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		token, err := auth.CreateJWT(player.ID, sess.Code)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		setAuthCookie(w, token)
		writeJSON(w, http.StatusOK, seatResponse{
			RoomCode: sess.Code,
			Player:   player,
			Room:     sess.RoomView(),
			Token:    token,
		})
	}
}

// JoinRoomHandler seats the caller in an existing waiting room.
func JoinRoomHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req joinRoomRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(w, "bad join request payload")
			return
		}
		code := room.NormalizeCode(req.RoomCode)
		if !room.ValidRoomCode(code) {
			writeBadRequest(w, "room code must be 6 letters or digits")
			return
		}
		nickname, ok := validNickname(req.Nickname)
		if !ok {
			writeBadRequest(w, "nickname must be 1 to 20 characters")
			return
		}

		sess, player, err := gs.Registry.JoinSession(r.Context(), code, nickname)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		token, err := auth.CreateJWT(player.ID, sess.Code)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		rv := sess.RoomView()
		setAuthCookie(w, token)
		writeJSON(w, http.StatusOK, seatResponse{
			RoomCode: sess.Code,
			Player:   player,
			Players:  rv.Players,
			Room:     rv,
			Token:    token,
		})
	}
}

// LeaveRoomHandler gives up the caller's seat.
func LeaveRoomHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		claims, err := authenticate(r)
		if err != nil {
			writeUnauthenticated(w, err)
			return
		}
		if _, err := gs.Registry.LeaveSession(r.Context(), claims.PlayerID); err != nil {
			writeError(w, logger, err)
			return
		}
		clearAuthCookie(w)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// RoomStatusHandler returns the room and the caller's view of the game for polling clients.
func RoomStatusHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		claims, err := authenticate(r)
		if err != nil {
			writeUnauthenticated(w, err)
			return
		}
		code := claims.RoomCode
		if q := r.URL.Query().Get("code"); q != "" {
			code = room.NormalizeCode(q)
		}
		if code != claims.RoomCode {
			writeError(w, logger, &game.Error{Kind: game.ErrUnauthorized, Op: "status", Msg: "token is for another room"})
			return
		}

		sess, err := gs.Registry.Get(r.Context(), code)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if sess.Player(claims.PlayerID) == nil {
			writeError(w, logger, &game.Error{Kind: game.ErrNotFound, Op: "status", Msg: "player is not in this room"})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{
			Room:        sess.RoomView(),
			GameState:   sess.ViewFor(claims.PlayerID),
			RoundResult: sess.LastSettlement,
		})
	}
}
