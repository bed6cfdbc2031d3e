// internal/handlers/game.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/auth"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type betRequest struct {
	Amount int `json:"amount"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type gameResponse struct {
	GameState   game.StateView   `json:"gameState"`
	Room        game.RoomView    `json:"room"`
	RoundResult *game.Settlement `json:"roundResult,omitempty"`
}

func respondState(w http.ResponseWriter, viewer uuid.UUID, sess *game.Session, settlement *game.Settlement) {
	writeJSON(w, http.StatusOK, gameResponse{
		GameState:   sess.ViewFor(viewer),
		Room:        sess.RoomView(),
		RoundResult: settlement,
	})
}

// seated wraps a handler that needs an authenticated caller and a POST request.
func seated(h func(w http.ResponseWriter, r *http.Request, claims auth.Claims)) http.HandlerFunc {
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
		h(w, r, claims)
	}
}

// StartGameHandler lets the host begin the first round.
func StartGameHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return seated(func(w http.ResponseWriter, r *http.Request, c auth.Claims) {
		sess, err := gs.Registry.StartGame(r.Context(), c.RoomCode, c.PlayerID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		respondState(w, c.PlayerID, sess, nil)
	})
}

// PlaceBetHandler records the caller's bet for the current round.
func PlaceBetHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return seated(func(w http.ResponseWriter, r *http.Request, c auth.Claims) {
		var req betRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(w, "bad bet payload")
			return
		}
		sess, err := gs.Registry.PlaceBet(r.Context(), c.RoomCode, c.PlayerID, req.Amount)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		respondState(w, c.PlayerID, sess, nil)
	})
}

// GameActionHandler handles "draw" and "stand" for the player on turn.
func GameActionHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return seated(func(w http.ResponseWriter, r *http.Request, c auth.Claims) {
		var req actionRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(w, "bad action payload")
			return
		}

		var (
			sess       *game.Session
			settlement *game.Settlement
			err        error
		)
		switch req.Action {
		case "draw":
			sess, settlement, err = gs.Registry.DrawCard(r.Context(), c.RoomCode, c.PlayerID)
		case "stand":
			sess, settlement, err = gs.Registry.Stand(r.Context(), c.RoomCode, c.PlayerID)
		default:
			writeBadRequest(w, "action must be draw or stand")
			return
		}
		if err != nil {
			writeError(w, logger, err)
			return
		}
		respondState(w, c.PlayerID, sess, settlement)
	})
}

// NextRoundHandler rotates the dealer and opens betting after a settled round.
func NextRoundHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return seated(func(w http.ResponseWriter, r *http.Request, c auth.Claims) {
		sess, err := gs.Registry.NextRound(r.Context(), c.RoomCode, c.PlayerID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		respondState(w, c.PlayerID, sess, nil)
	})
}

// ResetStatsHandler lets the host restore everyone's chips.
func ResetStatsHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return seated(func(w http.ResponseWriter, r *http.Request, c auth.Claims) {
		sess, err := gs.Registry.ResetStats(r.Context(), c.RoomCode, c.PlayerID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"players": sess.RoomView().Players})
	})
}

// HistoryHandler returns recent round results for ?player=<id>.
func HistoryHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if gs.History == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Kind: "unavailable", Message: "round history is not configured"})
			return
		}
		playerID, err := uuid.Parse(r.URL.Query().Get("player"))
		if err != nil {
			writeBadRequest(w, "player must be a uuid")
			return
		}
		limit := defaultHistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > maxHistoryLimit {
				writeBadRequest(w, "limit must be between 1 and 100")
				return
			}
			limit = n
		}

		rows, err := gs.History(r.Context(), playerID, limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if rows == nil {
			rows = []models.PlayerRoundHistory{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"playerId": playerID, "rounds": rows})
	}
}
