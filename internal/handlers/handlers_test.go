package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/auth"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/jason-s-yu/oichokabu/internal/room"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestServer(t *testing.T) *GameServer {
	t.Helper()
	require.NoError(t, auth.Init(0))
	logger := quietLogger()
	hub := NewHub(logger)
	reg := room.NewRegistry(room.NewMemoryStore(), hub, logger)
	return NewGameServer(reg, hub, logger)
}

func routes(gs *GameServer) *http.ServeMux {
	logger := gs.Logger
	mux := http.NewServeMux()
	mux.HandleFunc("/room/create", CreateRoomHandler(logger, gs))
	mux.HandleFunc("/room/join", JoinRoomHandler(logger, gs))
	mux.HandleFunc("/room/leave", LeaveRoomHandler(logger, gs))
	mux.HandleFunc("/room/status", RoomStatusHandler(logger, gs))
	mux.HandleFunc("/room/ws/", RoomWSHandler(logger, gs))
	mux.HandleFunc("/game/start", StartGameHandler(logger, gs))
	mux.HandleFunc("/game/bet", PlaceBetHandler(logger, gs))
	mux.HandleFunc("/game/action", GameActionHandler(logger, gs))
	mux.HandleFunc("/game/next", NextRoundHandler(logger, gs))
	mux.HandleFunc("/game/reset", ResetStatsHandler(logger, gs))
	mux.HandleFunc("/history", HistoryHandler(logger, gs))
	return mux
}

// call performs one request against mux and decodes the JSON response into out.
func call(t *testing.T, mux http.Handler, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Cookie", "auth_token="+token)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

type seat struct {
	RoomCode string        `json:"roomCode"`
	Player   models.Player `json:"player"`
	Token    string        `json:"token"`
}

func createAndJoin(t *testing.T, mux http.Handler) (host, guest seat) {
	t.Helper()
	require.Equal(t, http.StatusOK, call(t, mux, http.MethodPost, "/room/create", "", map[string]string{"nickname": "Host"}, &host))
	require.Equal(t, http.StatusOK, call(t, mux, http.MethodPost, "/room/join", "", map[string]string{"roomCode": host.RoomCode, "nickname": "Guest"}, &guest))
	return host, guest
}

func TestCreateRoomHandler(t *testing.T) {
	mux := routes(newTestServer(t))

	var resp seat
	code := call(t, mux, http.MethodPost, "/room/create", "", map[string]string{"nickname": "  Alice "}, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, room.ValidRoomCode(resp.RoomCode))
	assert.Equal(t, "Alice", resp.Player.Nickname)
	assert.True(t, resp.Player.IsHost)
	assert.Equal(t, models.InitialChips, resp.Player.Chips)

	claims, err := auth.AuthenticateJWT(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Player.ID, claims.PlayerID)
	assert.Equal(t, resp.RoomCode, claims.RoomCode)

	assert.Equal(t, http.StatusBadRequest, call(t, mux, http.MethodPost, "/room/create", "", map[string]string{"nickname": "   "}, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, call(t, mux, http.MethodGet, "/room/create", "", nil, nil))
}

func TestJoinRoomHandler(t *testing.T) {
	mux := routes(newTestServer(t))
	host, guest := createAndJoin(t, mux)
	assert.Equal(t, host.RoomCode, guest.RoomCode)
	assert.False(t, guest.Player.IsHost)

	var errResp errorResponse
	code := call(t, mux, http.MethodPost, "/room/join", "", map[string]string{"roomCode": "ZZZZZZ", "nickname": "x"}, &errResp)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", errResp.Kind)

	assert.Equal(t, http.StatusBadRequest, call(t, mux, http.MethodPost, "/room/join", "", map[string]string{"roomCode": "abc", "nickname": "x"}, nil))
}

func TestPollingRound(t *testing.T) {
	mux := routes(newTestServer(t))
	host, guest := createAndJoin(t, mux)

	var errResp errorResponse
	assert.Equal(t, http.StatusForbidden, call(t, mux, http.MethodPost, "/game/start", guest.Token, nil, &errResp))
	assert.Equal(t, "unauthorized", errResp.Kind)

	var state gameResponse
	require.Equal(t, http.StatusOK, call(t, mux, http.MethodPost, "/game/start", host.Token, nil, &state))
	assert.Equal(t, game.PhaseBetting, state.GameState.Phase)

	assert.Equal(t, http.StatusBadRequest, call(t, mux, http.MethodPost, "/game/bet", guest.Token, map[string]int{"amount": 101}, nil))
	require.Equal(t, http.StatusOK, call(t, mux, http.MethodPost, "/game/bet", guest.Token, map[string]int{"amount": 25}, &state))
	assert.Equal(t, game.PhasePlayerTurn, state.GameState.Phase)

	// The guest sees their own two cards but not the dealer's.
	for _, p := range state.GameState.Players {
		if p.ID == guest.Player.ID {
			assert.Len(t, p.Hand, 2)
		} else {
			assert.Empty(t, p.Hand)
			assert.Equal(t, 2, p.HandSize)
		}
	}

	assert.Equal(t, http.StatusConflict, call(t, mux, http.MethodPost, "/game/action", host.Token, map[string]string{"action": "stand"}, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, mux, http.MethodPost, "/game/action", guest.Token, map[string]string{"action": "fold"}, nil))

	require.Equal(t, http.StatusOK, call(t, mux, http.MethodPost, "/game/action", guest.Token, map[string]string{"action": "stand"}, &state))
	assert.Equal(t, game.PhaseResult, state.GameState.Phase)
	require.NotNil(t, state.RoundResult)
	assert.Equal(t, -state.RoundResult.PlayerResults[0].RoundResult, state.RoundResult.DealerResult)

	var status statusResponse
	require.Equal(t, http.StatusOK, call(t, mux, http.MethodGet, "/room/status", host.Token, nil, &status))
	assert.Equal(t, game.PhaseResult, status.GameState.Phase)
	require.NotNil(t, status.RoundResult)
	for _, p := range status.GameState.Players {
		assert.NotEmpty(t, p.Hand, "hands are revealed at result")
	}

	require.Equal(t, http.StatusOK, call(t, mux, http.MethodPost, "/game/next", guest.Token, nil, &state))
	assert.Equal(t, guest.Player.ID, state.GameState.DealerID)
	assert.Equal(t, 2, state.GameState.RoundNumber)

	var reset struct {
		Players []game.PlayerView `json:"players"`
	}
	require.Equal(t, http.StatusOK, call(t, mux, http.MethodPost, "/game/reset", host.Token, nil, &reset))
	for _, p := range reset.Players {
		assert.Equal(t, models.InitialChips, p.Chips)
	}
}

func TestRoomStatusRequiresSeat(t *testing.T) {
	mux := routes(newTestServer(t))
	host, _ := createAndJoin(t, mux)

	assert.Equal(t, http.StatusUnauthorized, call(t, mux, http.MethodGet, "/room/status", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, call(t, mux, http.MethodGet, "/room/status", "garbage", nil, nil))
	assert.Equal(t, http.StatusForbidden, call(t, mux, http.MethodGet, "/room/status?code=QQQQQQ", host.Token, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/room/status?code="+host.RoomCode, nil)
	req.Header.Set("Authorization", "Bearer "+host.Token)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLeaveRoomHandler(t *testing.T) {
	mux := routes(newTestServer(t))
	host, guest := createAndJoin(t, mux)

	require.Equal(t, http.StatusOK, call(t, mux, http.MethodPost, "/room/leave", host.Token, nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, mux, http.MethodGet, "/room/status", host.Token, nil, nil))

	var status statusResponse
	require.Equal(t, http.StatusOK, call(t, mux, http.MethodGet, "/room/status", guest.Token, nil, &status))
	assert.Equal(t, guest.Player.ID, status.Room.HostID)

	assert.Equal(t, http.StatusNotFound, call(t, mux, http.MethodPost, "/room/leave", host.Token, nil, nil))
}

func TestHistoryHandler(t *testing.T) {
	gs := newTestServer(t)
	mux := routes(gs)
	player := uuid.New()

	assert.Equal(t, http.StatusServiceUnavailable, call(t, mux, http.MethodGet, "/history?player="+player.String(), "", nil, nil))

	var gotLimit int
	gs.History = func(_ context.Context, id uuid.UUID, limit int) ([]models.PlayerRoundHistory, error) {
		gotLimit = limit
		if id != player {
			return nil, errors.New("unexpected player")
		}
		return []models.PlayerRoundHistory{{RoomCode: "ABCDEF", RoundNumber: 1, RoundResult: 20}}, nil
	}

	var resp struct {
		Rounds []models.PlayerRoundHistory `json:"rounds"`
	}
	require.Equal(t, http.StatusOK, call(t, mux, http.MethodGet, "/history?player="+player.String()+"&limit=5", "", nil, &resp))
	assert.Equal(t, 5, gotLimit)
	require.Len(t, resp.Rounds, 1)
	assert.Equal(t, 20, resp.Rounds[0].RoundResult)

	assert.Equal(t, http.StatusBadRequest, call(t, mux, http.MethodGet, "/history?player=nope", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, mux, http.MethodGet, "/history?player="+player.String()+"&limit=0", "", nil, nil))
	assert.Equal(t, http.StatusInternalServerError, call(t, mux, http.MethodGet, "/history?player="+uuid.NewString(), "", nil, nil))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&game.Error{Kind: game.ErrNotFound}, http.StatusNotFound},
		{&game.Error{Kind: game.ErrUnauthorized}, http.StatusForbidden},
		{&game.Error{Kind: game.ErrInvalidAmount}, http.StatusBadRequest},
		{&game.Error{Kind: game.ErrInvalidPhase}, http.StatusConflict},
		{&game.Error{Kind: game.ErrInvalidTurn}, http.StatusConflict},
		{&game.Error{Kind: game.ErrRoomFull}, http.StatusConflict},
		{&game.Error{Kind: game.ErrInvariant}, http.StatusInternalServerError},
		{room.ErrConflict, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}

	d := describe(&game.Error{Kind: game.ErrInvariant, Op: "deal", Msg: "deck exhausted"})
	assert.Equal(t, "internal error", d.Message, "invariant details stay server side")
}
