package game

import (
	"github.com/google/uuid"
)

// PlayerView is one player as seen by a particular viewer. Hand and HandTotal are
// only filled for the viewer's own seat, or for everyone once the round is in result.
type PlayerView struct {
	ID            uuid.UUID `json:"id"`
	Nickname      string    `json:"nickname"`
	Chips         int       `json:"chips"`
	TotalResult   int       `json:"totalResult"`
	IsHost        bool      `json:"isHost"`
	IsDealer      bool      `json:"isDealer"`
	IsConnected   bool      `json:"isConnected"`
	IsCurrentTurn bool      `json:"isCurrentTurn"`

	HandSize    int    `json:"handSize"`
	Hand        []Card `json:"hand,omitempty"`
	HandTotal   *int   `json:"handTotal,omitempty"`
	Bet         int    `json:"bet"`
	IsStand     bool   `json:"isStand"`
	RoundResult int    `json:"roundResult"`
	Role        Role   `json:"role,omitempty"`
}

// StateView is the externally visible game state. It never contains the deck.
type StateView struct {
	RoomCode            string       `json:"roomCode"`
	Phase               Phase        `json:"phase"`
	RoundNumber         int          `json:"roundNumber"`
	FieldCard           *Card        `json:"fieldCard"`
	CurrentTurnPlayerID *uuid.UUID   `json:"currentTurnPlayerId"`
	DealerID            uuid.UUID    `json:"dealerId"`
	HostID              uuid.UUID    `json:"hostId"`
	DeckRemaining       int          `json:"deckRemaining"`
	Players             []PlayerView `json:"players"`
	Version             int64        `json:"version"`
}

// RoomView is the lobby-level description of a room.
type RoomView struct {
	Code       string       `json:"code"`
	HostID     uuid.UUID    `json:"hostId"`
	Players    []PlayerView `json:"players"`
	MinPlayers int          `json:"minPlayers"`
	MaxPlayers int          `json:"maxPlayers"`
	Phase      Phase        `json:"phase"`
}

// ViewFor builds the state snapshot a given viewer is allowed to see.
// Pass uuid.Nil for a spectator view that reveals no hands before result.
func (s *Session) ViewFor(viewer uuid.UUID) StateView {
	v := StateView{
		RoomCode:      s.Code,
		Phase:         s.Phase,
		RoundNumber:   s.Round,
		DealerID:      s.DealerID,
		HostID:        s.HostID,
		DeckRemaining: s.Deck.Remaining(),
		Players:       make([]PlayerView, len(s.Players)),
		Version:       s.Version,
	}
	if s.FieldCard != nil {
		fc := *s.FieldCard
		v.FieldCard = &fc
	}
	if s.TurnID != uuid.Nil {
		id := s.TurnID
		v.CurrentTurnPlayerID = &id
	}

	reveal := s.Phase == PhaseResult
	for i, p := range s.Players {
		pv := PlayerView{
			ID:            p.ID,
			Nickname:      p.Nickname,
			Chips:         p.Chips,
			TotalResult:   p.TotalResult,
			IsHost:        p.IsHost,
			IsDealer:      p.IsDealer,
			IsConnected:   p.Connected,
			IsCurrentTurn: s.TurnID != uuid.Nil && p.ID == s.TurnID,
		}
		if i < len(s.States) {
			st := s.States[i]
			pv.HandSize = len(st.Hand)
			pv.Bet = st.Bet
			pv.IsStand = st.Stand
			pv.RoundResult = st.Result
			if reveal || p.ID == viewer {
				pv.Hand = append([]Card(nil), st.Hand...)
				total := st.Total
				pv.HandTotal = &total
				pv.Role = st.Role
			}
		}
		v.Players[i] = pv
	}
	return v
}

// RoomView describes the room membership without any round detail.
func (s *Session) RoomView() RoomView {
	rv := RoomView{
		Code:       s.Code,
		HostID:     s.HostID,
		Players:    make([]PlayerView, len(s.Players)),
		MinPlayers: MinPlayers,
		MaxPlayers: MaxPlayers,
		Phase:      s.Phase,
	}
	for i, p := range s.Players {
		rv.Players[i] = PlayerView{
			ID:          p.ID,
			Nickname:    p.Nickname,
			Chips:       p.Chips,
			TotalResult: p.TotalResult,
			IsHost:      p.IsHost,
			IsDealer:    p.IsDealer,
			IsConnected: p.Connected,
		}
	}
	return rv
}
