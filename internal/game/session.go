package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/models"
)

const (
	// MinPlayers is the number of players needed to start a game.
	MinPlayers = 2
	// MaxPlayers is the room capacity.
	MaxPlayers = 6

	// The dealer draws a third card while their total is at or below this value.
	dealerDrawThreshold = 4
	maxHandSize         = 3
	dealtHandSize       = 2
)

// RoundPlayerState is one player's ephemeral state for the current round.
type RoundPlayerState struct {
	PlayerID uuid.UUID `json:"playerId"`
	Hand     []Card    `json:"hand"`
	Bet      int       `json:"bet"`
	Stand    bool      `json:"isStand"`
	Total    int       `json:"handTotal"`
	Result   int       `json:"roundResult"`
	Role     Role      `json:"role,omitempty"`
}

func newRoundPlayerState(id uuid.UUID) *RoundPlayerState {
	return &RoundPlayerState{PlayerID: id, Hand: make([]Card, 0, maxHandSize)}
}

func (st *RoundPlayerState) addCard(c Card) {
	st.Hand = append(st.Hand, c)
	st.Total = HandTotal(st.Hand)
	if len(st.Hand) >= maxHandSize {
		st.Stand = true
	}
}

func (st *RoundPlayerState) clone() *RoundPlayerState {
	cp := *st
	cp.Hand = make([]Card, len(st.Hand), maxHandSize)
	copy(cp.Hand, st.Hand)
	return &cp
}

// Session is the whole mutable state of one room. It is not safe for concurrent use;
// the room registry serializes access and commits snapshots atomically.
//
// Players and States share the same order, which is the session order used for
// turn rotation and dealer rotation.
type Session struct {
	Code    string           `json:"code"`
	HostID  uuid.UUID        `json:"hostId"`
	Players []*models.Player `json:"players"`

	Phase       Phase     `json:"phase"`
	Round       int       `json:"roundNumber"`
	FieldCard   *Card     `json:"fieldCard"`
	TurnID      uuid.UUID `json:"currentTurnPlayerId"`
	TurnIndex   int       `json:"turnIndex"`
	DealerID    uuid.UUID `json:"dealerId"`
	DealerIndex int       `json:"dealerIndex"`

	States []*RoundPlayerState `json:"roundStates"`
	Deck   Deck                `json:"deck"`

	// LastSettlement is the result of the most recently finished round.
	LastSettlement *Settlement `json:"lastSettlement,omitempty"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`

	shuffler Shuffler
}

// NewSession builds a waiting room owned by host. The host is also the first dealer.
func NewSession(code string, host *models.Player) *Session {
	host.IsHost = true
	host.IsDealer = true
	s := &Session{
		Code:     code,
		HostID:   host.ID,
		Players:  []*models.Player{host},
		Phase:    PhaseWaiting,
		Round:    1,
		DealerID: host.ID,
		TurnID:   uuid.Nil,
	}
	s.Deck.Reset(s.shuffler)
	return s
}

// SetShuffler overrides the randomness used for deck resets.
func (s *Session) SetShuffler(r Shuffler) {
	s.shuffler = r
}

// Clone returns a deep copy. Mutating the copy never affects s.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Players = make([]*models.Player, len(s.Players))
	for i, p := range s.Players {
		cp.Players[i] = p.Clone()
	}
	if s.States != nil {
		cp.States = make([]*RoundPlayerState, len(s.States))
		for i, st := range s.States {
			cp.States[i] = st.clone()
		}
	}
	if s.FieldCard != nil {
		fc := *s.FieldCard
		cp.FieldCard = &fc
	}
	cp.Deck = s.Deck.clone()
	if s.LastSettlement != nil {
		cp.LastSettlement = s.LastSettlement.clone()
	}
	return &cp
}

func (s *Session) indexOf(id uuid.UUID) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Player returns the member with the given id, or nil.
func (s *Session) Player(id uuid.UUID) *models.Player {
	if i := s.indexOf(id); i >= 0 {
		return s.Players[i]
	}
	return nil
}

// State returns the current round state for a player, or nil outside a round.
func (s *Session) State(id uuid.UUID) *RoundPlayerState {
	for _, st := range s.States {
		if st.PlayerID == id {
			return st
		}
	}
	return nil
}

// Dealer returns the player holding the dealer role.
func (s *Session) Dealer() *models.Player {
	return s.Player(s.DealerID)
}

func (s *Session) setDealer(idx int) {
	for i, p := range s.Players {
		p.IsDealer = i == idx
	}
	s.DealerIndex = idx
	s.DealerID = s.Players[idx].ID
}

// AddPlayer seats a new member at the end of the session order.
func (s *Session) AddPlayer(p *models.Player) error {
	const op = "join"
	if s.Phase != PhaseWaiting {
		return reject(op, ErrInvalidPhase, "game already in progress")
	}
	if len(s.Players) >= MaxPlayers {
		return reject(op, ErrRoomFull, "room has %d players", len(s.Players))
	}
	if s.indexOf(p.ID) >= 0 {
		return reject(op, ErrUnauthorized, "player %s already seated", p.ID)
	}
	p.IsHost = false
	p.IsDealer = false
	s.Players = append(s.Players, p)
	return nil
}

// RemovePlayer takes a member out of the room. The host role passes to the next
// remaining player. If the dealer leaves, or too few players remain, a round in
// progress is abandoned and the session returns to waiting.
func (s *Session) RemovePlayer(id uuid.UUID) (*models.Player, error) {
	const op = "leave"
	idx := s.indexOf(id)
	if idx < 0 {
		return nil, reject(op, ErrNotFound, "player %s", id)
	}
	gone := s.Players[idx]
	wasDealer := idx == s.DealerIndex
	wasTurn := s.TurnID == id

	players := make([]*models.Player, 0, len(s.Players)-1)
	players = append(players, s.Players[:idx]...)
	s.Players = append(players, s.Players[idx+1:]...)
	if s.States != nil {
		states := make([]*RoundPlayerState, 0, len(s.States))
		for _, st := range s.States {
			if st.PlayerID != id {
				states = append(states, st)
			}
		}
		s.States = states
	}
	if len(s.Players) == 0 {
		return gone, nil
	}

	if gone.IsHost {
		s.Players[0].IsHost = true
		s.HostID = s.Players[0].ID
	}

	switch {
	case wasDealer:
		s.setDealer(idx % len(s.Players))
	case idx < s.DealerIndex:
		s.DealerIndex--
	}
	if idx < s.TurnIndex {
		s.TurnIndex--
	}

	if !s.Phase.InRound() {
		return gone, nil
	}
	if wasDealer || len(s.Players) < MinPlayers {
		s.abandonRound()
		return gone, nil
	}

	switch s.Phase {
	case PhaseBetting:
		if s.allBetsPlaced() {
			if err := s.deal(); err != nil {
				return nil, err
			}
		}
	case PhasePlayerTurn:
		if wasTurn {
			s.passTurnFrom(idx % len(s.Players))
		}
	}
	return gone, nil
}

// SetConnected records whether a member currently has a live connection.
func (s *Session) SetConnected(id uuid.UUID, connected bool) error {
	p := s.Player(id)
	if p == nil {
		return reject("connection", ErrNotFound, "player %s", id)
	}
	p.Connected = connected
	return nil
}

func (s *Session) abandonRound() {
	s.Phase = PhaseWaiting
	s.States = nil
	s.FieldCard = nil
	s.LastSettlement = nil
	s.TurnID = uuid.Nil
	s.TurnIndex = s.DealerIndex
	s.Deck.Reset(s.shuffler)
}
