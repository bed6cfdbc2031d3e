package models

import "github.com/google/uuid"

// InitialChips is the chip balance every player starts with and returns to on a stats reset.
const InitialChips = 100

// Player is a member's persistent identity within a room. It survives rounds.
type Player struct {
	ID          uuid.UUID `json:"id"`
	Nickname    string    `json:"nickname"`
	Chips       int       `json:"chips"`
	TotalResult int       `json:"totalResult"`
	IsHost      bool      `json:"isHost"`
	IsDealer    bool      `json:"isDealer"`
	Connected   bool      `json:"isConnected"`
}

// NewPlayer returns a connected player with a fresh id and the initial chip balance.
func NewPlayer(nickname string, host bool) *Player {
	id, _ := uuid.NewRandom()
	return &Player{
		ID:        id,
		Nickname:  nickname,
		Chips:     InitialChips,
		IsHost:    host,
		Connected: true,
	}
}

// ResetStats restores the initial chip balance and clears the cumulative result.
func (p *Player) ResetStats() {
	p.Chips = InitialChips
	p.TotalResult = 0
}

// Clone returns a copy that shares no memory with p.
func (p *Player) Clone() *Player {
	cp := *p
	return &cp
}
