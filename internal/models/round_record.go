package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundRecord is the durable summary of one settled round. The server queues it and
// the historian writes it to PostgreSQL.
type RoundRecord struct {
	ID          uuid.UUID     `json:"id"`
	RoomCode    string        `json:"room_code"`
	RoundNumber int           `json:"round_number"`
	FieldCard   int           `json:"field_card"`
	DealerID    uuid.UUID     `json:"dealer_id"`
	SettledAt   time.Time     `json:"settled_at"`
	Results     []RoundResult `json:"results"`
}

// RoundResult is one participant's line in a RoundRecord, dealer included.
type RoundResult struct {
	PlayerID    uuid.UUID `json:"player_id"`
	Nickname    string    `json:"nickname"`
	IsDealer    bool      `json:"is_dealer"`
	Hand        []int     `json:"hand"`
	HandTotal   int       `json:"hand_total"`
	Role        string    `json:"role"`
	Bet         int       `json:"bet"`
	RoundResult int       `json:"round_result"`
	ChipsAfter  int       `json:"chips_after"`
}

// PlayerRoundHistory is a RoundResult read back with its round's context.
type PlayerRoundHistory struct {
	RoundID     uuid.UUID `json:"roundId"`
	RoomCode    string    `json:"roomCode"`
	RoundNumber int       `json:"roundNumber"`
	FieldCard   int       `json:"fieldCard"`
	IsDealer    bool      `json:"isDealer"`
	Hand        []int     `json:"hand"`
	HandTotal   int       `json:"handTotal"`
	Role        string    `json:"role,omitempty"`
	Bet         int       `json:"bet"`
	RoundResult int       `json:"roundResult"`
	ChipsAfter  int       `json:"chipsAfter"`
	SettledAt   time.Time `json:"settledAt"`
}
