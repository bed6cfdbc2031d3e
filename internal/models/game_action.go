package models

// PlayerAction captures a player's inbound move, regardless of the transport it arrived on.
type PlayerAction struct {
	ActionType string `json:"type"`
	Amount     int    `json:"amount,omitempty"`
}

// Action types accepted from clients.
const (
	ActionStartGame  = "start_game"
	ActionPlaceBet   = "place_bet"
	ActionDrawCard   = "draw_card"
	ActionStand      = "stand"
	ActionNextRound  = "next_round"
	ActionResetStats = "reset_stats"
	ActionLeaveRoom  = "leave_room"
	ActionPing       = "ping"
)
