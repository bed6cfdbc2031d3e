// Package events carries committed room changes from the registry to whoever
// needs to hear about them: local websocket clients, other server instances,
// and the round historian.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/game"
)

// Type names a room event. The values double as websocket message types.
type Type string

const (
	RoomCreated      Type = "room_created"
	RoomJoined       Type = "room_joined"
	PlayerJoined     Type = "player_joined"
	PlayerLeft       Type = "player_left"
	RoomClosed       Type = "room_closed"
	GameStarted      Type = "game_started"
	BettingStarted   Type = "betting_started"
	BetPlaced        Type = "bet_placed"
	CardsDealt       Type = "cards_dealt"
	TurnChanged      Type = "turn_changed"
	CardDrawn        Type = "card_drawn"
	PlayerStand      Type = "player_stand"
	RoundEnded       Type = "round_ended"
	RoundAbandoned   Type = "round_abandoned"
	StatsReset       Type = "stats_reset"
	PlayerConnection Type = "player_connection"
)

// Event is one committed change to a room.
type Event struct {
	Type       Type             `json:"type"`
	RoomCode   string           `json:"roomCode"`
	ActorID    uuid.UUID        `json:"actorId,omitempty"`
	Version    int64            `json:"version"`
	Amount     int              `json:"amount,omitempty"`
	Settlement *game.Settlement `json:"roundResult,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`

	// Session is the committed snapshot the event belongs to. It is never serialized
	// because it contains the deck and every hand.
	Session *game.Session `json:"-"`
}

// Publisher receives events after the change has been committed.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Multi fans every event out to each publisher in order and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
