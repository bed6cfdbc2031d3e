// internal/handlers/game_server.go
package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/jason-s-yu/oichokabu/internal/room"
	"github.com/sirupsen/logrus"
)

// HistoryLookup returns a player's most recent round results.
type HistoryLookup func(ctx context.Context, playerID uuid.UUID, limit int) ([]models.PlayerRoundHistory, error)

// GameServer holds what the HTTP and websocket handlers share: the session registry,
// the local websocket hub, and the optional round history reader.
type GameServer struct {
	Registry       *room.Registry
	Hub            *Hub
	History        HistoryLookup
	AllowedOrigins []string
	Logger         *logrus.Logger
}

// NewGameServer wires a server around an existing registry and hub.
func NewGameServer(reg *room.Registry, hub *Hub, logger *logrus.Logger) *GameServer {
	return &GameServer{
		Registry:       reg,
		Hub:            hub,
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	}
}
