package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/game"
)

var (
	// ErrConflict is returned by Store.Save and Store.DeleteIfVersion when the stored
	// version no longer matches.
	ErrConflict = errors.New("session version conflict")
	// ErrCodeTaken is returned by Store.Create when a live session already uses the code.
	ErrCodeTaken = errors.New("room code already in use")
)

// Store persists whole session documents. Implementations must make Save an atomic
// compare-and-set on the session version so that no reader observes a partial write.
type Store interface {
	// Load returns a private copy of the session, or an error matching game.ErrNotFound.
	Load(ctx context.Context, code string) (*game.Session, error)
	// Create stores a new session, failing with ErrCodeTaken if the code is live.
	Create(ctx context.Context, s *game.Session) error
	// Save replaces the session if the stored version equals prevVersion.
	Save(ctx context.Context, s *game.Session, prevVersion int64) error
	// DeleteIfVersion removes the session if the stored version equals prevVersion.
	DeleteIfVersion(ctx context.Context, code string, prevVersion int64) error

	// BindPlayer records which room a player belongs to.
	BindPlayer(ctx context.Context, playerID uuid.UUID, code string) error
	// UnbindPlayer forgets a player's room.
	UnbindPlayer(ctx context.Context, playerID uuid.UUID) error
	// PlayerRoom returns the room code a player belongs to, or an error matching game.ErrNotFound.
	PlayerRoom(ctx context.Context, playerID uuid.UUID) (string, error)
}

func notFound(format string, args ...any) error {
	return &game.Error{Kind: game.ErrNotFound, Op: "lookup", Msg: fmt.Sprintf(format, args...)}
}
