package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	id           UUID PRIMARY KEY,
	room_code    TEXT        NOT NULL,
	round_number INTEGER     NOT NULL,
	field_card   SMALLINT    NOT NULL,
	dealer_id    UUID        NOT NULL,
	settled_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS round_results (
	round_id     UUID     NOT NULL REFERENCES rounds (id) ON DELETE CASCADE,
	player_id    UUID     NOT NULL,
	nickname     TEXT     NOT NULL,
	is_dealer    BOOLEAN  NOT NULL,
	hand         INTEGER[] NOT NULL,
	hand_total   SMALLINT NOT NULL,
	role         TEXT     NOT NULL DEFAULT '',
	bet          INTEGER  NOT NULL,
	round_result INTEGER  NOT NULL,
	chips_after  INTEGER  NOT NULL,
	PRIMARY KEY (round_id, player_id)
);

CREATE INDEX IF NOT EXISTS round_results_player_idx ON round_results (player_id);
`

// EnsureSchema creates the history tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
