// internal/database/rounds.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/oichokabu/internal/models"
)

// RecordRounds writes a batch of settled rounds in a single transaction. Replaying a
// record that was already written is a no-op.
func RecordRounds(ctx context.Context, pool *pgxpool.Pool, recs []models.RoundRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertRoundTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert round %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record %d rounds: %w", len(recs), err)
	}
	return nil
}

func insertRoundTx(ctx context.Context, tx pgx.Tx, rec models.RoundRecord) error {
	roundQ := `
		INSERT INTO rounds (id, room_code, round_number, field_card, dealer_id, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, roundQ, rec.ID, rec.RoomCode, rec.RoundNumber, rec.FieldCard, rec.DealerID, rec.SettledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	resultQ := `
		INSERT INTO round_results (
			round_id, player_id, nickname, is_dealer, hand, hand_total, role, bet, round_result, chips_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	batch := &pgx.Batch{}
	for _, r := range rec.Results {
		batch.Queue(resultQ, rec.ID, r.PlayerID, r.Nickname, r.IsDealer, r.Hand, r.HandTotal, r.Role, r.Bet, r.RoundResult, r.ChipsAfter)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// PlayerHistory returns a player's most recent round results, newest first.
func PlayerHistory(ctx context.Context, pool *pgxpool.Pool, playerID uuid.UUID, limit int) ([]models.PlayerRoundHistory, error) {
	q := `
		SELECT r.id, r.room_code, r.round_number, r.field_card, rr.is_dealer, rr.hand,
		       rr.hand_total, rr.role, rr.bet, rr.round_result, rr.chips_after, r.settled_at
		FROM round_results rr
		JOIN rounds r ON r.id = rr.round_id
		WHERE rr.player_id = $1
		ORDER BY r.settled_at DESC
		LIMIT $2
	`
	rows, err := pool.Query(ctx, q, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []models.PlayerRoundHistory
	for rows.Next() {
		var h models.PlayerRoundHistory
		if err := rows.Scan(
			&h.RoundID, &h.RoomCode, &h.RoundNumber, &h.FieldCard, &h.IsDealer, &h.Hand,
			&h.HandTotal, &h.Role, &h.Bet, &h.RoundResult, &h.ChipsAfter, &h.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return out, nil
}
