// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/config"
	"github.com/jason-s-yu/oichokabu/internal/events"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for settled rounds.
const DefaultQueueName = "oichokabu_rounds"

// ConnectRedis opens a client for cfg and checks it with a PING.
func ConnectRedis(cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// NewRoundRecord flattens a settlement into the queue format.
func NewRoundRecord(st *game.Settlement, at time.Time) models.RoundRecord {
	rec := models.RoundRecord{
		ID:          uuid.New(),
		RoomCode:    st.RoomCode,
		RoundNumber: st.RoundNumber,
		FieldCard:   int(st.FieldCard),
		DealerID:    st.DealerID,
		SettledAt:   at.UTC(),
		Results:     make([]models.RoundResult, 0, len(st.PlayerResults)+1),
	}
	rec.Results = append(rec.Results, models.RoundResult{
		PlayerID:    st.DealerID,
		Nickname:    st.DealerNickname,
		IsDealer:    true,
		Hand:        cardInts(st.DealerHand),
		HandTotal:   st.DealerTotal,
		Role:        st.DealerRole.String(),
		RoundResult: st.DealerResult,
		ChipsAfter:  st.DealerChips,
	})
	for _, pr := range st.PlayerResults {
		rec.Results = append(rec.Results, models.RoundResult{
			PlayerID:    pr.PlayerID,
			Nickname:    pr.Nickname,
			Hand:        cardInts(pr.Hand),
			HandTotal:   pr.HandTotal,
			Role:        pr.Role.String(),
			Bet:         pr.Bet,
			RoundResult: pr.RoundResult,
			ChipsAfter:  pr.Chips,
		})
	}
	return rec
}

func cardInts(hand []game.Card) []int {
	out := make([]int, len(hand))
	for i, c := range hand {
		out[i] = int(c)
	}
	return out
}

// RoundQueue pushes every settled round onto a Redis list for the historian.
// It implements events.Publisher and ignores every other event type.
type RoundQueue struct {
	rdb   *redis.Client
	queue string
}

// NewRoundQueue returns a queue publisher. An empty name uses DefaultQueueName.
func NewRoundQueue(rdb *redis.Client, queue string) *RoundQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &RoundQueue{rdb: rdb, queue: queue}
}

// Publish serializes round_ended settlements to JSON and RPUSHes them.
// This does not block the calling logic (other than a quick network send).
func (q *RoundQueue) Publish(ctx context.Context, ev events.Event) error {
	if ev.Type != events.RoundEnded || ev.Settlement == nil {
		return nil
	}
	return q.Push(ctx, NewRoundRecord(ev.Settlement, ev.OccurredAt))
}

// Push appends one record to the queue.
func (q *RoundQueue) Push(ctx context.Context, rec models.RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundRecord: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// Pop blocks up to timeout for the next record. It returns (nil, nil) on timeout.
func (q *RoundQueue) Pop(ctx context.Context, timeout time.Duration) (*models.RoundRecord, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", q.queue, err)
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return nil, nil
	}
	var rec models.RoundRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("invalid round record: %w", err)
	}
	return &rec, nil
}
