package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/game"
	"github.com/redis/go-redis/v9"
)

// DefaultRoomTTL expires idle rooms. Every write refreshes it.
const DefaultRoomTTL = time.Hour

// RedisStore keeps each session as one JSON document at room:<CODE>, so any number of
// stateless server instances can share rooms. Saves are WATCH/MULTI compare-and-set
// transactions on the document's version.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps an already connected client. A zero ttl uses DefaultRoomTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func roomKey(code string) string {
	return "room:" + code
}

func playerKey(id uuid.UUID) string {
	return "player:" + id.String()
}

func (s *RedisStore) Load(ctx context.Context, code string) (*game.Session, error) {
	data, err := s.rdb.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound("room %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to GET room %s: %w", code, err)
	}
	var sess game.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode room %s: %w", code, err)
	}
	return &sess, nil
}

func (s *RedisStore) Create(ctx context.Context, sess *game.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode room %s: %w", sess.Code, err)
	}
	ok, err := s.rdb.SetNX(ctx, roomKey(sess.Code), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to SETNX room %s: %w", sess.Code, err)
	}
	if !ok {
		return ErrCodeTaken
	}
	return nil
}

// versionOnly decodes just enough of a stored document to check its version.
type versionOnly struct {
	Version int64 `json:"version"`
}

// checkVersion reads the watched document and fails unless it is at prevVersion.
func checkVersion(ctx context.Context, tx *redis.Tx, code string, prevVersion int64) error {
	raw, err := tx.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return notFound("room %s", code)
	}
	if err != nil {
		return err
	}
	var cur versionOnly
	if err := json.Unmarshal(raw, &cur); err != nil {
		return fmt.Errorf("failed to decode room %s: %w", code, err)
	}
	if cur.Version != prevVersion {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) Save(ctx context.Context, sess *game.Session, prevVersion int64) error {
	key := roomKey(sess.Code)
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode room %s: %w", sess.Code, err)
	}

	txf := func(tx *redis.Tx) error {
		if err := checkVersion(ctx, tx, sess.Code, prevVersion); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			for _, p := range sess.Players {
				pipe.Expire(ctx, playerKey(p.ID), s.ttl)
			}
			return nil
		})
		return err
	}

	err = s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (s *RedisStore) DeleteIfVersion(ctx context.Context, code string, prevVersion int64) error {
	key := roomKey(code)
	txf := func(tx *redis.Tx) error {
		if err := checkVersion(ctx, tx, code, prevVersion); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	err := s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	if err != nil && !errors.Is(err, ErrConflict) && !errors.Is(err, game.ErrNotFound) {
		return fmt.Errorf("failed to DEL room %s: %w", code, err)
	}
	return err
}

func (s *RedisStore) BindPlayer(ctx context.Context, playerID uuid.UUID, code string) error {
	if err := s.rdb.Set(ctx, playerKey(playerID), code, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to bind player %s: %w", playerID, err)
	}
	return nil
}

func (s *RedisStore) UnbindPlayer(ctx context.Context, playerID uuid.UUID) error {
	if err := s.rdb.Del(ctx, playerKey(playerID)).Err(); err != nil {
		return fmt.Errorf("failed to unbind player %s: %w", playerID, err)
	}
	return nil
}

func (s *RedisStore) PlayerRoom(ctx context.Context, playerID uuid.UUID) (string, error) {
	code, err := s.rdb.Get(ctx, playerKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", notFound("player %s is not in a room", playerID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to GET player %s: %w", playerID, err)
	}
	return code, nil
}
