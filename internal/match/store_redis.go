package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRetention   = 24 * time.Hour
	defaultMaxAttempts = 8
	liveIndexKey       = "match:index:live"
)

// RedisStore keeps each session as a JSON record next to a list of its moves.
// Writes go through WATCH/MULTI so concurrent writers from other processes
// are detected and retried.
type RedisStore struct {
	rdb         *redis.Client
	retention   time.Duration
	maxAttempts int
}

func NewRedisStore(rdb *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &RedisStore{rdb: rdb, retention: retention, maxAttempts: defaultMaxAttempts}
}

func sessionKey(id string) string { return "match:session:" + strings.TrimSpace(id) }
func movesKey(id string) string   { return "match:session:" + strings.TrimSpace(id) + ":moves" }

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, sessionKey(s.ID), raw, r.retention).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("create session %s: already exists", s.ID)
	}
	if err := r.rdb.SAdd(ctx, liveIndexKey, s.ID).Err(); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	return loadSession(ctx, r.rdb, id)
}

func (r *RedisStore) Moves(ctx context.Context, id string) ([]MoveRecord, error) {
	if _, err := r.Load(ctx, id); err != nil {
		return nil, err
	}
	return loadMoves(ctx, r.rdb, id)
}

func (r *RedisStore) LiveIDs(ctx context.Context) ([]string, error) {
	return r.rdb.SMembers(ctx, liveIndexKey).Result()
}

func (r *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error) {
	sKey, mKey := sessionKey(id), movesKey(id)
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		var out *Session
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := loadSession(ctx, tx, id)
			if err != nil {
				return err
			}
			records, err := loadMoves(ctx, tx, id)
			if err != nil {
				return err
			}
			log := newMoveLog(records)
			changed, err := fn(cur, log)
			if err != nil {
				return err
			}
			out = cur
			if !changed {
				return nil
			}
			raw, err := json.Marshal(cur)
			if err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, sKey, raw, r.retention)
			if keep, appended, dirty := log.delta(); dirty {
				if keep == 0 {
					pipe.Del(ctx, mKey)
				} else if keep < log.base {
					pipe.LTrim(ctx, mKey, 0, int64(keep-1))
				}
				for _, rec := range appended {
					b, err := json.Marshal(rec)
					if err != nil {
						return fmt.Errorf("encode move: %w", err)
					}
					pipe.RPush(ctx, mKey, b)
				}
			}
			pipe.Expire(ctx, mKey, r.retention)
			if cur.Status.Terminal() {
				pipe.SRem(ctx, liveIndexKey, cur.ID)
			} else {
				pipe.SAdd(ctx, liveIndexKey, cur.ID)
			}
			_, err = pipe.Exec(ctx)
			return err
		}, sKey, mKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrSessionNotFound) {
			_ = r.rdb.SRem(ctx, liveIndexKey, strings.TrimSpace(id)).Err()
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update session %s: too much contention", id)
}

// keyReader is satisfied by both *redis.Client and *redis.Tx.
type keyReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

func loadSession(ctx context.Context, c keyReader, id string) (*Session, error) {
	raw, err := c.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func loadMoves(ctx context.Context, c keyReader, id string) ([]MoveRecord, error) {
	items, err := c.LRange(ctx, movesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load moves: %w", err)
	}
	out := make([]MoveRecord, 0, len(items))
	for _, it := range items {
		var rec MoveRecord
		if err := json.Unmarshal([]byte(it), &rec); err != nil {
			return nil, fmt.Errorf("decode move: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
