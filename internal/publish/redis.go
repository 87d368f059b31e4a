package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/matchpresenter"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

// RedisBus carries snapshots over Redis pub/sub so every gateway instance sees them.
type RedisBus struct {
	rdb       *redis.Client
	presenter *matchpresenter.Presenter
	buffer    int
}

func NewRedisBus(rdb *redis.Client, presenter *matchpresenter.Presenter) *RedisBus {
	return &RedisBus{rdb: rdb, presenter: presenter, buffer: 16}
}

func (b *RedisBus) Publish(ctx context.Context, s *match.Session, now time.Time) error {
	raw, err := json.Marshal(b.presenter.Snapshot(s, now))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := b.rdb.Publish(ctx, topic(s.ID), raw).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, topic(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}
	out := make(chan *matchdto.Snapshot, b.buffer)
	var once sync.Once
	done := make(chan struct{})
	closeFn := func() error {
		var err error
		once.Do(func() {
			close(done)
			err = ps.Close()
		})
		return err
	}
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = closeFn()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap matchdto.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					obslog.L().Warn("publish_decode_error", zap.String("session_id", sessionID), zap.Error(err))
					continue
				}
				select {
				case out <- &snap:
				case <-done:
					return
				case <-ctx.Done():
					_ = closeFn()
					return
				}
			}
		}
	}()
	return &Subscription{C: out, close: closeFn}, nil
}
