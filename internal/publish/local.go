package publish

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/matchpresenter"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

// LocalBus is the in-process bus used together with the memory store.
// A subscriber that falls behind loses its oldest buffered snapshots rather
// than blocking commits; the newest snapshot is always queued.
type LocalBus struct {
	presenter *matchpresenter.Presenter
	buffer    int

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan *matchdto.Snapshot
}

func NewLocalBus(presenter *matchpresenter.Presenter) *LocalBus {
	return &LocalBus{presenter: presenter, buffer: 16, subs: make(map[string]map[int]chan *matchdto.Snapshot)}
}

func (b *LocalBus) Publish(ctx context.Context, s *match.Session, now time.Time) error {
	snap := b.presenter.Snapshot(s, now)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[s.ID] {
		offer(ch, snap, s.ID)
	}
	return nil
}

// offer queues snap, evicting the oldest entry when ch is full. Callers hold
// b.mu, so no other sender can refill the freed slot.
func offer(ch chan *matchdto.Snapshot, snap *matchdto.Snapshot, sessionID string) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case old := <-ch:
		obslog.L().Warn("publish_local_drop", zap.String("session_id", sessionID), zap.Int64("version", old.Version))
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func (b *LocalBus) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	ch := make(chan *matchdto.Snapshot, b.buffer)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan *matchdto.Snapshot)
	}
	b.subs[sessionID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	closeFn := func() error {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
			b.mu.Unlock()
		})
		return nil
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = closeFn()
		case <-done:
		}
	}()
	return &Subscription{C: ch, close: closeFn}, nil
}
