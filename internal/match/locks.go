package match

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// sessionLocks serializes commits per session inside one process. Each session
// gets a one-slot channel; entries are dropped once nobody holds or waits on them.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	slot chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*lockEntry)}
}

// acquire waits at most timeout for the session's slot.
func (l *sessionLocks) acquire(ctx context.Context, id string, timeout time.Duration) (func(), error) {
	e := l.ref(id)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(id)
		return nil, fmt.Errorf("lock session %s: %w", id, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			l.unref(id)
		})
	}, nil
}

func (l *sessionLocks) ref(id string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{slot: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	return e
}

func (l *sessionLocks) unref(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return
	}
	if e.refs--; e.refs <= 0 {
		delete(l.entries, id)
	}
}
