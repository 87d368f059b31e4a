// Package publish fans committed session snapshots out to subscribers.
package publish

import (
	"context"
	"time"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

// Bus publishes snapshots per session topic and lets the gateway follow one.
type Bus interface {
	Publish(ctx context.Context, s *match.Session, now time.Time) error
	Subscribe(ctx context.Context, sessionID string) (*Subscription, error)
}

// Subscription delivers snapshots until Close is called or its context ends.
// Delivery is at-least-once and may reorder; receivers compare versions.
type Subscription struct {
	C     <-chan *matchdto.Snapshot
	close func() error
}

func (s *Subscription) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

func topic(sessionID string) string { return "match:events:" + sessionID }
