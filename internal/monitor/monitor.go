// Package monitor runs the periodic inactivity sweep over live sessions.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
)

// Sweeper is the part of the orchestrator the monitor drives.
type Sweeper interface {
	LiveSessionIDs(ctx context.Context) ([]string, error)
	Sweep(ctx context.Context, id string) (*match.Session, error)
}

type Stats struct {
	Scanned int
	Settled int
	Paused  int
	Errors  int
}

// Monitor holds no per-session state; every tick re-reads the live index and
// lets Sweep decide through the normal commit path.
type Monitor struct {
	sweeper  Sweeper
	interval time.Duration
}

func New(sweeper Sweeper, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{sweeper: sweeper, interval: interval}
}

// Run sweeps every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	obslog.L().Info("monitor_start", zap.Duration("interval", m.interval))
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("monitor_stop")
			return ctx.Err()
		case <-t.C:
			if _, err := m.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				obslog.L().Warn("monitor_sweep_error", zap.Error(err))
			}
		}
	}
}

// SweepOnce visits every live session once. A failing session is logged and
// skipped; only a failure to list sessions is returned.
func (m *Monitor) SweepOnce(ctx context.Context) (Stats, error) {
	var st Stats
	ids, err := m.sweeper.LiveSessionIDs(ctx)
	if err != nil {
		return st, err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Scanned++
		s, err := m.sweeper.Sweep(ctx, id)
		if err != nil {
			if match.KindOf(err) == match.KindNotFound {
				continue
			}
			st.Errors++
			obslog.L().Warn("monitor_session_error", zap.String("session_id", id), zap.Error(err))
			continue
		}
		switch {
		case s.Status.Terminal():
			st.Settled++
			obslog.L().Info("monitor_settled", zap.String("session_id", id), zap.String("end_reason", string(s.EndReason)))
		case s.Status == match.StatusPaused && s.PausedReason == match.PauseInactivity:
			st.Paused++
		}
	}
	if st.Settled > 0 || st.Errors > 0 {
		obslog.L().Debug("monitor_sweep", zap.Int("scanned", st.Scanned), zap.Int("settled", st.Settled), zap.Int("paused", st.Paused), zap.Int("errors", st.Errors))
	}
	return st, nil
}
