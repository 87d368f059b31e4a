package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

// Oracle validates moves and detects game-ending positions. history holds the
// moves played so far in UCI form.
type Oracle interface {
	StartPosition() string
	Apply(ctx context.Context, history []string, move string) (Verdict, error)
}

// Publisher fans a committed snapshot out to the session topic.
type Publisher interface {
	Publish(ctx context.Context, s *Session, now time.Time) error
}

// ResultSink is told once about every session that reaches a terminal state.
type ResultSink interface {
	SessionEnded(ctx context.Context, s *Session, moves []MoveRecord) error
}

type Config struct {
	PresenceGrace       time.Duration
	ConfirmGrace        time.Duration
	MaxPause            time.Duration
	NegotiationTTL      time.Duration
	LockTimeout         time.Duration
	CasualUndoAllowance int
}

func DefaultConfig() Config {
	return Config{
		PresenceGrace:       60 * time.Second,
		ConfirmGrace:        10 * time.Second,
		MaxPause:            30 * time.Minute,
		NegotiationTTL:      5 * time.Minute,
		LockTimeout:         2 * time.Second,
		CasualUndoAllowance: 3,
	}
}

// Orchestrator owns every session mutation. All of them, background sweeps
// included, go through commit.
type Orchestrator struct {
	store     Store
	oracle    Oracle
	publisher Publisher
	sinks     []ResultSink
	cfg       Config
	now       Clock
	newID     func() string
	locks     *sessionLocks
}

// sinkTimeout bounds all result sinks of one settled session together.
const sinkTimeout = 15 * time.Second

type Option func(*Orchestrator)

func WithClock(c Clock) Option               { return func(o *Orchestrator) { o.now = c } }
func WithPublisher(p Publisher) Option       { return func(o *Orchestrator) { o.publisher = p } }
func WithResultSink(s ResultSink) Option     { return func(o *Orchestrator) { o.sinks = append(o.sinks, s) } }
func WithIDGenerator(f func() string) Option { return func(o *Orchestrator) { o.newID = f } }

func New(store Store, oracle Oracle, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("session store required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("legality oracle required")
	}
	def := DefaultConfig()
	if cfg.PresenceGrace <= 0 {
		cfg.PresenceGrace = def.PresenceGrace
	}
	if cfg.ConfirmGrace <= 0 {
		cfg.ConfirmGrace = def.ConfirmGrace
	}
	if cfg.MaxPause <= 0 {
		cfg.MaxPause = def.MaxPause
	}
	if cfg.NegotiationTTL <= 0 {
		cfg.NegotiationTTL = def.NegotiationTTL
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.CasualUndoAllowance < 0 {
		cfg.CasualUndoAllowance = 0
	}
	o := &Orchestrator{
		store:  store,
		oracle: oracle,
		cfg:    cfg,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		locks:  newSessionLocks(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// action mutates s for one operation. It must validate before it mutates;
// when it returns an error the commit discards everything it touched.
type action func(s *Session, log *MoveLog, now time.Time) (changed bool, err error)

// commit runs act under the session lock. A flag fall is settled before act
// sees the session and is persisted even when act rejects. Already-settled
// outcomes are returned together with the settled session.
func (o *Orchestrator) commit(ctx context.Context, id, op string, act action) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}
	unlock, err := o.locks.acquire(ctx, id, o.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		now       time.Time
		wasLive   bool
		committed bool
		outcome   error
		moves     []MoveRecord
	)
	s, err := o.store.Update(ctx, id, func(s *Session, log *MoveLog) (bool, error) {
		now = o.now()
		wasLive = !s.Status.Terminal()
		committed, outcome, moves = false, nil, nil

		expired := s.expireClock(now)
		expired = s.expireNegotiation(now) || expired

		before, savedLog := s.Clone(), *log
		changed, aerr := act(s, log, now)
		if aerr != nil {
			if KindOf(aerr) == KindInternal {
				return false, aerr
			}
			*s = *before
			*log = savedLog
			outcome, changed = aerr, false
		}
		if !changed && !expired {
			return false, nil
		}
		s.Version++
		s.UpdatedAt = now
		committed = true
		if wasLive && s.Status.Terminal() {
			moves = log.All()
		}
		return true, nil
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			obslog.L().Error("match_commit_error", zap.String("session_id", id), zap.String("op", op), zap.Error(err))
		}
		return nil, err
	}
	if !committed {
		return s, outcome
	}
	obslog.L().Debug("match_commit",
		zap.String("session_id", s.ID),
		zap.String("op", op),
		zap.Int64("version", s.Version),
		zap.String("status", string(s.Status)),
	)
	// published under the lock so snapshots leave in version order
	o.publish(ctx, s, now)
	unlock()
	if wasLive && s.Status.Terminal() {
		o.settled(ctx, s, op, moves)
	}
	return s, outcome
}

// settled reports a session that just turned terminal. The transition is
// already committed, so sinks get a context the caller cannot cancel.
func (o *Orchestrator) settled(ctx context.Context, s *Session, op string, moves []MoveRecord) {
	obslog.L().Info("match_settled",
		zap.String("session_id", s.ID),
		zap.String("op", op),
		zap.String("result", string(s.Result)),
		zap.String("end_reason", string(s.EndReason)),
		zap.Int("plies", s.PlyCount),
	)
	if len(o.sinks) == 0 {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	for _, sink := range o.sinks {
		if err := sink.SessionEnded(sctx, s.Clone(), moves); err != nil {
			obslog.L().Error("match_result_sink_error", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, s *Session, now time.Time) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, s, now); err != nil {
		obslog.L().Warn("match_publish_error", zap.String("session_id", s.ID), zap.Int64("version", s.Version), zap.Error(err))
	}
}

func participant(s *Session, player string) (Side, error) {
	side, ok := s.SideOf(player)
	if !ok {
		return "", ErrNotParticipant
	}
	return side, nil
}
