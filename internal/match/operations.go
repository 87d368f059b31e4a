package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

// CreateSession stores a freshly paired game in Waiting. Side A plays white.
func (o *Orchestrator) CreateSession(ctx context.Context, p CreateParams) (*Session, error) {
	a, b := strings.TrimSpace(p.PlayerA), strings.TrimSpace(p.PlayerB)
	if a == "" || b == "" || a == b || !p.Mode.Valid() || p.Clock.InitialMs <= 0 || p.Clock.IncrementMs < 0 {
		return nil, ErrInvalidParams
	}
	allowance := o.cfg.CasualUndoAllowance
	if p.UndoAllowance != nil {
		if *p.UndoAllowance < 0 {
			return nil, ErrInvalidParams
		}
		allowance = *p.UndoAllowance
	}
	if p.Mode == ModeRated {
		allowance = 0
	}
	now := o.now()
	start := o.oracle.StartPosition()
	s := &Session{
		ID:              o.newID(),
		PlayerA:         a,
		PlayerB:         b,
		Mode:            p.Mode,
		Status:          StatusWaiting,
		Result:          ResultPending,
		InitialMs:       p.Clock.InitialMs,
		RemainingMs:     [2]int64{p.Clock.InitialMs, p.Clock.InitialMs},
		IncrementMs:     p.Clock.IncrementMs,
		ActiveSide:      SideA,
		CheckpointAt:    now,
		TurnStartMs:     p.Clock.InitialMs,
		UndoAllowance:   [2]int{allowance, allowance},
		InitialPosition: start,
		CurrentPosition: start,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.Create(ctx, s); err != nil {
		return nil, err
	}
	obslog.L().Info("match_session_create",
		zap.String("session_id", s.ID),
		zap.String("player_a", s.PlayerA),
		zap.String("player_b", s.PlayerB),
		zap.String("mode", string(s.Mode)),
		zap.Int64("initial_ms", p.Clock.InitialMs),
		zap.Int64("increment_ms", p.Clock.IncrementMs),
	)
	o.publish(ctx, s, now)
	return s, nil
}

// GetSessionState returns the stored session. A fallen flag and a lapsed
// negotiation are shown as settled without being written back; the next
// commit or sweep persists them.
func (o *Orchestrator) GetSessionState(ctx context.Context, id string) (*Session, error) {
	s, err := o.store.Load(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	now := o.now()
	s.expireClock(now)
	s.expireNegotiation(now)
	return s, nil
}

// Moves returns the committed move log, oldest first.
func (o *Orchestrator) Moves(ctx context.Context, id string) ([]MoveRecord, error) {
	return o.store.Moves(ctx, strings.TrimSpace(id))
}

// LiveSessionIDs lists sessions that have not reached a terminal state.
func (o *Orchestrator) LiveSessionIDs(ctx context.Context) ([]string, error) {
	return o.store.LiveIDs(ctx)
}

// Now is the orchestrator's notion of the current time.
func (o *Orchestrator) Now() time.Time { return o.now() }

// Acknowledge records that player is connected. The session starts once both
// players have acknowledged; afterwards it behaves like a heartbeat.
func (o *Orchestrator) Acknowledge(ctx context.Context, id, player string) (*Session, error) {
	return o.commit(ctx, id, "acknowledge", func(s *Session, _ *MoveLog, now time.Time) (bool, error) {
		side, err := participant(s, player)
		if err != nil {
			return false, err
		}
		if s.Status.Terminal() {
			return false, ErrAlreadySettled
		}
		return heartbeat(s, side, now), nil
	})
}

// Heartbeat is the keep-alive. While waiting it counts as an acknowledgement;
// later it answers a presence check and resumes an inactivity pause when it
// comes from the side that went silent.
func (o *Orchestrator) Heartbeat(ctx context.Context, id, player string) (*Session, error) {
	return o.commit(ctx, id, "heartbeat", func(s *Session, _ *MoveLog, now time.Time) (bool, error) {
		side, err := participant(s, player)
		if err != nil {
			return false, err
		}
		if s.Status.Terminal() {
			return false, ErrAlreadySettled
		}
		return heartbeat(s, side, now), nil
	})
}

func heartbeat(s *Session, side Side, now time.Time) bool {
	s.touch(side, now)
	switch s.Status {
	case StatusWaiting:
		s.Acknowledged[side.index()] = true
		if s.IsAcknowledged(SideA) && s.IsAcknowledged(SideB) {
			s.Status = StatusActive
			s.StartedAt = cloneTime(&now)
			s.touch(SideA, now)
			s.touch(SideB, now)
			s.startTurn(SideA, now)
		}
	case StatusActive:
		if s.PresenceCheckAt != nil && side == s.ActiveSide {
			s.PresenceCheckAt = nil
		}
	case StatusPaused:
		if s.PausedReason == PauseInactivity && side == s.PausedSide {
			s.resume(now)
		}
	}
	return true
}

// ApplyMove validates move with the oracle and commits it, pressing the
// mover's clock. A game-ending verdict settles the session in the same commit.
func (o *Orchestrator) ApplyMove(ctx context.Context, id, player, move string) (*Session, error) {
	return o.commit(ctx, id, "move", func(s *Session, log *MoveLog, now time.Time) (bool, error) {
		side, err := participant(s, player)
		if err != nil {
			return false, err
		}
		switch s.Status {
		case StatusFinished, StatusAborted:
			return false, ErrAlreadySettled
		case StatusWaiting:
			return false, ErrNotStarted
		case StatusPaused:
			return false, ErrSessionPaused
		}
		if side != s.ActiveSide {
			return false, ErrNotYourTurn
		}
		v, err := o.oracle.Apply(ctx, log.Notations(), move)
		if err != nil {
			if KindOf(err) == KindInternal {
				return false, fmt.Errorf("legality check: %w", err)
			}
			return false, err
		}
		spent := s.pressClock(now)
		log.Append(MoveRecord{
			Ply:           log.Len() + 1,
			Side:          side,
			Notation:      v.UCI,
			SAN:           v.SAN,
			TimeSpentMs:   spent,
			PositionAfter: v.Position,
			PlayedAt:      now,
		})
		s.PlyCount = log.Len()
		s.CurrentPosition = v.Position
		s.touch(side, now)
		s.PresenceCheckAt = nil
		s.withdrawOnMove(side, now)
		s.applyVerdictEnd(v, now)
		return true, nil
	})
}

// Resign ends the game in the opponent's favour. Resigning a settled session
// returns it unchanged.
func (o *Orchestrator) Resign(ctx context.Context, id, player string) (*Session, error) {
	return o.commit(ctx, id, "resign", func(s *Session, _ *MoveLog, now time.Time) (bool, error) {
		side, err := participant(s, player)
		if err != nil {
			return false, err
		}
		switch s.Status {
		case StatusFinished, StatusAborted:
			return false, nil
		case StatusWaiting:
			return false, ErrNotStarted
		}
		s.finish(now, winFor(side.Opponent()), EndResignation)
		return true, nil
	})
}

// Pause freezes both clocks on request. Only casual sessions can pause.
func (o *Orchestrator) Pause(ctx context.Context, id, player string) (*Session, error) {
	return o.commit(ctx, id, "pause", func(s *Session, _ *MoveLog, now time.Time) (bool, error) {
		if _, err := participant(s, player); err != nil {
			return false, err
		}
		if s.Status.Terminal() {
			return false, ErrAlreadySettled
		}
		if s.Mode == ModeRated {
			return false, ErrRatedNoPause
		}
		switch s.Status {
		case StatusWaiting:
			return false, ErrNotStarted
		case StatusPaused:
			return false, ErrSessionPaused
		}
		s.pause(now, PauseRequested, s.ActiveSide)
		return true, nil
	})
}

// Resume restarts the clock of the side to move. An inactivity pause can only
// be lifted by the side that went silent.
func (o *Orchestrator) Resume(ctx context.Context, id, player string) (*Session, error) {
	return o.commit(ctx, id, "resume", func(s *Session, _ *MoveLog, now time.Time) (bool, error) {
		side, err := participant(s, player)
		if err != nil {
			return false, err
		}
		switch s.Status {
		case StatusFinished, StatusAborted:
			return false, ErrAlreadySettled
		case StatusWaiting:
			return false, ErrNotStarted
		case StatusActive:
			return false, ErrNotPaused
		}
		if s.PausedReason == PauseInactivity && side != s.PausedSide {
			return false, ErrAwaitingOpponent
		}
		s.touch(side, now)
		s.resume(now)
		return true, nil
	})
}

func (s *Session) pause(now time.Time, reason PauseReason, side Side) {
	s.stopClock(now)
	s.Status = StatusPaused
	s.PausedAt = cloneTime(&now)
	s.PausedReason = reason
	s.PausedSide = side
	s.PresenceCheckAt = nil
}

func (s *Session) resume(now time.Time) {
	s.Status = StatusActive
	s.CheckpointAt = now
	s.PausedAt = nil
	s.PausedReason = ""
	s.PausedSide = ""
	s.PresenceCheckAt = nil
}

// RequestAbort opens a mutual-abort request.
func (o *Orchestrator) RequestAbort(ctx context.Context, id, player string) (*Session, error) {
	return o.request(ctx, id, player, NegotiateAbort, nil)
}

// RespondAbort answers the opponent's abort request. Accepting voids the game.
func (o *Orchestrator) RespondAbort(ctx context.Context, id, player string, accept bool) (*Session, error) {
	return o.respond(ctx, id, player, NegotiateAbort, accept, func(s *Session, _ *MoveLog, _ *Negotiation, now time.Time) error {
		s.abort(now)
		return nil
	})
}

// OfferDraw proposes a draw by agreement.
func (o *Orchestrator) OfferDraw(ctx context.Context, id, player string) (*Session, error) {
	return o.request(ctx, id, player, NegotiateDraw, nil)
}

// RespondDraw answers the opponent's draw offer.
func (o *Orchestrator) RespondDraw(ctx context.Context, id, player string, accept bool) (*Session, error) {
	return o.respond(ctx, id, player, NegotiateDraw, accept, func(s *Session, _ *MoveLog, _ *Negotiation, now time.Time) error {
		s.finish(now, ResultDraw, EndDrawAgreement)
		return nil
	})
}

// RequestUndo asks the opponent to take back the last full move pair. It is
// only possible on the requester's own turn while allowance remains.
func (o *Orchestrator) RequestUndo(ctx context.Context, id, player string) (*Session, error) {
	return o.request(ctx, id, player, NegotiateUndo, func(s *Session, log *MoveLog, side Side) error {
		if s.Status == StatusPaused {
			return ErrSessionPaused
		}
		if s.Allowance(side) <= 0 {
			return ErrNoUndoAllowance
		}
		if side != s.ActiveSide {
			return ErrUndoNotYourTurn
		}
		if log.Len() < 2 {
			return ErrNothingToUndo
		}
		return nil
	})
}

// RespondUndo answers an undo request. Accepting removes the requester's last
// move and the reply to it, restores the earlier position and spends one undo.
func (o *Orchestrator) RespondUndo(ctx context.Context, id, player string, accept bool) (*Session, error) {
	return o.respond(ctx, id, player, NegotiateUndo, accept, func(s *Session, log *MoveLog, n *Negotiation, now time.Time) error {
		requester := n.RequestedBy
		if s.Status != StatusActive {
			return ErrSessionPaused
		}
		if requester != s.ActiveSide || log.Len() < 2 {
			return ErrNothingToUndo
		}
		if s.Allowance(requester) <= 0 {
			return ErrNoUndoAllowance
		}
		log.DropLast(2)
		pos := s.InitialPosition
		if last, ok := log.Last(); ok {
			pos = last.PositionAfter
		}
		s.CurrentPosition = pos
		s.PlyCount = log.Len()
		s.ActiveSide = requester
		s.UndoAllowance[requester.index()]--
		return nil
	})
}

type requestCheck func(s *Session, log *MoveLog, side Side) error

func (o *Orchestrator) request(ctx context.Context, id, player string, typ NegotiationType, check requestCheck) (*Session, error) {
	return o.commit(ctx, id, "request_"+string(typ), func(s *Session, log *MoveLog, now time.Time) (bool, error) {
		side, err := participant(s, player)
		if err != nil {
			return false, err
		}
		switch s.Status {
		case StatusFinished, StatusAborted:
			return false, ErrAlreadySettled
		case StatusWaiting:
			return false, ErrNotStarted
		}
		if check != nil {
			if err := check(s, log, side); err != nil {
				return false, err
			}
		}
		if err := s.openNegotiation(typ, side, now, o.cfg.NegotiationTTL); err != nil {
			return false, err
		}
		obslog.L().Info("match_negotiation_open",
			zap.String("session_id", s.ID),
			zap.String("type", string(typ)),
			zap.String("requested_by", string(side)),
		)
		return true, nil
	})
}

type acceptFunc func(s *Session, log *MoveLog, n *Negotiation, now time.Time) error

// respond resolves the outstanding request of type typ. Accepting an abort or
// draw on a session that already ended is answered with the settled session.
func (o *Orchestrator) respond(ctx context.Context, id, player string, typ NegotiationType, accept bool, onAccept acceptFunc) (*Session, error) {
	op := "decline_" + string(typ)
	if accept {
		op = "accept_" + string(typ)
	}
	return o.commit(ctx, id, op, func(s *Session, log *MoveLog, now time.Time) (bool, error) {
		side, err := participant(s, player)
		if err != nil {
			return false, err
		}
		if s.Status.Terminal() {
			if accept && typ != NegotiateUndo {
				return false, nil
			}
			return false, ErrAlreadySettled
		}
		n, err := s.answerable(typ, side, now)
		if err != nil {
			return false, err
		}
		if !accept {
			n.resolve(NegotiationDeclined, now)
			return true, nil
		}
		if err := onAccept(s, log, n, now); err != nil {
			return false, err
		}
		n.resolve(NegotiationAccepted, now)
		return true, nil
	})
}

// Sweep is the periodic inactivity check for one session. It runs through the
// same commit path as player actions.
func (o *Orchestrator) Sweep(ctx context.Context, id string) (*Session, error) {
	return o.commit(ctx, id, "sweep", func(s *Session, _ *MoveLog, now time.Time) (bool, error) {
		if s.Mode != ModeCasual {
			return false, nil
		}
		switch s.Status {
		case StatusActive:
			silent := s.ActiveSide
			if s.PresenceCheckAt == nil {
				if now.Sub(s.Heartbeat(silent)) >= o.cfg.PresenceGrace {
					s.PresenceCheckAt = cloneTime(&now)
					return true, nil
				}
				return false, nil
			}
			if now.Sub(*s.PresenceCheckAt) >= o.cfg.ConfirmGrace {
				s.pause(now, PauseInactivity, silent)
				return true, nil
			}
		case StatusPaused:
			if s.PausedAt != nil && now.Sub(*s.PausedAt) >= o.cfg.MaxPause {
				loser := s.forfeitLoser()
				s.finish(now, winFor(loser.Opponent()), EndForfeitInactivity)
				return true, nil
			}
		}
		return false, nil
	})
}
