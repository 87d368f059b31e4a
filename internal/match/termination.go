package match

import "time"

// finish moves an Active or Paused session to Finished. The running clock is
// stopped first so the stored remaining values are final.
func (s *Session) finish(now time.Time, result Result, reason EndReason) {
	s.stopClock(now)
	s.Status = StatusFinished
	s.Result = result
	s.EndReason = reason
	s.settle(now)
}

// abort moves the session to Aborted after an accepted mutual abort.
func (s *Session) abort(now time.Time) {
	s.stopClock(now)
	s.Status = StatusAborted
	s.Result = ResultNoResult
	s.EndReason = EndAbandonedMutual
	s.settle(now)
}

func (s *Session) settle(now time.Time) {
	s.EndedAt = cloneTime(&now)
	s.PausedAt = nil
	s.PausedReason = ""
	s.PausedSide = ""
	s.PresenceCheckAt = nil
	if n := s.Negotiation; n != nil && n.Status == NegotiationPending {
		n.resolve(NegotiationExpired, now)
	}
}

// expireClock finalizes a flag fall. The side to move loses on time.
func (s *Session) expireClock(now time.Time) bool {
	if !s.flagged(now) {
		return false
	}
	loser := s.ActiveSide
	s.finish(now, winFor(loser.Opponent()), EndTimeout)
	s.setRemaining(loser, 0)
	return true
}

// forfeitLoser picks who loses when a pause outlives the configured maximum.
// An inactivity pause names its silent side; for a requested pause the side
// heard from least recently loses, ties going to the side that was to move.
func (s *Session) forfeitLoser() Side {
	if s.PausedReason == PauseInactivity && s.PausedSide != "" {
		return s.PausedSide
	}
	side := s.PausedSide
	if side == "" {
		side = s.ActiveSide
	}
	other := side.Opponent()
	if s.Heartbeat(other).Before(s.Heartbeat(side)) {
		return other
	}
	return side
}

// applyVerdictEnd settles a game the oracle reports as over.
func (s *Session) applyVerdictEnd(v Verdict, now time.Time) {
	if v.End == "" {
		return
	}
	if v.Winner != "" {
		s.finish(now, winFor(v.Winner), v.End)
		return
	}
	s.finish(now, ResultDraw, v.End)
}
