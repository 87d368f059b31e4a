package match

import "time"

// Clock supplies the current time. Tests substitute a controllable one.
type Clock func() time.Time

// LiveRemainingMs derives side's remaining time at now from the stored checkpoint.
// Only the active side of an Active session loses time; the result never goes below zero.
func LiveRemainingMs(s *Session, side Side, now time.Time) int64 {
	rem := s.Remaining(side)
	if s.Status != StatusActive || side != s.ActiveSide {
		return rem
	}
	elapsed := now.Sub(s.CheckpointAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if rem -= elapsed; rem < 0 {
		return 0
	}
	return rem
}

// flagged reports whether the side to move has run out of time.
func (s *Session) flagged(now time.Time) bool {
	return s.Status == StatusActive && LiveRemainingMs(s, s.ActiveSide, now) <= 0
}

// stopClock persists the live value of the running clock as its new checkpoint.
func (s *Session) stopClock(now time.Time) {
	if s.Status == StatusActive {
		s.setRemaining(s.ActiveSide, LiveRemainingMs(s, s.ActiveSide, now))
	}
	s.CheckpointAt = now
}

// startTurn hands the move to side and starts its clock at now.
func (s *Session) startTurn(side Side, now time.Time) {
	s.ActiveSide = side
	s.CheckpointAt = now
	s.TurnStartMs = s.Remaining(side)
}

// pressClock ends the mover's turn: persist its live value, add the increment,
// and start the opponent's clock. It returns the time the mover spent.
func (s *Session) pressClock(now time.Time) int64 {
	mover := s.ActiveSide
	live := LiveRemainingMs(s, mover, now)
	spent := s.TurnStartMs - live
	if spent < 0 {
		spent = 0
	}
	s.setRemaining(mover, live+s.IncrementMs)
	s.startTurn(mover.Opponent(), now)
	return spent
}
