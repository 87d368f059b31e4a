package match

import (
	"strings"
	"time"
)

type Mode string

const (
	ModeCasual Mode = "casual"
	ModeRated  Mode = "rated"
)

func (m Mode) Valid() bool { return m == ModeCasual || m == ModeRated }

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
	StatusAborted  Status = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusAborted }

type Result string

const (
	ResultPending    Result = "pending"
	ResultPlayerAWin Result = "player_a_win"
	ResultPlayerBWin Result = "player_b_win"
	ResultDraw       Result = "draw"
	ResultNoResult   Result = "no_result"
)

type EndReason string

const (
	EndCheckmate            EndReason = "checkmate"
	EndStalemate            EndReason = "stalemate"
	EndDrawAgreement        EndReason = "draw_agreement"
	EndInsufficientMaterial EndReason = "insufficient_material"
	EndRepetition           EndReason = "repetition"
	EndMoveRule             EndReason = "move_rule"
	EndResignation          EndReason = "resignation"
	EndTimeout              EndReason = "timeout"
	EndForfeitInactivity    EndReason = "forfeit_inactivity"
	EndAbandonedMutual      EndReason = "abandoned_mutual"
)

// Side identifies a seat. Side A plays white and moves first.
type Side string

const (
	SideA Side = "a"
	SideB Side = "b"
)

func (s Side) Opponent() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) index() int {
	if s == SideB {
		return 1
	}
	return 0
}

// Color is the chess color seated at s.
func (s Side) Color() string {
	if s == SideB {
		return "black"
	}
	return "white"
}

func winFor(s Side) Result {
	if s == SideA {
		return ResultPlayerAWin
	}
	return ResultPlayerBWin
}

type PauseReason string

const (
	PauseRequested  PauseReason = "requested"
	PauseInactivity PauseReason = "inactivity"
)

// ClockConfig is the time control supplied by the pairing service.
type ClockConfig struct {
	InitialMs   int64 `json:"initial_ms"`
	IncrementMs int64 `json:"increment_ms"`
}

// CreateParams describes a freshly paired game.
// UndoAllowance overrides the configured casual allowance when non-nil; rated games always get zero.
type CreateParams struct {
	PlayerA       string
	PlayerB       string
	Mode          Mode
	Clock         ClockConfig
	UndoAllowance *int
}

// Session is the persisted state of one game. Index 0 of the pair fields belongs to side A.
type Session struct {
	ID      string `json:"id"`
	PlayerA string `json:"player_a"`
	PlayerB string `json:"player_b"`
	Mode    Mode   `json:"mode"`

	Status    Status    `json:"status"`
	Result    Result    `json:"result"`
	EndReason EndReason `json:"end_reason,omitempty"`

	InitialMs    int64     `json:"initial_ms"`
	RemainingMs  [2]int64  `json:"remaining_ms"`
	IncrementMs  int64     `json:"increment_ms"`
	ActiveSide   Side      `json:"active_side"`
	CheckpointAt time.Time `json:"checkpoint_at"`
	// TurnStartMs is the mover's remaining time when the current turn began.
	TurnStartMs int64 `json:"turn_start_ms"`

	PausedAt     *time.Time  `json:"paused_at,omitempty"`
	PausedReason PauseReason `json:"paused_reason,omitempty"`
	PausedSide   Side        `json:"paused_side,omitempty"`

	LastHeartbeatAt [2]time.Time `json:"last_heartbeat_at"`
	Acknowledged    [2]bool      `json:"acknowledged"`
	PresenceCheckAt *time.Time   `json:"presence_check_at,omitempty"`

	UndoAllowance [2]int       `json:"undo_allowance"`
	Negotiation   *Negotiation `json:"pending_negotiation,omitempty"`

	InitialPosition string `json:"initial_position"`
	CurrentPosition string `json:"current_position"`
	PlyCount        int    `json:"ply_count"`

	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SideOf returns the seat held by player.
func (s *Session) SideOf(player string) (Side, bool) {
	p := strings.TrimSpace(player)
	switch {
	case p == "":
		return "", false
	case p == s.PlayerA:
		return SideA, true
	case p == s.PlayerB:
		return SideB, true
	}
	return "", false
}

func (s *Session) PlayerID(side Side) string {
	if side == SideB {
		return s.PlayerB
	}
	return s.PlayerA
}

func (s *Session) Remaining(side Side) int64        { return s.RemainingMs[side.index()] }
func (s *Session) Heartbeat(side Side) time.Time    { return s.LastHeartbeatAt[side.index()] }
func (s *Session) Allowance(side Side) int          { return s.UndoAllowance[side.index()] }
func (s *Session) IsAcknowledged(side Side) bool    { return s.Acknowledged[side.index()] }
func (s *Session) touch(side Side, now time.Time)   { s.LastHeartbeatAt[side.index()] = now }
func (s *Session) setRemaining(side Side, ms int64) { s.RemainingMs[side.index()] = ms }

// Winner returns the winning side of a decisive result.
func (s *Session) Winner() (Side, bool) {
	switch s.Result {
	case ResultPlayerAWin:
		return SideA, true
	case ResultPlayerBWin:
		return SideB, true
	}
	return "", false
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.PausedAt = cloneTime(s.PausedAt)
	c.PresenceCheckAt = cloneTime(s.PresenceCheckAt)
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	if s.Negotiation != nil {
		n := *s.Negotiation
		c.Negotiation = &n
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// MoveRecord is one committed ply.
type MoveRecord struct {
	Ply           int       `json:"ply"`
	Side          Side      `json:"side"`
	Notation      string    `json:"notation"`
	SAN           string    `json:"san"`
	TimeSpentMs   int64     `json:"time_spent_ms"`
	PositionAfter string    `json:"position_after"`
	PlayedAt      time.Time `json:"played_at"`
}

// Verdict is the legality oracle's answer for one candidate move.
// End is empty while the game continues; Winner is set only for decisive endings.
type Verdict struct {
	UCI      string
	SAN      string
	Position string
	End      EndReason
	Winner   Side
}
