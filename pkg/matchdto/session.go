package matchdto

import "time"

// Snapshot is the full, version-tagged state of a session. Clients replace
// their copy with any snapshot whose Version is newer than the last one applied.
type Snapshot struct {
	SessionID       string            `json:"session_id"`
	Version         int64             `json:"version"`
	ServerTime      time.Time         `json:"server_time"`
	Mode            string            `json:"mode"`
	Status          string            `json:"status"`
	Result          string            `json:"result"`
	EndReason       string            `json:"end_reason,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	White           Seat              `json:"white"`
	Black           Seat              `json:"black"`
	ActiveColor     string            `json:"active_color"`
	Position        string            `json:"position"`
	Plies           int               `json:"plies"`
	IncrementMs     int64             `json:"increment_ms"`
	PausedAt        *time.Time        `json:"paused_at,omitempty"`
	PausedReason    string            `json:"paused_reason,omitempty"`
	AwaitingColor   string            `json:"awaiting_color,omitempty"`
	PresenceCheckAt *time.Time        `json:"presence_check_at,omitempty"`
	Negotiation     *NegotiationState `json:"negotiation,omitempty"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
}

// Seat is one player's view of the clock and allowances.
type Seat struct {
	PlayerID      string `json:"player_id"`
	RemainingMs   int64  `json:"remaining_ms"`
	UndoAllowance int    `json:"undo_allowance"`
	Acknowledged  bool   `json:"acknowledged"`
}

type NegotiationState struct {
	Type        string     `json:"type"`
	RequestedBy string     `json:"requested_by"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type Move struct {
	Ply           int       `json:"ply"`
	Color         string    `json:"color"`
	UCI           string    `json:"uci"`
	SAN           string    `json:"san"`
	TimeSpentMs   int64     `json:"time_spent_ms"`
	PositionAfter string    `json:"position_after"`
	PlayedAt      time.Time `json:"played_at"`
}

// ResultNotice is sent to the rating calculator once a session has ended.
type ResultNotice struct {
	SessionID string    `json:"session_id"`
	Mode      string    `json:"mode"`
	PlayerA   string    `json:"player_a"`
	PlayerB   string    `json:"player_b"`
	Result    string    `json:"result"`
	EndReason string    `json:"end_reason"`
	Plies     int       `json:"plies"`
	EndedAt   time.Time `json:"ended_at"`
}
