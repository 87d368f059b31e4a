package matchdto

// Action types accepted on the HTTP action endpoint and the WebSocket.
const (
	ActionMove         = "move"
	ActionResign       = "resign"
	ActionLeave        = "leave"
	ActionPause        = "pause"
	ActionResume       = "resume"
	ActionRequestAbort = "request_abort"
	ActionRespondAbort = "respond_abort"
	ActionRequestUndo  = "request_undo"
	ActionRespondUndo  = "respond_undo"
	ActionOfferDraw    = "offer_draw"
	ActionRespondDraw  = "respond_draw"
	ActionHeartbeat    = "heartbeat"
	ActionAcknowledge  = "acknowledge"
)

type Action struct {
	Type   string `json:"type"`
	Move   string `json:"move,omitempty"`
	Accept bool   `json:"accept,omitempty"`
}

type CreateSessionRequest struct {
	PlayerA       string `json:"player_a"`
	PlayerB       string `json:"player_b"`
	Mode          string `json:"mode"`
	InitialMs     int64  `json:"initial_ms"`
	IncrementMs   int64  `json:"increment_ms"`
	UndoAllowance *int   `json:"undo_allowance,omitempty"`
}

// Envelope frames every server-to-client WebSocket message.
type Envelope struct {
	Type     string       `json:"type"`
	Snapshot *Snapshot    `json:"snapshot,omitempty"`
	Error    *DomainError `json:"error,omitempty"`
}

const (
	EnvelopeSnapshot = "snapshot"
	EnvelopeError    = "error"
)
