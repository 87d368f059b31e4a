package match

import "errors"

// Kind groups rejection reasons by how a caller should react.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindIllegalState        Kind = "illegal_state"
	KindNotFound            Kind = "not_found"
	KindNegotiationConflict Kind = "negotiation_conflict"
	KindAlreadySettled      Kind = "already_settled"
	KindInternal            Kind = "internal"
)

// Error is a recoverable rejection carrying a stable reason code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrSessionNotFound      = &Error{KindNotFound, "session_not_found", "session not found"}
	ErrInvalidParams        = &Error{KindValidation, "invalid_params", "invalid session parameters"}
	ErrNotParticipant       = &Error{KindValidation, "not_a_participant", "you are not a participant in this session"}
	ErrNotYourTurn          = &Error{KindValidation, "not_your_turn", "not your turn"}
	ErrIllegalMove          = &Error{KindValidation, "illegal_move", "illegal move"}
	ErrOwnRequest           = &Error{KindValidation, "own_request", "you cannot answer your own request"}
	ErrUndoNotYourTurn      = &Error{KindValidation, "undo_not_your_turn", "undo can only be requested on your turn"}
	ErrNotStarted           = &Error{KindIllegalState, "session_not_started", "session has not started yet"}
	ErrSessionPaused        = &Error{KindIllegalState, "session_paused", "session is paused"}
	ErrNotPaused            = &Error{KindIllegalState, "session_not_paused", "session is not paused"}
	ErrRatedNoPause         = &Error{KindIllegalState, "rated_no_pause", "rated sessions cannot be paused"}
	ErrAwaitingOpponent     = &Error{KindIllegalState, "awaiting_opponent_return", "waiting for opponent to return"}
	ErrNoUndoAllowance      = &Error{KindIllegalState, "no_undo_allowance", "no undo allowance remaining"}
	ErrNothingToUndo        = &Error{KindIllegalState, "nothing_to_undo", "no full move pair to undo"}
	ErrNoPendingNegotiation = &Error{KindIllegalState, "no_pending_negotiation", "no pending request to answer"}
	ErrNegotiationPending   = &Error{KindNegotiationConflict, "negotiation_pending", "another request is already pending"}
	ErrAlreadySettled       = &Error{KindAlreadySettled, "session_settled", "session has already ended"}
)

// KindOf classifies err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsSettled reports whether err only signals that the session already ended.
func IsSettled(err error) bool { return KindOf(err) == KindAlreadySettled }

// CodeOf returns the reason code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
