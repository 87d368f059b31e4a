package match

import "time"

type NegotiationType string

const (
	NegotiateAbort NegotiationType = "abort"
	NegotiateUndo  NegotiationType = "undo"
	NegotiateDraw  NegotiationType = "draw"
)

type NegotiationStatus string

const (
	NegotiationPending  NegotiationStatus = "pending"
	NegotiationAccepted NegotiationStatus = "accepted"
	NegotiationDeclined NegotiationStatus = "declined"
	NegotiationExpired  NegotiationStatus = "expired"
)

// Negotiation is the single request slot embedded in a session. A resolved
// request stays in the slot so the requester can see how it ended; the next
// request replaces it.
type Negotiation struct {
	Type        NegotiationType   `json:"type"`
	RequestedBy Side              `json:"requested_by"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Status      NegotiationStatus `json:"status"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}

// outstanding returns the pending request, if one exists and has not expired at now.
func (s *Session) outstanding(now time.Time) *Negotiation {
	n := s.Negotiation
	if n == nil || n.Status != NegotiationPending || !now.Before(n.ExpiresAt) {
		return nil
	}
	return n
}

// expireNegotiation marks a lapsed pending request as expired.
func (s *Session) expireNegotiation(now time.Time) bool {
	n := s.Negotiation
	if n == nil || n.Status != NegotiationPending || now.Before(n.ExpiresAt) {
		return false
	}
	n.resolve(NegotiationExpired, now)
	return true
}

func (n *Negotiation) resolve(st NegotiationStatus, now time.Time) {
	n.Status = st
	n.ResolvedAt = cloneTime(&now)
}

func (s *Session) openNegotiation(typ NegotiationType, by Side, now time.Time, ttl time.Duration) error {
	if s.outstanding(now) != nil {
		return ErrNegotiationPending
	}
	s.Negotiation = &Negotiation{
		Type:        typ,
		RequestedBy: by,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Status:      NegotiationPending,
	}
	return nil
}

// answerable returns the outstanding request of type typ that side may answer.
func (s *Session) answerable(typ NegotiationType, side Side, now time.Time) (*Negotiation, error) {
	n := s.outstanding(now)
	if n == nil || n.Type != typ {
		return nil, ErrNoPendingNegotiation
	}
	if n.RequestedBy == side {
		return nil, ErrOwnRequest
	}
	return n, nil
}

// withdrawOnMove expires undo and draw requests that a move makes stale.
// An undo request dies when its requester moves on; a draw offer is declined
// by the opponent playing on.
func (s *Session) withdrawOnMove(mover Side, now time.Time) {
	n := s.outstanding(now)
	if n == nil {
		return
	}
	switch {
	case n.Type == NegotiateUndo && n.RequestedBy == mover:
		n.resolve(NegotiationExpired, now)
	case n.Type == NegotiateDraw && n.RequestedBy != mover:
		n.resolve(NegotiationDeclined, now)
	}
}
