// Package matchpresenter maps orchestrator state and errors onto the wire DTOs.
package matchpresenter

import (
	"net/http"
	"time"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

type Presenter struct {
	catalog *msgcat.Catalog
}

func New(catalog *msgcat.Catalog) *Presenter {
	return &Presenter{catalog: catalog}
}

// Snapshot renders s as seen at now; the clock of the side to move is live.
func (p *Presenter) Snapshot(s *match.Session, now time.Time) *matchdto.Snapshot {
	if s == nil {
		return nil
	}
	snap := &matchdto.Snapshot{
		SessionID:       s.ID,
		Version:         s.Version,
		ServerTime:      now.UTC(),
		Mode:            string(s.Mode),
		Status:          string(s.Status),
		Result:          string(s.Result),
		EndReason:       string(s.EndReason),
		White:           seat(s, match.SideA, now),
		Black:           seat(s, match.SideB, now),
		ActiveColor:     s.ActiveSide.Color(),
		Position:        s.CurrentPosition,
		Plies:           s.PlyCount,
		IncrementMs:     s.IncrementMs,
		PausedAt:        s.PausedAt,
		PausedReason:    string(s.PausedReason),
		PresenceCheckAt: s.PresenceCheckAt,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
	}
	if s.PausedReason == match.PauseInactivity {
		snap.AwaitingColor = s.PausedSide.Color()
	}
	if s.EndReason != "" {
		snap.Summary = p.catalog.Text("endings."+string(s.EndReason), string(s.EndReason))
	}
	if n := s.Negotiation; n != nil {
		snap.Negotiation = &matchdto.NegotiationState{
			Type:        string(n.Type),
			RequestedBy: n.RequestedBy.Color(),
			Status:      string(n.Status),
			CreatedAt:   n.CreatedAt,
			ExpiresAt:   n.ExpiresAt,
			ResolvedAt:  n.ResolvedAt,
		}
	}
	return snap
}

func seat(s *match.Session, side match.Side, now time.Time) matchdto.Seat {
	return matchdto.Seat{
		PlayerID:      s.PlayerID(side),
		RemainingMs:   match.LiveRemainingMs(s, side, now),
		UndoAllowance: s.Allowance(side),
		Acknowledged:  s.IsAcknowledged(side),
	}
}

func (p *Presenter) Moves(records []match.MoveRecord) []matchdto.Move {
	out := make([]matchdto.Move, 0, len(records))
	for _, r := range records {
		out = append(out, matchdto.Move{
			Ply:           r.Ply,
			Color:         r.Side.Color(),
			UCI:           r.Notation,
			SAN:           r.SAN,
			TimeSpentMs:   r.TimeSpentMs,
			PositionAfter: r.PositionAfter,
			PlayedAt:      r.PlayedAt,
		})
	}
	return out
}

func (p *Presenter) ResultNotice(s *match.Session) matchdto.ResultNotice {
	n := matchdto.ResultNotice{
		SessionID: s.ID,
		Mode:      string(s.Mode),
		PlayerA:   s.PlayerA,
		PlayerB:   s.PlayerB,
		Result:    string(s.Result),
		EndReason: string(s.EndReason),
		Plies:     s.PlyCount,
	}
	if s.EndedAt != nil {
		n.EndedAt = s.EndedAt.UTC()
	}
	return n
}

// Error converts err into its wire form. Internal failures never leak their text.
func (p *Presenter) Error(err error) matchdto.DomainError {
	code := match.CodeOf(err)
	fallback := "internal error"
	if match.KindOf(err) != match.KindInternal {
		fallback = err.Error()
	}
	return matchdto.DomainError{
		Code:      code,
		Message:   p.catalog.Text("errors."+code, fallback),
		Retryable: match.KindOf(err) == match.KindInternal,
	}
}

// Message renders a gateway-level rejection that has no match.Error behind it.
func (p *Presenter) Message(code string, data any) matchdto.DomainError {
	msg := code
	if p.catalog != nil {
		if s, err := p.catalog.Render("errors."+code, data); err == nil {
			msg = s
		}
	}
	return matchdto.DomainError{Code: code, Message: msg}
}

// HTTPStatus maps an error kind to a response code. Settled sessions answer
// 200 because the caller still receives the final state.
func HTTPStatus(err error) int {
	switch match.KindOf(err) {
	case "":
		return http.StatusOK
	case match.KindValidation:
		return http.StatusUnprocessableEntity
	case match.KindIllegalState, match.KindNegotiationConflict:
		return http.StatusConflict
	case match.KindNotFound:
		return http.StatusNotFound
	case match.KindAlreadySettled:
		return http.StatusOK
	}
	return http.StatusInternalServerError
}
