package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

type unknownActionError struct {
	Type string
}

func (e unknownActionError) Error() string { return fmt.Sprintf("unknown action %q", e.Type) }

// dispatch routes one client action to the orchestrator. leave is a
// resignation sent by a client that is going away.
func (s *Server) dispatch(ctx context.Context, id, player string, act matchdto.Action) (*match.Session, error) {
	switch strings.ToLower(strings.TrimSpace(act.Type)) {
	case matchdto.ActionMove:
		return s.orch.ApplyMove(ctx, id, player, act.Move)
	case matchdto.ActionResign, matchdto.ActionLeave:
		return s.orch.Resign(ctx, id, player)
	case matchdto.ActionPause:
		return s.orch.Pause(ctx, id, player)
	case matchdto.ActionResume:
		return s.orch.Resume(ctx, id, player)
	case matchdto.ActionRequestAbort:
		return s.orch.RequestAbort(ctx, id, player)
	case matchdto.ActionRespondAbort:
		return s.orch.RespondAbort(ctx, id, player, act.Accept)
	case matchdto.ActionRequestUndo:
		return s.orch.RequestUndo(ctx, id, player)
	case matchdto.ActionRespondUndo:
		return s.orch.RespondUndo(ctx, id, player, act.Accept)
	case matchdto.ActionOfferDraw:
		return s.orch.OfferDraw(ctx, id, player)
	case matchdto.ActionRespondDraw:
		return s.orch.RespondDraw(ctx, id, player, act.Accept)
	case matchdto.ActionHeartbeat:
		return s.orch.Heartbeat(ctx, id, player)
	case matchdto.ActionAcknowledge:
		return s.orch.Acknowledge(ctx, id, player)
	}
	return nil, unknownActionError{Type: act.Type}
}
