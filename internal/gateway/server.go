// Package gateway exposes the orchestrator over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/matchpresenter"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/publish"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

// UserHeader carries the player id set by the auth proxy in front of us.
const UserHeader = "X-User-Id"

const maxBody = 16 << 10

// Orchestrator is the slice of match.Orchestrator the gateway drives.
type Orchestrator interface {
	Now() time.Time
	CreateSession(ctx context.Context, p match.CreateParams) (*match.Session, error)
	GetSessionState(ctx context.Context, id string) (*match.Session, error)
	Moves(ctx context.Context, id string) ([]match.MoveRecord, error)
	Acknowledge(ctx context.Context, id, player string) (*match.Session, error)
	Heartbeat(ctx context.Context, id, player string) (*match.Session, error)
	ApplyMove(ctx context.Context, id, player, move string) (*match.Session, error)
	Resign(ctx context.Context, id, player string) (*match.Session, error)
	Pause(ctx context.Context, id, player string) (*match.Session, error)
	Resume(ctx context.Context, id, player string) (*match.Session, error)
	RequestAbort(ctx context.Context, id, player string) (*match.Session, error)
	RespondAbort(ctx context.Context, id, player string, accept bool) (*match.Session, error)
	RequestUndo(ctx context.Context, id, player string) (*match.Session, error)
	RespondUndo(ctx context.Context, id, player string, accept bool) (*match.Session, error)
	OfferDraw(ctx context.Context, id, player string) (*match.Session, error)
	RespondDraw(ctx context.Context, id, player string, accept bool) (*match.Session, error)
}

type Server struct {
	orch      Orchestrator
	bus       publish.Bus
	presenter *matchpresenter.Presenter
	mux       *http.ServeMux

	pingInterval   time.Duration
	originPatterns []string
}

type Option func(*Server)

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

// WithOriginPatterns allows browser WebSocket handshakes from other hosts.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

func New(orch Orchestrator, bus publish.Bus, presenter *matchpresenter.Presenter, opts ...Option) *Server {
	s := &Server{
		orch:         orch,
		bus:          bus,
		presenter:    presenter,
		mux:          http.NewServeMux(),
		pingInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("POST /sessions", s.handleCreate)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGet)
	s.mux.HandleFunc("GET /sessions/{id}/moves", s.handleMoves)
	s.mux.HandleFunc("POST /sessions/{id}/actions", s.handleAction)
	s.mux.HandleFunc("GET /sessions/{id}/ws", s.handleWS)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req matchdto.CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, s.errorEnvelope(s.presenter.Message("bad_request", nil), nil))
		return
	}
	sess, err := s.orch.CreateSession(r.Context(), match.CreateParams{
		PlayerA:       req.PlayerA,
		PlayerB:       req.PlayerB,
		Mode:          match.Mode(strings.ToLower(strings.TrimSpace(req.Mode))),
		Clock:         match.ClockConfig{InitialMs: req.InitialMs, IncrementMs: req.IncrementMs},
		UndoAllowance: req.UndoAllowance,
	})
	if err != nil {
		s.writeResult(w, nil, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.snapshotEnvelope(sess))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.GetSessionState(r.Context(), r.PathValue("id"))
	s.writeResult(w, sess, err)
}

func (s *Server) handleMoves(w http.ResponseWriter, r *http.Request) {
	moves, err := s.orch.Moves(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeResult(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, s.presenter.Moves(moves))
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	player := strings.TrimSpace(r.Header.Get(UserHeader))
	if player == "" {
		writeJSON(w, http.StatusUnauthorized, s.errorEnvelope(s.presenter.Message("missing_player", nil), nil))
		return
	}
	var act matchdto.Action
	if err := decodeBody(r, &act); err != nil {
		writeJSON(w, http.StatusBadRequest, s.errorEnvelope(s.presenter.Message("bad_request", nil), nil))
		return
	}
	sess, err := s.dispatch(r.Context(), r.PathValue("id"), player, act)
	var unknown unknownActionError
	if errors.As(err, &unknown) {
		writeJSON(w, http.StatusBadRequest, s.errorEnvelope(s.presenter.Message("unknown_action", unknown), nil))
		return
	}
	s.writeResult(w, sess, err)
}

// writeResult answers with the session snapshot, or with the error plus
// whatever state the orchestrator returned alongside it.
func (s *Server) writeResult(w http.ResponseWriter, sess *match.Session, err error) {
	if err == nil || match.IsSettled(err) {
		writeJSON(w, http.StatusOK, s.snapshotEnvelope(sess))
		return
	}
	if match.KindOf(err) == match.KindInternal {
		obslog.L().Error("gateway_request_failed", zap.Error(err))
	}
	writeJSON(w, matchpresenter.HTTPStatus(err), s.errorEnvelope(s.presenter.Error(err), sess))
}

func (s *Server) snapshotEnvelope(sess *match.Session) matchdto.Envelope {
	return matchdto.Envelope{Type: matchdto.EnvelopeSnapshot, Snapshot: s.presenter.Snapshot(sess, s.orch.Now())}
}

func (s *Server) errorEnvelope(de matchdto.DomainError, sess *match.Session) matchdto.Envelope {
	return matchdto.Envelope{Type: matchdto.EnvelopeError, Error: &de, Snapshot: s.presenter.Snapshot(sess, s.orch.Now())}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Warn("gateway_write_failed", zap.Error(err))
	}
}
