package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/publish"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

const writeTimeout = 5 * time.Second

// peer is one player's socket. Snapshots older than the last one written
// are dropped so the client only ever moves forward.
type peer struct {
	conn    *websocket.Conn
	session string
	player  string

	mu          sync.Mutex
	lastVersion int64
}

func (p *peer) sendSnapshot(ctx context.Context, snap *matchdto.Snapshot) error {
	if snap == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Version <= p.lastVersion {
		return nil
	}
	if err := p.write(ctx, matchdto.Envelope{Type: matchdto.EnvelopeSnapshot, Snapshot: snap}); err != nil {
		return err
	}
	p.lastVersion = snap.Version
	return nil
}

func (p *peer) sendError(ctx context.Context, de matchdto.DomainError) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(ctx, matchdto.Envelope{Type: matchdto.EnvelopeError, Error: &de})
}

func (p *peer) write(ctx context.Context, env matchdto.Envelope) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, p.conn, env)
}

// handleWS upgrades a participant, acknowledges readiness on their behalf and
// then relays every committed snapshot of the session until either side hangs up.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	player := strings.TrimSpace(r.Header.Get(UserHeader))
	if player == "" {
		writeJSON(w, http.StatusUnauthorized, s.errorEnvelope(s.presenter.Message("missing_player", nil), nil))
		return
	}
	sess, err := s.orch.Acknowledge(r.Context(), id, player)
	if err != nil && !match.IsSettled(err) {
		s.writeResult(w, sess, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  s.originPatterns,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected teardown")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.bus.Subscribe(ctx, id)
	if err != nil {
		obslog.L().Error("ws_subscribe_failed", zap.String("session_id", id), zap.Error(err))
		_ = conn.Close(websocket.StatusTryAgainLater, "subscribe failed")
		return
	}
	defer sub.Close()

	p := &peer{conn: conn, session: id, player: player}
	obslog.L().Info("ws_connected", zap.String("session_id", id), zap.String("player", player))
	if err := p.sendSnapshot(ctx, s.presenter.Snapshot(sess, s.orch.Now())); err != nil {
		return
	}

	go s.relay(ctx, cancel, p, sub)
	go s.pingLoop(ctx, cancel, p)
	s.readLoop(ctx, p)

	obslog.L().Info("ws_disconnected", zap.String("session_id", id), zap.String("player", player))
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) readLoop(ctx context.Context, p *peer) {
	for {
		var act matchdto.Action
		if err := wsjson.Read(ctx, p.conn, &act); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				obslog.L().Debug("ws_read_failed", zap.String("session_id", p.session), zap.Error(err))
			}
			return
		}
		sess, err := s.dispatch(ctx, p.session, p.player, act)
		if err != nil && !match.IsSettled(err) {
			var unknown unknownActionError
			de := s.presenter.Error(err)
			if errors.As(err, &unknown) {
				de = s.presenter.Message("unknown_action", unknown)
			} else if match.KindOf(err) == match.KindInternal {
				obslog.L().Error("ws_action_failed", zap.String("session_id", p.session), zap.String("action", act.Type), zap.Error(err))
			}
			if err := p.sendError(ctx, de); err != nil {
				return
			}
		}
		if err := p.sendSnapshot(ctx, s.presenter.Snapshot(sess, s.orch.Now())); err != nil {
			return
		}
	}
}

func (s *Server) relay(ctx context.Context, cancel context.CancelFunc, p *peer, sub *publish.Subscription) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if err := p.sendSnapshot(ctx, snap); err != nil {
				return
			}
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, cancel context.CancelFunc, p *peer) {
	if s.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
			err := p.conn.Ping(pctx)
			pcancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Info("ws_ping_timeout", zap.String("session_id", p.session), zap.String("player", p.player))
				cancel()
				return
			}
		}
	}
}
