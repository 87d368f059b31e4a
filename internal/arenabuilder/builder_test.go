package arenabuilder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/match"
)

func testConfig() *config.AppConfig {
	m := match.DefaultConfig()
	return &config.AppConfig{
		ListenAddr:          ":0",
		SessionRetention:    time.Hour,
		PresenceGrace:       m.PresenceGrace,
		ConfirmGrace:        m.ConfirmGrace,
		MaxPause:            m.MaxPause,
		NegotiationTTL:      m.NegotiationTTL,
		LockTimeout:         m.LockTimeout,
		SweepInterval:       time.Second,
		CasualUndoAllowance: m.CasualUndoAllowance,
	}
}

func exercise(t *testing.T, deps *Deps) {
	t.Helper()
	ctx := context.Background()
	s, err := deps.Orchestrator.CreateSession(ctx, match.CreateParams{
		PlayerA: "alice", PlayerB: "bob", Mode: match.ModeCasual, Clock: match.ClockConfig{InitialMs: 60_000},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stats, err := deps.Monitor.SweepOnce(ctx)
	if err != nil || stats.Scanned != 1 {
		t.Fatalf("sweep: %+v %v", stats, err)
	}
	srv := httptest.NewServer(deps.Gateway.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/sessions/" + s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
}

func TestNewInMemory(t *testing.T) {
	deps, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer deps.Close()
	exercise(t, deps)
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	deps, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer deps.Close()
	exercise(t, deps)
	if !mr.Exists("match:index:live") {
		t.Fatalf("live index not written to redis")
	}
}

func TestNewRejectsBadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "http://localhost:6379"
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected redis url error")
	}
}
