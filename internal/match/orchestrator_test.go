package match_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-arena/internal/chessrules"
	"github.com/park285/cheese-arena/internal/match"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu    sync.Mutex
	ended []*match.Session
}

func (r *recordingSink) SessionEnded(_ context.Context, s *match.Session, _ []match.MoveRecord) error {
	r.mu.Lock()
	r.ended = append(r.ended, s)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ended)
}

type fixture struct {
	orch  *match.Orchestrator
	clock *fakeClock
	sink  *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{clock: newFakeClock(), sink: &recordingSink{}}
	orch, err := match.New(match.NewRedisStore(rdb, time.Hour), chessrules.New(), match.DefaultConfig(),
		match.WithClock(f.clock.Now),
		match.WithResultSink(f.sink),
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	f.orch = orch
	return f
}

// started creates a session between alice (white) and bob and acknowledges both.
func (f *fixture) started(t *testing.T, mode match.Mode, initialMs int64) *match.Session {
	t.Helper()
	ctx := context.Background()
	s, err := f.orch.CreateSession(ctx, match.CreateParams{
		PlayerA: "alice",
		PlayerB: "bob",
		Mode:    mode,
		Clock:   match.ClockConfig{InitialMs: initialMs},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.orch.Acknowledge(ctx, s.ID, "alice"); err != nil {
		t.Fatalf("ack alice: %v", err)
	}
	s, err = f.orch.Acknowledge(ctx, s.ID, "bob")
	if err != nil {
		t.Fatalf("ack bob: %v", err)
	}
	if s.Status != match.StatusActive {
		t.Fatalf("expected active after both acks, got %s", s.Status)
	}
	return s
}

func (f *fixture) play(t *testing.T, id string, moves ...string) *match.Session {
	t.Helper()
	players := map[match.Side]string{match.SideA: "alice", match.SideB: "bob"}
	var s *match.Session
	for _, mv := range moves {
		cur, err := f.orch.GetSessionState(context.Background(), id)
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		s, err = f.orch.ApplyMove(context.Background(), id, players[cur.ActiveSide], mv)
		if err != nil {
			t.Fatalf("move %s: %v", mv, err)
		}
	}
	return s
}

func wantKind(t *testing.T, err error, kind match.Kind) {
	t.Helper()
	if match.KindOf(err) != kind {
		t.Fatalf("expected %s error, got %v (%s)", kind, err, match.KindOf(err))
	}
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := []match.CreateParams{
		{PlayerA: "alice", PlayerB: "alice", Mode: match.ModeCasual, Clock: match.ClockConfig{InitialMs: 1000}},
		{PlayerA: "alice", PlayerB: "bob", Mode: "blitz", Clock: match.ClockConfig{InitialMs: 1000}},
		{PlayerA: "alice", PlayerB: "bob", Mode: match.ModeCasual},
	}
	for i, p := range bad {
		if _, err := f.orch.CreateSession(ctx, p); !errors.Is(err, match.ErrInvalidParams) {
			t.Fatalf("case %d: expected invalid params, got %v", i, err)
		}
	}

	two := 2
	s, err := f.orch.CreateSession(ctx, match.CreateParams{PlayerA: "alice", PlayerB: "bob", Mode: match.ModeRated, Clock: match.ClockConfig{InitialMs: 1000}, UndoAllowance: &two})
	if err != nil {
		t.Fatalf("create rated: %v", err)
	}
	if s.Allowance(match.SideA) != 0 || s.Allowance(match.SideB) != 0 {
		t.Fatalf("rated sessions must carry no undo allowance: %v", s.UndoAllowance)
	}
	if s.Status != match.StatusWaiting || s.Result != match.ResultPending || s.Version != 1 {
		t.Fatalf("unexpected initial state %+v", s)
	}
}

func TestWaitingSessionRejectsPlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, _ := f.orch.CreateSession(ctx, match.CreateParams{PlayerA: "alice", PlayerB: "bob", Mode: match.ModeCasual, Clock: match.ClockConfig{InitialMs: 60_000}})
	if _, err := f.orch.ApplyMove(ctx, s.ID, "alice", "e2e4"); !errors.Is(err, match.ErrNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
	f.clock.Advance(time.Hour)
	s, err := f.orch.Heartbeat(ctx, s.ID, "alice")
	if err != nil || s.Status != match.StatusWaiting {
		t.Fatalf("heartbeat while waiting: %v %s", err, s.Status)
	}
	if got := match.LiveRemainingMs(s, match.SideA, f.clock.Now()); got != 60_000 {
		t.Fatalf("clock ran before start: %d", got)
	}
	s, err = f.orch.Heartbeat(ctx, s.ID, "bob")
	if err != nil || s.Status != match.StatusActive {
		t.Fatalf("second heartbeat should start the game: %v %s", err, s.Status)
	}
}

func TestScenarioAClockCheckpoint(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, match.ModeCasual, 300_000)
	s = f.play(t, s.ID, "e2e4")

	now := f.clock.Now()
	if s.ActiveSide != match.SideB {
		t.Fatalf("black should be to move")
	}
	if got := s.Remaining(match.SideA); got != 300_000 {
		t.Fatalf("white checkpoint = %d, want only elapsed time deducted", got)
	}
	f.clock.Advance(4 * time.Second)
	later := f.clock.Now()
	if got := match.LiveRemainingMs(s, match.SideB, later); got != 296_000 {
		t.Fatalf("black live = %d, want 296000", got)
	}
	if got := match.LiveRemainingMs(s, match.SideA, later); got != 300_000 {
		t.Fatalf("white must not tick while black thinks, got %d", got)
	}
	if !s.CheckpointAt.Equal(now) {
		t.Fatalf("checkpoint not refreshed on move")
	}

	f.clock.Advance(6 * time.Second)
	s = f.play(t, s.ID, "e7e5")
	if s.Remaining(match.SideB) != 290_000 || s.Remaining(match.SideA) != 300_000 {
		t.Fatalf("remaining after reply: %v", s.RemainingMs)
	}
	moves, _ := f.orch.Moves(context.Background(), s.ID)
	if len(moves) != 2 || moves[1].TimeSpentMs != 10_000 || moves[1].SAN != "e5" {
		t.Fatalf("unexpected move log %+v", moves)
	}
}

func TestMoveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 60_000)
	if _, err := f.orch.ApplyMove(ctx, s.ID, "bob", "e7e5"); !errors.Is(err, match.ErrNotYourTurn) {
		t.Fatalf("expected not your turn, got %v", err)
	}
	if _, err := f.orch.ApplyMove(ctx, s.ID, "mallory", "e2e4"); !errors.Is(err, match.ErrNotParticipant) {
		t.Fatalf("expected not a participant, got %v", err)
	}
	got, err := f.orch.ApplyMove(ctx, s.ID, "alice", "e2e5")
	if !errors.Is(err, match.ErrIllegalMove) {
		t.Fatalf("expected illegal move, got %v", err)
	}
	if got.Version != s.Version || got.PlyCount != 0 {
		t.Fatalf("rejected move mutated state: version %d -> %d", s.Version, got.Version)
	}
	if _, err := f.orch.GetSessionState(ctx, "nope"); !errors.Is(err, match.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckmateSettlesSession(t *testing.T) {
	f := newFixture(t)
	s := f.started(t, match.ModeCasual, 60_000)
	s = f.play(t, s.ID, "f2f3", "e7e5", "g2g4", "d8h4")
	if s.Status != match.StatusFinished || s.EndReason != match.EndCheckmate || s.Result != match.ResultPlayerBWin {
		t.Fatalf("unexpected end %s/%s/%s", s.Status, s.EndReason, s.Result)
	}
	if f.sink.count() != 1 {
		t.Fatalf("result sink calls = %d", f.sink.count())
	}
	_, err := f.orch.ApplyMove(context.Background(), s.ID, "alice", "a2a3")
	if !match.IsSettled(err) {
		t.Fatalf("expected already settled, got %v", err)
	}
}

func TestResignIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeRated, 60_000)
	first, err := f.orch.Resign(ctx, s.ID, "alice")
	if err != nil {
		t.Fatalf("resign: %v", err)
	}
	if first.Result != match.ResultPlayerBWin || first.EndReason != match.EndResignation {
		t.Fatalf("unexpected resign result %s/%s", first.Result, first.EndReason)
	}
	f.clock.Advance(time.Second)
	second, err := f.orch.Resign(ctx, s.ID, "alice")
	if err != nil {
		t.Fatalf("retried resign should not error: %v", err)
	}
	if second.Version != first.Version || second.Result != first.Result || !second.EndedAt.Equal(*first.EndedAt) {
		t.Fatalf("retry changed terminal state: %+v vs %+v", second, first)
	}
	if _, err := f.orch.Resign(ctx, s.ID, "bob"); err != nil {
		t.Fatalf("opponent resign after settle: %v", err)
	}
	if f.sink.count() != 1 {
		t.Fatalf("terminal notification fired %d times", f.sink.count())
	}
}

func TestScenarioCAbortDeclined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 300_000)
	s = f.play(t, s.ID, "e2e4", "e7e5", "g1f3", "b8c6")
	if s.PlyCount != 4 {
		t.Fatalf("ply count = %d", s.PlyCount)
	}
	s, err := f.orch.RequestAbort(ctx, s.ID, "alice")
	if err != nil {
		t.Fatalf("request abort: %v", err)
	}
	if _, err := f.orch.RequestUndo(ctx, s.ID, "alice"); !errors.Is(err, match.ErrNegotiationPending) {
		t.Fatalf("second request should conflict, got %v", err)
	}
	if _, err := f.orch.RespondAbort(ctx, s.ID, "alice", true); !errors.Is(err, match.ErrOwnRequest) {
		t.Fatalf("requester cannot answer own request, got %v", err)
	}
	s, err = f.orch.RespondAbort(ctx, s.ID, "bob", false)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if s.Status != match.StatusActive || s.PlyCount != 4 || s.Negotiation.Status != match.NegotiationDeclined {
		t.Fatalf("decline should leave the game running: %s plies=%d neg=%+v", s.Status, s.PlyCount, s.Negotiation)
	}
	s, err = f.orch.Resign(ctx, s.ID, "alice")
	if err != nil || s.EndReason != match.EndResignation {
		t.Fatalf("resign after declined abort: %v %s", err, s.EndReason)
	}
}

func TestAbortAcceptedVoidsResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeRated, 300_000)
	s, _ = f.orch.RequestAbort(ctx, s.ID, "bob")
	s, err := f.orch.RespondAbort(ctx, s.ID, "alice", true)
	if err != nil {
		t.Fatalf("accept abort: %v", err)
	}
	if s.Status != match.StatusAborted || s.Result != match.ResultNoResult || s.EndReason != match.EndAbandonedMutual {
		t.Fatalf("unexpected abort state %s/%s/%s", s.Status, s.Result, s.EndReason)
	}
	again, err := f.orch.RespondAbort(ctx, s.ID, "alice", true)
	if err != nil || again.Version != s.Version {
		t.Fatalf("duplicate accept should be a no-op: %v", err)
	}
}

func TestNegotiationExpiresLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 3_600_000)
	s, _ = f.orch.OfferDraw(ctx, s.ID, "alice")
	f.clock.Advance(5 * time.Minute)

	view, err := f.orch.GetSessionState(ctx, s.ID)
	if err != nil || view.Negotiation.Status != match.NegotiationExpired {
		t.Fatalf("read should show the offer expired: %v %+v", err, view.Negotiation)
	}
	if _, err := f.orch.RespondDraw(ctx, s.ID, "bob", true); !errors.Is(err, match.ErrNoPendingNegotiation) {
		t.Fatalf("expired offer cannot be accepted, got %v", err)
	}
	s, err = f.orch.OfferDraw(ctx, s.ID, "bob")
	if err != nil {
		t.Fatalf("new request after expiry: %v", err)
	}
	s, err = f.orch.RespondDraw(ctx, s.ID, "alice", true)
	if err != nil || s.Result != match.ResultDraw || s.EndReason != match.EndDrawAgreement {
		t.Fatalf("draw accept: %v %s/%s", err, s.Result, s.EndReason)
	}
}

func TestScenarioDUndoAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 300_000)
	if s.Allowance(match.SideA) != 3 {
		t.Fatalf("default casual allowance = %d", s.Allowance(match.SideA))
	}
	start := s.CurrentPosition
	s = f.play(t, s.ID, "e2e4", "e7e5")

	s, err := f.orch.RequestUndo(ctx, s.ID, "alice")
	if err != nil {
		t.Fatalf("request undo: %v", err)
	}
	before := s.Version
	s, err = f.orch.RespondUndo(ctx, s.ID, "bob", true)
	if err != nil {
		t.Fatalf("accept undo: %v", err)
	}
	moves, _ := f.orch.Moves(ctx, s.ID)
	if len(moves) != 0 || s.PlyCount != 0 {
		t.Fatalf("move log should be empty, got %d", len(moves))
	}
	if s.Allowance(match.SideA) != 2 || s.Allowance(match.SideB) != 3 {
		t.Fatalf("allowance after undo: %v", s.UndoAllowance)
	}
	if s.ActiveSide != match.SideA || s.CurrentPosition != start || s.Version <= before {
		t.Fatalf("undo did not restore the position: side=%s pos=%s", s.ActiveSide, s.CurrentPosition)
	}
	s = f.play(t, s.ID, "d2d4")
	if s.PlyCount != 1 {
		t.Fatalf("play after undo: %d plies", s.PlyCount)
	}
}

func TestUndoRestoresIntermediatePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 300_000)
	s = f.play(t, s.ID, "e2e4", "e7e5")
	mid := s.CurrentPosition
	s = f.play(t, s.ID, "g1f3", "b8c6")
	s, _ = f.orch.RequestUndo(ctx, s.ID, "alice")
	s, err := f.orch.RespondUndo(ctx, s.ID, "bob", true)
	if err != nil {
		t.Fatalf("accept undo: %v", err)
	}
	if s.PlyCount != 2 || s.CurrentPosition != mid {
		t.Fatalf("expected position after ply 2, got plies=%d", s.PlyCount)
	}
}

func TestUndoPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	zero := 0
	s, _ := f.orch.CreateSession(ctx, match.CreateParams{PlayerA: "alice", PlayerB: "bob", Mode: match.ModeCasual, Clock: match.ClockConfig{InitialMs: 300_000}, UndoAllowance: &zero})
	_, _ = f.orch.Acknowledge(ctx, s.ID, "alice")
	_, _ = f.orch.Acknowledge(ctx, s.ID, "bob")
	f.play(t, s.ID, "e2e4", "e7e5")
	if _, err := f.orch.RequestUndo(ctx, s.ID, "alice"); !errors.Is(err, match.ErrNoUndoAllowance) {
		t.Fatalf("zero allowance must reject, got %v", err)
	}

	s = f.started(t, match.ModeCasual, 300_000)
	if _, err := f.orch.RequestUndo(ctx, s.ID, "alice"); !errors.Is(err, match.ErrNothingToUndo) {
		t.Fatalf("no move pair yet, got %v", err)
	}
	f.play(t, s.ID, "e2e4")
	if _, err := f.orch.RequestUndo(ctx, s.ID, "alice"); !errors.Is(err, match.ErrUndoNotYourTurn) {
		t.Fatalf("undo off turn, got %v", err)
	}

	rated := f.started(t, match.ModeRated, 300_000)
	f.play(t, rated.ID, "e2e4", "e7e5")
	if _, err := f.orch.RequestUndo(ctx, rated.ID, "alice"); !errors.Is(err, match.ErrNoUndoAllowance) {
		t.Fatalf("rated undo must be impossible, got %v", err)
	}
}

func TestUndoAllowanceNeverNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	one := 1
	s, _ := f.orch.CreateSession(ctx, match.CreateParams{PlayerA: "alice", PlayerB: "bob", Mode: match.ModeCasual, Clock: match.ClockConfig{InitialMs: 300_000}, UndoAllowance: &one})
	_, _ = f.orch.Acknowledge(ctx, s.ID, "alice")
	_, _ = f.orch.Acknowledge(ctx, s.ID, "bob")
	s = f.play(t, s.ID, "e2e4", "e7e5")
	if _, err := f.orch.RequestUndo(ctx, s.ID, "alice"); err != nil {
		t.Fatalf("first undo request: %v", err)
	}
	s, _ = f.orch.RespondUndo(ctx, s.ID, "bob", true)
	s = f.play(t, s.ID, "e2e4", "e7e5")
	for i := 0; i < 3; i++ {
		if _, err := f.orch.RequestUndo(ctx, s.ID, "alice"); !errors.Is(err, match.ErrNoUndoAllowance) {
			t.Fatalf("attempt %d: expected no allowance, got %v", i, err)
		}
	}
	if s.Allowance(match.SideA) != 0 {
		t.Fatalf("allowance = %d", s.Allowance(match.SideA))
	}
}

func TestUndoRequestWithdrawnByOwnMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 300_000)
	s = f.play(t, s.ID, "e2e4", "e7e5")
	s, _ = f.orch.RequestUndo(ctx, s.ID, "alice")
	s = f.play(t, s.ID, "g1f3")
	if s.Negotiation.Status != match.NegotiationExpired {
		t.Fatalf("moving on should withdraw the undo request, got %s", s.Negotiation.Status)
	}
	if _, err := f.orch.RespondUndo(ctx, s.ID, "bob", true); !errors.Is(err, match.ErrNoPendingNegotiation) {
		t.Fatalf("expected nothing to answer, got %v", err)
	}
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 60_000)
	f.clock.Advance(5 * time.Second)
	s, err := f.orch.Pause(ctx, s.ID, "bob")
	if err != nil || s.Status != match.StatusPaused || s.PausedReason != match.PauseRequested {
		t.Fatalf("pause: %v %s", err, s.Status)
	}
	f.clock.Advance(10 * time.Minute)
	if got := match.LiveRemainingMs(s, match.SideA, f.clock.Now()); got != 55_000 {
		t.Fatalf("clock moved while paused: %d", got)
	}
	if _, err := f.orch.ApplyMove(ctx, s.ID, "alice", "e2e4"); !errors.Is(err, match.ErrSessionPaused) {
		t.Fatalf("move while paused, got %v", err)
	}
	s, err = f.orch.Resume(ctx, s.ID, "alice")
	if err != nil || s.Status != match.StatusActive {
		t.Fatalf("resume: %v %s", err, s.Status)
	}
	if _, err := f.orch.Resume(ctx, s.ID, "alice"); !errors.Is(err, match.ErrNotPaused) {
		t.Fatalf("resume while active, got %v", err)
	}
}

func TestScenarioERatedNeverPausesAndFlagsOnTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeRated, 300_000)
	_, err := f.orch.Pause(ctx, s.ID, "alice")
	wantKind(t, err, match.KindIllegalState)
	if !errors.Is(err, match.ErrRatedNoPause) {
		t.Fatalf("expected rated_no_pause, got %v", err)
	}

	// white disconnects; a full sweep cycle must not pause a rated game
	f.clock.Advance(2 * time.Minute)
	s, err = f.orch.Sweep(ctx, s.ID)
	if err != nil || s.Status != match.StatusActive {
		t.Fatalf("rated sweep: %v %s", err, s.Status)
	}
	f.clock.Advance(3 * time.Minute)
	s, err = f.orch.Sweep(ctx, s.ID)
	if err != nil {
		t.Fatalf("sweep at flag fall: %v", err)
	}
	if s.Status != match.StatusFinished || s.EndReason != match.EndTimeout || s.Result != match.ResultPlayerBWin {
		t.Fatalf("expected black win on time, got %s/%s/%s", s.Status, s.EndReason, s.Result)
	}
	if s.Remaining(match.SideA) != 0 {
		t.Fatalf("flagged clock = %d", s.Remaining(match.SideA))
	}
}

func TestFlagFallWinsOverLateAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 10_000)
	f.clock.Advance(11 * time.Second)
	s, err := f.orch.ApplyMove(ctx, s.ID, "alice", "e2e4")
	if !match.IsSettled(err) {
		t.Fatalf("late move should see the settled session, got %v", err)
	}
	if s.EndReason != match.EndTimeout || s.PlyCount != 0 {
		t.Fatalf("expected timeout without the late move: %s plies=%d", s.EndReason, s.PlyCount)
	}
	again, err := f.orch.Resign(ctx, s.ID, "alice")
	if err != nil || again.EndReason != match.EndTimeout {
		t.Fatalf("resign after flag fall: %v %s", err, again.EndReason)
	}
	if f.sink.count() != 1 {
		t.Fatalf("sink fired %d times", f.sink.count())
	}
}

func TestStateReadShowsFlagFallWithoutPersisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 10_000)
	f.clock.Advance(11 * time.Second)

	view, err := f.orch.GetSessionState(ctx, s.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if view.Status != match.StatusFinished || view.EndReason != match.EndTimeout || view.Result != match.ResultPlayerBWin {
		t.Fatalf("read should show the flag fall: %s %s %s", view.Status, view.EndReason, view.Result)
	}
	if view.Remaining(match.SideA) != 0 || view.Version != s.Version {
		t.Fatalf("read must not commit: remaining=%d version=%d", view.Remaining(match.SideA), view.Version)
	}
	if f.sink.count() != 0 {
		t.Fatalf("read must not settle")
	}

	swept, err := f.orch.Sweep(ctx, s.ID)
	if err != nil || swept.Status != match.StatusFinished || swept.Version != s.Version+1 {
		t.Fatalf("sweep: %v %+v", err, swept)
	}
	if f.sink.count() != 1 {
		t.Fatalf("sink fired %d times", f.sink.count())
	}
}

func TestConcurrentTerminationTriggersSettleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 60_000)

	var wg sync.WaitGroup
	results := make([]*match.Session, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			player := "alice"
			if i%2 == 1 {
				player = "bob"
			}
			got, err := f.orch.Resign(ctx, s.ID, player)
			if err != nil {
				t.Errorf("resign %d: %v", i, err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()
	final, _ := f.orch.GetSessionState(ctx, s.ID)
	for i, r := range results {
		if r != nil && (r.Result != final.Result || r.Version != final.Version) {
			t.Fatalf("resign %d observed %s@%d, final %s@%d", i, r.Result, r.Version, final.Result, final.Version)
		}
	}
	if f.sink.count() != 1 {
		t.Fatalf("terminal notification fired %d times", f.sink.count())
	}
}

func TestVersionStrictlyIncreases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.started(t, match.ModeCasual, 60_000)
	last := s.Version
	step := func(got *match.Session, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if got.Version <= last {
			t.Fatalf("version did not increase: %d -> %d", last, got.Version)
		}
		last = got.Version
	}
	step(f.orch.ApplyMove(ctx, s.ID, "alice", "e2e4"))
	step(f.orch.Heartbeat(ctx, s.ID, "bob"))
	step(f.orch.Pause(ctx, s.ID, "alice"))
	step(f.orch.Resume(ctx, s.ID, "bob"))
	step(f.orch.OfferDraw(ctx, s.ID, "bob"))
	step(f.orch.RespondDraw(ctx, s.ID, "alice", false))
}
