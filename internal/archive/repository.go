// Package archive keeps the final record of every settled session in Postgres.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
)

const schema = `CREATE TABLE IF NOT EXISTS match_results (
	session_id   TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	player_a     TEXT NOT NULL,
	player_b     TEXT NOT NULL,
	status       TEXT NOT NULL,
	result       TEXT NOT NULL,
	end_reason   TEXT NOT NULL,
	initial_ms   BIGINT NOT NULL,
	increment_ms BIGINT NOT NULL,
	plies        INTEGER NOT NULL,
	moves        JSONB NOT NULL,
	pgn          TEXT NOT NULL,
	started_at   TIMESTAMPTZ,
	ended_at     TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL
)`

const upsert = `INSERT INTO match_results (
	session_id, mode, player_a, player_b, status, result, end_reason,
	initial_ms, increment_ms, plies, moves, pgn, started_at, ended_at, duration_ms
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (session_id) DO UPDATE SET
	status=EXCLUDED.status,
	result=EXCLUDED.result,
	end_reason=EXCLUDED.end_reason,
	plies=EXCLUDED.plies,
	moves=EXCLUDED.moves,
	pgn=EXCLUDED.pgn,
	ended_at=EXCLUDED.ended_at,
	duration_ms=EXCLUDED.duration_ms`

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Migrate creates the results table when it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create match_results: %w", err)
	}
	return nil
}

// SessionEnded archives a settled session. Repeated calls overwrite the same row.
func (r *Repository) SessionEnded(ctx context.Context, s *match.Session, moves []match.MoveRecord) error {
	if err := r.SaveResult(ctx, s, moves); err != nil {
		return err
	}
	obslog.L().Info("archive_saved", zap.String("session_id", s.ID), zap.String("result", string(s.Result)), zap.Int("plies", len(moves)))
	return nil
}

func (r *Repository) SaveResult(ctx context.Context, s *match.Session, moves []match.MoveRecord) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}
	rec := newRecord(s, moves)
	movesRaw, err := json.Marshal(rec.moves)
	if err != nil {
		return fmt.Errorf("encode moves: %w", err)
	}
	_, err = r.db.ExecContext(ctx, upsert,
		s.ID, string(s.Mode), s.PlayerA, s.PlayerB, string(s.Status), string(s.Result), string(s.EndReason),
		s.InitialMs, s.IncrementMs, len(moves), string(movesRaw), rec.pgn, s.StartedAt, rec.endedAt, rec.durationMs,
	)
	if err != nil {
		return fmt.Errorf("upsert match_results %s: %w", s.ID, err)
	}
	return nil
}

type archivedMove struct {
	UCI         string `json:"uci"`
	SAN         string `json:"san"`
	TimeSpentMs int64  `json:"ms"`
}

type record struct {
	moves      []archivedMove
	pgn        string
	endedAt    time.Time
	durationMs int64
}

func newRecord(s *match.Session, moves []match.MoveRecord) record {
	rec := record{endedAt: s.UpdatedAt}
	if s.EndedAt != nil {
		rec.endedAt = *s.EndedAt
	}
	if s.StartedAt != nil {
		if d := rec.endedAt.Sub(*s.StartedAt).Milliseconds(); d > 0 {
			rec.durationMs = d
		}
	}
	san := make([]string, 0, len(moves))
	for _, m := range moves {
		rec.moves = append(rec.moves, archivedMove{UCI: m.Notation, SAN: m.SAN, TimeSpentMs: m.TimeSpentMs})
		san = append(san, m.SAN)
	}
	if rec.moves == nil {
		rec.moves = []archivedMove{}
	}
	rec.pgn = buildPGN(s, san, rec.endedAt)
	return rec
}

func pgnResult(r match.Result) string {
	switch r {
	case match.ResultPlayerAWin:
		return "1-0"
	case match.ResultPlayerBWin:
		return "0-1"
	case match.ResultDraw:
		return "1/2-1/2"
	}
	return "*"
}

func buildPGN(s *match.Session, san []string, date time.Time) string {
	if date.IsZero() {
		date = time.Now()
	}
	result := pgnResult(s.Result)
	var b strings.Builder
	fmt.Fprintf(&b, "[Event \"%s game\"]\n", s.Mode)
	b.WriteString("[Site \"cheese-arena\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(s.PlayerA))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(s.PlayerB))
	if s.EndReason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(s.EndReason)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)
	for i := 0; i < len(san); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(san[i]))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
