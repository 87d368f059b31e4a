package match

import "context"

// UpdateFunc mutates a loaded session and its move log. Returning changed=false
// skips the write; a non-nil error aborts it and is returned unchanged.
type UpdateFunc func(s *Session, log *MoveLog) (changed bool, err error)

// Store persists sessions and their move logs. Update must apply the session
// record and move log changes atomically, or not at all.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Moves(ctx context.Context, id string) ([]MoveRecord, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error)
	LiveIDs(ctx context.Context) ([]string, error)
}

// MoveLog is the append-only ply history as seen inside one commit.
// The only rewrite it allows is dropping records from the tail.
type MoveLog struct {
	records []MoveRecord
	base    int
	low     int
}

func newMoveLog(records []MoveRecord) *MoveLog {
	return &MoveLog{records: records, base: len(records), low: len(records)}
}

func (l *MoveLog) Len() int { return len(l.records) }

// All returns a copy of the records.
func (l *MoveLog) All() []MoveRecord {
	out := make([]MoveRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Last returns the most recent record.
func (l *MoveLog) Last() (MoveRecord, bool) {
	if len(l.records) == 0 {
		return MoveRecord{}, false
	}
	return l.records[len(l.records)-1], true
}

// Notations lists the moves in UCI form, oldest first.
func (l *MoveLog) Notations() []string {
	out := make([]string, len(l.records))
	for i, r := range l.records {
		out[i] = r.Notation
	}
	return out
}

func (l *MoveLog) Append(r MoveRecord) { l.records = append(l.records, r) }

// DropLast removes the n most recent records.
func (l *MoveLog) DropLast(n int) {
	if n > len(l.records) {
		n = len(l.records)
	}
	l.records = l.records[:len(l.records)-n]
	if len(l.records) < l.low {
		l.low = len(l.records)
	}
}

// delta reports how to bring the stored log in line: keep the first keep
// records and append the rest.
func (l *MoveLog) delta() (keep int, appended []MoveRecord, dirty bool) {
	keep = l.low
	if keep > l.base {
		keep = l.base
	}
	appended = l.records[keep:]
	dirty = keep != l.base || len(appended) > 0
	return keep, appended, dirty
}
