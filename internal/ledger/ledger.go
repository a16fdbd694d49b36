// Package ledger persists per-line study scores in SQLite. Each line keeps an
// OK count, an NG count and the time it was last studied; every mark is also
// recorded as an attempt.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/speakdrill/speakdrill/internal/clip"

	_ "modernc.org/sqlite"
)

// ErrInvalidKey is returned for an empty dialogue identifier or a negative
// line index.
var ErrInvalidKey = errors.New("invalid ledger key")

const schema = `
CREATE TABLE IF NOT EXISTS scores (
	line_key        TEXT PRIMARY KEY,
	dialogue_id     TEXT NOT NULL,
	line_index      INTEGER NOT NULL,
	ok_count        INTEGER NOT NULL DEFAULT 0,
	ng_count        INTEGER NOT NULL DEFAULT 0,
	last_studied_at INTEGER
);
CREATE INDEX IF NOT EXISTS scores_dialogue ON scores (dialogue_id);
CREATE TABLE IF NOT EXISTS attempts (
	id          TEXT PRIMARY KEY,
	line_key    TEXT NOT NULL,
	ok          INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_created ON attempts (created_at);
`

// Entry is the score for one line. LastStudiedAt is zero for a line that was
// never studied.
type Entry struct {
	DialogueID    string
	LineIndex     int
	OKCount       int
	NGCount       int
	LastStudiedAt time.Time
}

// Key returns the ledger key of the entry.
func (e Entry) Key() string {
	return clip.LineKey(e.DialogueID, e.LineIndex)
}

// Attempt is one recorded OK/NG mark.
type Attempt struct {
	ID        string
	Key       string
	OK        bool
	CreatedAt time.Time
}

// Summary totals a dialogue's scores.
type Summary struct {
	DialogueID    string
	Studied       int
	OKCount       int
	NGCount       int
	LastStudiedAt time.Time
}

// Ledger is a score store backed by a SQLite file.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path. The parent directory is created
// if needed.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: writes are serialized.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init ledger %s: %w", path, err)
		}
	}

	log.Debug("ledger opened", "path", path)
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func validate(dialogueID string, lineIndex int) error {
	if dialogueID == "" || lineIndex < 0 {
		return fmt.Errorf("%w: %q/%d", ErrInvalidKey, dialogueID, lineIndex)
	}
	return nil
}

// Get returns the entry for a line. Unknown lines have zero counts.
func (l *Ledger) Get(ctx context.Context, dialogueID string, lineIndex int) (Entry, error) {
	if err := validate(dialogueID, lineIndex); err != nil {
		return Entry{}, err
	}

	e := Entry{DialogueID: dialogueID, LineIndex: lineIndex}
	var last sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT ok_count, ng_count, last_studied_at FROM scores WHERE line_key = ?`,
		e.Key()).Scan(&e.OKCount, &e.NGCount, &last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return e, nil
	case err != nil:
		return Entry{}, fmt.Errorf("get %s: %w", e.Key(), err)
	}
	e.LastStudiedAt = fromMillis(last)
	return e, nil
}

// Mark records one OK or NG result for a line.
func (l *Ledger) Mark(ctx context.Context, dialogueID string, lineIndex int, ok bool) (Entry, error) {
	okDelta, ngDelta := 0, 1
	if ok {
		okDelta, ngDelta = 1, 0
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin mark: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	e, err := l.adjust(ctx, tx, dialogueID, lineIndex, okDelta, ngDelta)
	if err != nil {
		return Entry{}, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attempts (id, line_key, ok, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), e.Key(), ok, e.LastStudiedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("record attempt %s: %w", e.Key(), err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit mark: %w", err)
	}
	return e, nil
}

// Adjust adds the deltas to a line's counts. Counts never drop below zero.
// The line's last studied time is set to now.
func (l *Ledger) Adjust(ctx context.Context, dialogueID string, lineIndex, okDelta, ngDelta int) (Entry, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin adjust: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	e, err := l.adjust(ctx, tx, dialogueID, lineIndex, okDelta, ngDelta)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit adjust: %w", err)
	}
	return e, nil
}

func (l *Ledger) adjust(ctx context.Context, tx *sql.Tx, dialogueID string, lineIndex, okDelta, ngDelta int) (Entry, error) {
	if err := validate(dialogueID, lineIndex); err != nil {
		return Entry{}, err
	}

	e := Entry{DialogueID: dialogueID, LineIndex: lineIndex}
	err := tx.QueryRowContext(ctx,
		`SELECT ok_count, ng_count FROM scores WHERE line_key = ?`,
		e.Key()).Scan(&e.OKCount, &e.NGCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("read %s: %w", e.Key(), err)
	}

	e.OKCount = max(0, e.OKCount+okDelta)
	e.NGCount = max(0, e.NGCount+ngDelta)
	e.LastStudiedAt = l.now().UTC().Truncate(time.Millisecond)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scores (line_key, dialogue_id, line_index, ok_count, ng_count, last_studied_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (line_key) DO UPDATE SET
			ok_count = excluded.ok_count,
			ng_count = excluded.ng_count,
			last_studied_at = excluded.last_studied_at`,
		e.Key(), dialogueID, lineIndex, e.OKCount, e.NGCount, e.LastStudiedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("write %s: %w", e.Key(), err)
	}
	return e, nil
}

// Entries returns the studied lines of a dialogue ordered by line index.
func (l *Ledger) Entries(ctx context.Context, dialogueID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT line_index, ok_count, ng_count, last_studied_at FROM scores
		WHERE dialogue_id = ? ORDER BY line_index`, dialogueID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dialogueID, err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		e := Entry{DialogueID: dialogueID}
		var last sql.NullInt64
		if err := rows.Scan(&e.LineIndex, &e.OKCount, &e.NGCount, &last); err != nil {
			return nil, fmt.Errorf("scan %s: %w", dialogueID, err)
		}
		e.LastStudiedAt = fromMillis(last)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summary totals the scores of one dialogue, or of every dialogue when
// dialogueID is empty.
func (l *Ledger) Summary(ctx context.Context, dialogueID string) ([]Summary, error) {
	query := `
		SELECT dialogue_id, COUNT(*), SUM(ok_count), SUM(ng_count), MAX(last_studied_at)
		FROM scores`
	var args []any
	if dialogueID != "" {
		query += ` WHERE dialogue_id = ?`
		args = append(args, dialogueID)
	}
	query += ` GROUP BY dialogue_id ORDER BY dialogue_id`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Summary
	for rows.Next() {
		var s Summary
		var last sql.NullInt64
		if err := rows.Scan(&s.DialogueID, &s.Studied, &s.OKCount, &s.NGCount, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.LastStudiedAt = fromMillis(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Recent returns the latest attempts, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, line_key, ok, created_at FROM attempts
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var created int64
		if err := rows.Scan(&a.ID, &a.Key, &a.OK, &created); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Reset deletes the scores and attempts of a dialogue, or everything when
// dialogueID is empty. It returns the number of lines cleared.
func (l *Ledger) Reset(ctx context.Context, dialogueID string) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var res sql.Result
	if dialogueID == "" {
		if _, err = tx.ExecContext(ctx, `DELETE FROM attempts`); err == nil {
			res, err = tx.ExecContext(ctx, `DELETE FROM scores`)
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM attempts WHERE line_key IN
			(SELECT line_key FROM scores WHERE dialogue_id = ?)`, dialogueID)
		if err == nil {
			res, err = tx.ExecContext(ctx, `DELETE FROM scores WHERE dialogue_id = ?`, dialogueID)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("reset %q: %w", dialogueID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset: %w", err)
	}
	return res.RowsAffected()
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}
