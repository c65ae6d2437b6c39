package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO),
// so the bootstrapper stays a static binary.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates a SQLite database at the given path,
// creating its parent directory.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		command     TEXT NOT NULL,
		platform    TEXT NOT NULL DEFAULT '',
		version     TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		outcome     TEXT NOT NULL DEFAULT 'running',
		exit_code   INTEGER NOT NULL DEFAULT 0,
		message     TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS events (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		timestamp TEXT NOT NULL,
		kind      TEXT NOT NULL,
		artifact  TEXT NOT NULL DEFAULT '',
		source    TEXT NOT NULL DEFAULT '',
		bytes     INTEGER NOT NULL DEFAULT 0,
		sha256    TEXT NOT NULL DEFAULT '',
		detail    TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, timestamp DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartRun inserts a new run.
func (s *SQLiteStore) StartRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, platform, version, started_at, outcome)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.Platform, run.Version,
		run.StartedAt.UTC().Format(timeLayout), string(run.Outcome),
	)
	return err
}

// UpdateRunTarget records the resolved platform and selected version.
func (s *SQLiteStore) UpdateRunTarget(ctx context.Context, id, platform, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET platform = ?, version = ? WHERE id = ?`, platform, version, id)
	return err
}

// FinishRun closes a run with its outcome.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, outcome Outcome, exitCode int, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET outcome = ?, exit_code = ?, message = ?, finished_at = ? WHERE id = ?`,
		string(outcome), exitCode, message, at.UTC().Format(timeLayout), id)
	return err
}

// RecordEvent appends an event to its run and sets ev.ID.
func (s *SQLiteStore) RecordEvent(ctx context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, timestamp, kind, artifact, source, bytes, sha256, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Timestamp.UTC().Format(timeLayout), string(ev.Kind),
		ev.Artifact, ev.Source, ev.Bytes, ev.SHA256, ev.Detail,
	)
	if err != nil {
		return err
	}
	ev.ID, err = res.LastInsertId()
	return err
}

// ListRuns returns the newest runs first. limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, command, platform, version, started_at, finished_at, outcome, exit_code, message
		FROM runs ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, command, platform, version, started_at, finished_at, outcome, exit_code, message
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// Events returns the events of a run in the order they were recorded.
func (s *SQLiteStore) Events(ctx context.Context, runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, timestamp, kind, artifact, source, bytes, sha256, detail
		 FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// LastInstall returns the newest install event, or nil when there is none.
func (s *SQLiteStore) LastInstall(ctx context.Context) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, timestamp, kind, artifact, source, bytes, sha256, detail
		 FROM events WHERE kind = ? ORDER BY id DESC LIMIT 1`, string(EventInstall))
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var startedAt, finishedAt, outcome string
	err := sc.Scan(&r.ID, &r.Command, &r.Platform, &r.Version,
		&startedAt, &finishedAt, &outcome, &r.ExitCode, &r.Message)
	if err != nil {
		return nil, err
	}
	r.Outcome = Outcome(outcome)
	r.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if finishedAt != "" {
		r.FinishedAt, _ = time.Parse(timeLayout, finishedAt)
	}
	return &r, nil
}

func scanEvent(sc scanner) (*Event, error) {
	var ev Event
	var ts, kind string
	err := sc.Scan(&ev.ID, &ev.RunID, &ts, &kind, &ev.Artifact, &ev.Source,
		&ev.Bytes, &ev.SHA256, &ev.Detail)
	if err != nil {
		return nil, err
	}
	ev.Kind = EventKind(kind)
	ev.Timestamp, _ = time.Parse(timeLayout, ts)
	return &ev, nil
}
