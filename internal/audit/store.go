// Package audit persists the per-trace event log shared by the resolver,
// the insertion engine and the polish coordinator. Resolver matching is a
// frequent source of regressions; the log is queryable offline so a failed
// focus return can be reconstructed without reproducing it live.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"voicelink/internal/domain"
)

// Store manages the trace-event database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewStore creates or opens the audit database under stateDir.
func NewStore(stateDir string) (*Store, error) {
	dbPath := filepath.Join(stateDir, "audit.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trace_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		event TEXT NOT NULL,
		changed INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trace_events_trace ON trace_events(trace_id);
	CREATE INDEX IF NOT EXISTS idx_trace_events_stage ON trace_events(stage);

	CREATE TABLE IF NOT EXISTS debug_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message TEXT NOT NULL,
		source TEXT NOT NULL,
		category TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one trace event. Append failures are deliberately swallowed:
// diagnostics must never abort a dictation.
func (s *Store) Record(event domain.TraceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, _ = s.db.Exec(
		`INSERT INTO trace_events (trace_id, stage, event, changed, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		event.TraceID, event.Stage, event.Event, boolToInt(event.Changed), event.Message, event.CreatedAt.UnixMilli(),
	)
}

// AppendDebugEvent appends one free-form diagnostic line from either process.
func (s *Store) AppendDebugEvent(message, source, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO debug_events (message, source, category, created_at) VALUES (?, ?, ?, ?)`,
		message, source, category, time.Now().UnixMilli(),
	)
	return err
}

// EventsForTrace returns all events recorded for one trace, oldest first.
func (s *Store) EventsForTrace(traceID string) ([]domain.TraceEvent, error) {
	return s.query(
		`SELECT trace_id, stage, event, changed, message, created_at FROM trace_events WHERE trace_id = ? ORDER BY id`,
		traceID,
	)
}

// EventsForStage returns all events for one stage across traces, oldest first.
func (s *Store) EventsForStage(stage string) ([]domain.TraceEvent, error) {
	return s.query(
		`SELECT trace_id, stage, event, changed, message, created_at FROM trace_events WHERE stage = ? ORDER BY id`,
		stage,
	)
}

func (s *Store) query(stmt string, args ...any) ([]domain.TraceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	defer rows.Close()

	var events []domain.TraceEvent
	for rows.Next() {
		var (
			event   domain.TraceEvent
			changed int
			millis  int64
			message sql.NullString
		)
		if err := rows.Scan(&event.TraceID, &event.Stage, &event.Event, &changed, &message, &millis); err != nil {
			return nil, fmt.Errorf("audit scan failed: %w", err)
		}
		event.Changed = changed != 0
		event.Message = message.String
		event.CreatedAt = time.UnixMilli(millis)
		events = append(events, event)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
