// Package store is abby's local, non-authoritative audit log: it
// persists parameter changes and tool-call/approval events reported on
// a session's event bus so an operator can inspect history after the
// process restarts. It is not the source of truth for mixer state —
// the DAW is — and abbyd never reads from it to answer a tool call.
// It follows a package-level openDB var for test injection, WAL-mode
// SQLite via modernc.org/sqlite, and an idempotent migrate() run at
// construction.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/boristopalov/abby/internal/events"
	"github.com/boristopalov/abby/internal/model"
)

// openDB is a package-level var so tests can inject a failing opener.
var openDB = sql.Open

// Config configures where the audit database lives.
type Config struct {
	DataDir string
}

// Store is the audit log. It is safe for concurrent use; the
// underlying *sql.DB serializes writes itself.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the audit database under cfg.DataDir
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "abby.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS parameter_changes (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id     TEXT    NOT NULL,
			track_name     TEXT    NOT NULL,
			device_name    TEXT    NOT NULL,
			parameter_name TEXT    NOT NULL,
			old_value      REAL    NOT NULL,
			new_value      REAL    NOT NULL,
			min_value      REAL    NOT NULL,
			max_value      REAL    NOT NULL,
			sequence       INTEGER NOT NULL,
			occurred_at    TEXT    NOT NULL,
			recorded_at    TEXT    NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_param_changes_session ON parameter_changes(session_id, occurred_at DESC);

		CREATE TABLE IF NOT EXISTS tool_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id     TEXT    NOT NULL,
			tool_call_id   TEXT    NOT NULL,
			kind           TEXT    NOT NULL,
			tool_name      TEXT,
			arguments_json TEXT,
			result_content TEXT,
			is_error       INTEGER NOT NULL DEFAULT 0,
			recorded_at    TEXT    NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_tool_events_session ON tool_events(session_id, recorded_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tool_events_call     ON tool_events(tool_call_id);
	`)
	return err
}

// Record persists the events worth auditing: parameter_change,
// function_call, function_result, and approval_required. Every other
// event kind (text, end_message, indexing_status, error) is transient
// UI state and is not persisted.
func (s *Store) Record(sessionID string, ev events.Event) error {
	switch ev.Kind {
	case events.KindParameterChange:
		if ev.ParameterChange == nil {
			return nil
		}
		return s.recordParameterChange(sessionID, *ev.ParameterChange)
	case events.KindFunctionCall:
		return s.recordToolEvent(sessionID, ev.ToolCallID, "function_call", string(ev.ToolName), ev.Arguments, "", false)
	case events.KindFunctionResult:
		return s.recordToolEvent(sessionID, ev.ToolCallID, "function_result", "", nil, ev.ResultContent, ev.IsError)
	case events.KindApprovalRequired:
		for _, req := range ev.Approvals {
			for _, call := range req.Calls {
				if err := s.recordToolEvent(sessionID, call.ID, "approval_required", string(call.Name), call.Arguments, "", false); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return nil
	}
}

func (s *Store) recordParameterChange(sessionID string, c model.ParameterChange) error {
	_, err := s.db.Exec(
		`INSERT INTO parameter_changes
		 (session_id, track_name, device_name, parameter_name, old_value, new_value, min_value, max_value, sequence, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, c.TrackName, c.DeviceName, c.ParameterName, c.OldValue, c.NewValue, c.Min, c.Max, c.Sequence, c.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) recordToolEvent(sessionID, callID, kind, toolName string, arguments map[string]any, resultContent string, isError bool) error {
	var argsJSON sql.NullString
	if arguments != nil {
		data, err := json.Marshal(arguments)
		if err != nil {
			return fmt.Errorf("store: encode arguments: %w", err)
		}
		argsJSON = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO tool_events (session_id, tool_call_id, kind, tool_name, arguments_json, result_content, is_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, callID, kind, toolName, argsJSON, resultContent, isError,
	)
	return err
}

// RecentParameterChanges returns the most recent recorded parameter
// changes for a session, newest first, for operator diagnostics.
func (s *Store) RecentParameterChanges(sessionID string, limit int) ([]model.ParameterChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT track_name, device_name, parameter_name, old_value, new_value, min_value, max_value, sequence, occurred_at
		 FROM parameter_changes WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ParameterChange
	for rows.Next() {
		var c model.ParameterChange
		var occurredAt string
		if err := rows.Scan(&c.TrackName, &c.DeviceName, &c.ParameterName, &c.OldValue, &c.NewValue, &c.Min, &c.Max, &c.Sequence, &occurredAt); err != nil {
			return nil, err
		}
		c.Timestamp, _ = time.Parse(time.RFC3339Nano, occurredAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ToolEvent is one row of the tool_events audit trail.
type ToolEvent struct {
	SessionID     string
	ToolCallID    string
	Kind          string
	ToolName      string
	ResultContent string
	IsError       bool
	RecordedAt    string
}

// RecentToolEvents returns the most recent function_call/function_result/
// approval_required audit rows for a session, newest first.
func (s *Store) RecentToolEvents(sessionID string, limit int) ([]ToolEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT session_id, tool_call_id, kind, ifnull(tool_name, ''), ifnull(result_content, ''), is_error, recorded_at
		 FROM tool_events WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolEvent
	for rows.Next() {
		var e ToolEvent
		if err := rows.Scan(&e.SessionID, &e.ToolCallID, &e.Kind, &e.ToolName, &e.ResultContent, &e.IsError, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
