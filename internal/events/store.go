// Package events provides the append-only chronological record of lifecycle,
// tool, mail, and error events. Rows are never updated; trace, feed, and
// logs commands are all views over this store.
package events

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sprinteroz/overstory/internal/store"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Event is one stored event.
type Event struct {
	ID        int64
	RunID     string
	AgentName string
	SessionID *string
	Type      overstory.EventType
	ToolName  string
	ToolArgs  string
	ToolDurMs *int64
	Level     overstory.EventLevel
	Data      string // opaque JSON
	CreatedAt time.Time
}

// Query filters a timeline read. Zero values mean "no bound".
type Query struct {
	Since time.Time
	Until time.Time
	// AfterID bounds the read to events inserted after the given id, so
	// followers poll incrementally instead of rescanning the table.
	AfterID int64
	Limit   int
}

// Store is the event log.
type Store struct {
	db *store.DB
}

var migrations = []store.Migration{
	{Version: 1, SQL: `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	agent_name TEXT NOT NULL,
	session_id TEXT,
	event_type TEXT NOT NULL,
	tool_name TEXT,
	tool_args TEXT,
	tool_duration_ms INTEGER,
	level TEXT NOT NULL DEFAULT 'info',
	data TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_name, created_at);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
`},
}

// Open opens (and migrates) the event store at path.
func Open(path string) (*Store, error) {
	db, err := store.Open(path, migrations)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends an event, assigning its id and timestamp. The stored event
// is returned with both filled in.
func (s *Store) Insert(e *Event) (*Event, error) {
	if e.Level == "" {
		e.Level = overstory.LevelInfo
	}
	e.CreatedAt = time.Now()

	res, err := s.db.Exec(`
		INSERT INTO events (run_id, agent_name, session_id, event_type,
			tool_name, tool_args, tool_duration_ms, level, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullable(e.RunID), e.AgentName, e.SessionID, string(e.Type),
		nullable(e.ToolName), nullable(e.ToolArgs), e.ToolDurMs,
		string(e.Level), nullable(e.Data), overstory.Timestamp(e.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	e.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	return e, nil
}

const eventColumns = `id, run_id, agent_name, session_id, event_type,
	tool_name, tool_args, tool_duration_ms, level, data, created_at`

// GetByAgent returns events for one agent, chronological, ties broken by id.
func (s *Store) GetByAgent(agent string, q Query) ([]*Event, error) {
	sqlStr := `SELECT ` + eventColumns + ` FROM events WHERE agent_name = ?`
	args := []any{agent}
	sqlStr, args = applyQuery(sqlStr, args, q)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("events by agent: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetByRun returns events for one run, chronological, ties broken by id.
func (s *Store) GetByRun(runID string, q Query) ([]*Event, error) {
	sqlStr := `SELECT ` + eventColumns + ` FROM events WHERE run_id = ?`
	args := []any{runID}
	sqlStr, args = applyQuery(sqlStr, args, q)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("events by run: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LastID returns the highest assigned event id, or 0 for an empty log.
// Followers start from here and poll with AfterID.
func (s *Store) LastID() (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, fmt.Errorf("last event id: %w", err)
	}
	return id.Int64, nil
}

// GetTimeline returns the global timeline, chronological, ties broken by id.
func (s *Store) GetTimeline(q Query) ([]*Event, error) {
	sqlStr := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []any
	sqlStr, args = applyQuery(sqlStr, args, q)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("event timeline: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func applyQuery(sqlStr string, args []any, q Query) (string, []any) {
	if !q.Since.IsZero() {
		sqlStr += " AND created_at >= ?"
		args = append(args, overstory.Timestamp(q.Since))
	}
	if !q.Until.IsZero() {
		sqlStr += " AND created_at <= ?"
		args = append(args, overstory.Timestamp(q.Until))
	}
	if q.AfterID > 0 {
		sqlStr += " AND id > ?"
		args = append(args, q.AfterID)
	}
	sqlStr += " ORDER BY created_at, id"
	if q.Limit > 0 {
		sqlStr += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return sqlStr, args
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var e Event
		var runID, sessionID, toolName, toolArgs, data sql.NullString
		var toolDur sql.NullInt64
		var level, createdAt string
		err := rows.Scan(&e.ID, &runID, &e.AgentName, &sessionID, &e.Type,
			&toolName, &toolArgs, &toolDur, &level, &data, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if runID.Valid {
			e.RunID = runID.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if toolName.Valid {
			e.ToolName = toolName.String
		}
		if toolArgs.Valid {
			e.ToolArgs = toolArgs.String
		}
		if toolDur.Valid {
			e.ToolDurMs = &toolDur.Int64
		}
		if data.Valid {
			e.Data = data.String
		}
		e.Level = overstory.EventLevel(level)
		e.CreatedAt, _ = overstory.ParseTimestamp(createdAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
