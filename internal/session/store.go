// Package session provides the authoritative registry of live agents. The
// store is SQLite-backed (sessions.db) and shared between the orchestrator
// and the hook helpers running inside agent processes.
package session

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/internal/store"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Session is one running (or historical) agent session.
type Session struct {
	ID              string
	AgentName       string
	Capability      overstory.Capability
	WorktreePath    string
	BranchName      string
	TaskID          string
	TmuxSession     string
	State           overstory.AgentState
	PID             *int
	ParentAgent     *string
	Depth           int
	RunID           *string
	StartedAt       time.Time
	LastActivity    time.Time
	EscalationLevel int
	StalledSince    *time.Time
}

// Run groups the sessions of one swarm invocation.
type Run struct {
	ID                   string
	StartedAt            time.Time
	CompletedAt          *time.Time
	AgentCount           int
	CoordinatorSessionID string
	Status               string
}

// Store is the session registry.
type Store struct {
	db *store.DB
}

var migrations = []store.Migration{
	{Version: 1, SQL: `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_name TEXT NOT NULL,
	capability TEXT NOT NULL,
	worktree_path TEXT NOT NULL,
	branch_name TEXT NOT NULL,
	task_id TEXT NOT NULL,
	tmux_session TEXT NOT NULL,
	state TEXT NOT NULL,
	pid INTEGER,
	parent_agent TEXT,
	depth INTEGER NOT NULL DEFAULT 0,
	run_id TEXT,
	started_at TEXT NOT NULL,
	last_activity TEXT NOT NULL,
	escalation_level INTEGER NOT NULL DEFAULT 0,
	stalled_since TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_agent_name ON sessions(agent_name);
CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_sessions_task_id ON sessions(task_id);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	agent_count INTEGER NOT NULL DEFAULT 0,
	coordinator_session_id TEXT,
	status TEXT NOT NULL DEFAULT 'active'
);
`},
}

// Open opens (and migrates) the session store at path.
func Open(path string) (*Store, error) {
	db, err := store.Open(path, migrations)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

const sessionColumns = `id, agent_name, capability, worktree_path, branch_name, task_id,
	tmux_session, state, pid, parent_agent, depth, run_id, started_at,
	last_activity, escalation_level, stalled_since`

// Upsert inserts or replaces a session by id. It rejects a duplicate agent
// name when a different non-terminal session already uses it.
func (s *Store) Upsert(sess *Session) error {
	if sess.Depth == 0 && sess.ParentAgent != nil {
		return oops.New(oops.CodeValidation, "depth 0 requires a nil parent").With("agent", sess.AgentName)
	}
	if sess.Depth > 0 && sess.ParentAgent == nil {
		return oops.New(oops.CodeValidation, "depth %d requires a parent", sess.Depth).With("agent", sess.AgentName)
	}

	peer, err := s.GetActiveByName(sess.AgentName)
	if err != nil {
		return err
	}
	if peer != nil && peer.ID != sess.ID {
		return oops.New(oops.CodeAgent, "agent name %q already in use by an active session", sess.AgentName).
			With("agent", sess.AgentName).
			WithHint("stop the existing agent or pick another name")
	}

	var stalledSince any
	if sess.StalledSince != nil {
		stalledSince = overstory.Timestamp(*sess.StalledSince)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.AgentName, string(sess.Capability), sess.WorktreePath,
		sess.BranchName, sess.TaskID, sess.TmuxSession, string(sess.State),
		sess.PID, sess.ParentAgent, sess.Depth, sess.RunID,
		overstory.Timestamp(sess.StartedAt), overstory.Timestamp(sess.LastActivity),
		sess.EscalationLevel, stalledSince)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetByName returns the most recent session for an agent name, or nil.
func (s *Store) GetByName(name string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE agent_name = ? ORDER BY started_at DESC LIMIT 1
	`, name)
	return scanSession(row)
}

// GetActiveByName returns the non-terminal session for an agent name, or nil.
func (s *Store) GetActiveByName(name string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE agent_name = ? AND state IN ('booting','working','stalled')
		ORDER BY started_at DESC LIMIT 1
	`, name)
	return scanSession(row)
}

// GetActive returns all sessions in a non-terminal state.
func (s *Store) GetActive() ([]*Session, error) {
	rows, err := s.db.Query(`
		SELECT ` + sessionColumns + ` FROM sessions
		WHERE state IN ('booting','working','stalled')
		ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetAll returns every session row.
func (s *Store) GetAll() ([]*Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// UpdateState transitions the named agent's session to newState. Terminal
// sessions are never mutated. Entering stalled records stalled-since;
// leaving it clears the marker.
func (s *Store) UpdateState(name string, newState overstory.AgentState) error {
	if !newState.Valid() {
		return oops.New(oops.CodeValidation, "unknown state %q", string(newState))
	}

	sess, err := s.GetByName(name)
	if err != nil {
		return err
	}
	if sess == nil {
		return oops.New(oops.CodeAgent, "no session for agent %q", name).With("agent", name)
	}
	if sess.State.Terminal() {
		return oops.New(oops.CodeAgent, "session for %q is already %s", name, sess.State).
			With("agent", name).With("state", string(sess.State))
	}

	var stalledSince any
	if newState == overstory.StateStalled {
		stalledSince = overstory.Timestamp(sess.LastActivity)
	}
	_, err = s.db.Exec(`
		UPDATE sessions SET state = ?, stalled_since = ? WHERE id = ?
	`, string(newState), stalledSince, sess.ID)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	return nil
}

// UpdateLastActivity advances the named agent's last-activity timestamp.
// The timestamp never moves backward.
func (s *Store) UpdateLastActivity(name string, ts time.Time) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET last_activity = ?
		WHERE agent_name = ? AND state IN ('booting','working','stalled')
		  AND last_activity < ?
	`, overstory.Timestamp(ts), name, overstory.Timestamp(ts))
	if err != nil {
		return fmt.Errorf("update last activity: %w", err)
	}
	return nil
}

// CountActive returns the number of non-terminal sessions.
func (s *Store) CountActive() (int, error) {
	var n int
	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM sessions WHERE state IN ('booting','working','stalled')
	`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

// CountByRun returns the number of sessions recorded for a run.
func (s *Store) CountByRun(runID string) (int, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE run_id = ?`, runID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count run sessions: %w", err)
	}
	return n, nil
}

// ActiveTaskHolder returns the active session holding taskID, or nil.
func (s *Store) ActiveTaskHolder(taskID string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE task_id = ? AND state IN ('booting','working','stalled')
		ORDER BY started_at LIMIT 1
	`, taskID)
	return scanSession(row)
}

// Delete removes a session row by id.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	sess, err := scanSessionFrom(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

func scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		sess, err := scanSessionFrom(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSessionFrom(scan func(...any) error) (*Session, error) {
	var sess Session
	var capability, state, startedAt, lastActivity string
	var pid sql.NullInt64
	var parent, runID, stalledSince sql.NullString

	err := scan(&sess.ID, &sess.AgentName, &capability, &sess.WorktreePath,
		&sess.BranchName, &sess.TaskID, &sess.TmuxSession, &state, &pid,
		&parent, &sess.Depth, &runID, &startedAt, &lastActivity,
		&sess.EscalationLevel, &stalledSince)
	if err != nil {
		return nil, err
	}

	sess.Capability = overstory.Capability(capability)
	sess.State = overstory.AgentState(state)
	if pid.Valid {
		p := int(pid.Int64)
		sess.PID = &p
	}
	if parent.Valid {
		sess.ParentAgent = &parent.String
	}
	if runID.Valid {
		sess.RunID = &runID.String
	}
	sess.StartedAt, _ = overstory.ParseTimestamp(startedAt)
	sess.LastActivity, _ = overstory.ParseTimestamp(lastActivity)
	if stalledSince.Valid {
		if t, err := overstory.ParseTimestamp(stalledSince.String); err == nil {
			sess.StalledSince = &t
		}
	}
	return &sess, nil
}

// Run sub-API.

// CreateRun records a new run as active.
func (s *Store) CreateRun(id, coordinatorSessionID string) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, coordinator_session_id, status)
		VALUES (?, ?, ?, 'active')
	`, id, overstory.Timestamp(time.Now()), coordinatorSessionID)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// CompleteRun marks a run completed and stamps its agent count.
func (s *Store) CompleteRun(id string) error {
	var count int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE run_id = ?`, id)
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("count run sessions: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE runs SET completed_at = ?, agent_count = ?, status = 'completed'
		WHERE id = ?
	`, overstory.Timestamp(time.Now()), count, id)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return oops.New(oops.CodeValidation, "no run %q", id)
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, completed_at, agent_count, coordinator_session_id, status
		FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var startedAt string
		var completedAt, coordinator sql.NullString
		if err := rows.Scan(&r.ID, &startedAt, &completedAt, &r.AgentCount, &coordinator, &r.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = overstory.ParseTimestamp(startedAt)
		if completedAt.Valid {
			if t, err := overstory.ParseTimestamp(completedAt.String); err == nil {
				r.CompletedAt = &t
			}
		}
		if coordinator.Valid {
			r.CoordinatorSessionID = coordinator.String
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// CurrentRun reads the active run id from the current-run file. Missing file
// means no current run.
func CurrentRun(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read current run: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetCurrentRun writes (or with "" clears) the current-run file.
func SetCurrentRun(path, runID string) error {
	if runID == "" {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear current run: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(runID+"\n"), 0644); err != nil {
		return fmt.Errorf("write current run: %w", err)
	}
	return nil
}
