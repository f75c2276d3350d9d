// Package mergeq provides the FIFO queue of completed branches awaiting
// merge. Entries are ordered by monotonic insertion id; the resolver pops
// them in order and reports status transitions back through UpdateStatus.
package mergeq

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/internal/store"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Entry is one branch awaiting (or having finished) merge.
type Entry struct {
	ID            int64
	BranchName    string
	TaskID        string
	AgentName     string
	FilesModified []string
	EnqueuedAt    time.Time
	Status        overstory.MergeStatus
	ResolvedTier  *overstory.Tier
}

// Queue is the merge queue store.
type Queue struct {
	db *store.DB
}

var migrations = []store.Migration{
	{Version: 1, SQL: `
CREATE TABLE IF NOT EXISTS merge_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	branch_name TEXT NOT NULL,
	task_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	files_modified TEXT NOT NULL DEFAULT '[]',
	enqueued_at TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending','merging','merged','conflict','failed')),
	resolved_tier TEXT
		CHECK (resolved_tier IS NULL OR resolved_tier IN ('clean-merge','auto-resolve','ai-resolve','reimagine'))
);

CREATE INDEX IF NOT EXISTS idx_merge_queue_status ON merge_queue(status);
CREATE INDEX IF NOT EXISTS idx_merge_queue_branch ON merge_queue(branch_name);
`},
}

// Open opens (and migrates) the merge queue at path. Databases created by
// older releases used a bead_id column where task_id now lives; it is
// renamed in place.
func Open(path string) (*Queue, error) {
	db, err := store.Open(path, migrations)
	if err != nil {
		return nil, fmt.Errorf("open merge queue: %w", err)
	}

	q := &Queue{db: db}
	if err := q.migrateLegacyColumn(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// migrateLegacyColumn renames bead_id to task_id when only the former
// exists; otherwise it is a no-op.
func (q *Queue) migrateLegacyColumn() error {
	hasBead, err := q.db.ColumnExists("merge_queue", "bead_id")
	if err != nil {
		return err
	}
	hasTask, err := q.db.ColumnExists("merge_queue", "task_id")
	if err != nil {
		return err
	}
	if !hasBead || hasTask {
		return nil
	}
	if _, err := q.db.Exec(`ALTER TABLE merge_queue RENAME COLUMN bead_id TO task_id`); err != nil {
		return fmt.Errorf("rename bead_id: %w", err)
	}
	return nil
}

// Close closes the queue.
func (q *Queue) Close() error {
	return q.db.Close()
}

const entryColumns = `id, branch_name, task_id, agent_name, files_modified,
	enqueued_at, status, resolved_tier`

// Enqueue appends a pending entry and returns it with its insertion id.
func (q *Queue) Enqueue(branchName, taskID, agentName string, filesModified []string) (*Entry, error) {
	if branchName == "" {
		return nil, oops.New(oops.CodeValidation, "branch name required")
	}
	if filesModified == nil {
		filesModified = []string{}
	}
	files, err := json.Marshal(filesModified)
	if err != nil {
		return nil, fmt.Errorf("marshal files: %w", err)
	}

	now := time.Now()
	res, err := q.db.Exec(`
		INSERT INTO merge_queue (branch_name, task_id, agent_name, files_modified, enqueued_at, status)
		VALUES (?, ?, ?, ?, ?, 'pending')
	`, branchName, taskID, agentName, string(files), overstory.Timestamp(now))
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", branchName, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue id: %w", err)
	}
	return &Entry{
		ID:            id,
		BranchName:    branchName,
		TaskID:        taskID,
		AgentName:     agentName,
		FilesModified: filesModified,
		EnqueuedAt:    now,
		Status:        overstory.MergePending,
	}, nil
}

// Peek returns the lowest-id pending entry without removing it, or nil.
func (q *Queue) Peek() (*Entry, error) {
	row := q.db.QueryRow(`
		SELECT ` + entryColumns + ` FROM merge_queue
		WHERE status = 'pending' ORDER BY id LIMIT 1
	`)
	e, err := scanEntryFrom(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek merge queue: %w", err)
	}
	return e, nil
}

// Dequeue claims the lowest-id pending entry by marking it merging, or
// returns nil when the queue has no pending work. The row stays in the table
// so UpdateStatus can record the final outcome against it.
func (q *Queue) Dequeue() (*Entry, error) {
	e, err := q.Peek()
	if err != nil || e == nil {
		return e, err
	}
	if _, err := q.db.Exec(`UPDATE merge_queue SET status = 'merging' WHERE id = ?`, e.ID); err != nil {
		return nil, fmt.Errorf("dequeue %d: %w", e.ID, err)
	}
	e.Status = overstory.MergeMerging
	return e, nil
}

// List returns entries, optionally filtered by status, in insertion order.
func (q *Queue) List(status overstory.MergeStatus) ([]*Entry, error) {
	sqlStr := `SELECT ` + entryColumns + ` FROM merge_queue`
	var args []any
	if status != "" {
		sqlStr += ` WHERE status = ?`
		args = append(args, string(status))
	}
	sqlStr += ` ORDER BY id`

	rows, err := q.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list merge queue: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntryFrom(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan merge entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateStatus transitions the entry for branchName. Fails with a "no entry"
// error when no row exists for that branch.
func (q *Queue) UpdateStatus(branchName string, status overstory.MergeStatus, tier *overstory.Tier) error {
	if !status.Valid() {
		return oops.New(oops.CodeValidation, "unknown merge status %q", string(status))
	}

	var tierVal any
	if tier != nil {
		tierVal = string(*tier)
	}
	res, err := q.db.Exec(`
		UPDATE merge_queue SET status = ?, resolved_tier = ? WHERE branch_name = ?
	`, string(status), tierVal, branchName)
	if err != nil {
		return fmt.Errorf("update status %s: %w", branchName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status rows: %w", err)
	}
	if n == 0 {
		return oops.New(oops.CodeMerge, "no entry for branch %q", branchName).
			With("branch", branchName)
	}
	return nil
}

// GetByBranch returns the entry for branchName, or nil.
func (q *Queue) GetByBranch(branchName string) (*Entry, error) {
	row := q.db.QueryRow(`
		SELECT `+entryColumns+` FROM merge_queue WHERE branch_name = ? ORDER BY id DESC LIMIT 1
	`, branchName)
	e, err := scanEntryFrom(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get merge entry: %w", err)
	}
	return e, nil
}

func scanEntryFrom(scan func(...any) error) (*Entry, error) {
	var e Entry
	var files, enqueuedAt, status string
	var tier sql.NullString
	err := scan(&e.ID, &e.BranchName, &e.TaskID, &e.AgentName, &files,
		&enqueuedAt, &status, &tier)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(files), &e.FilesModified); err != nil {
		return nil, fmt.Errorf("parse files_modified: %w", err)
	}
	e.EnqueuedAt, _ = overstory.ParseTimestamp(enqueuedAt)
	e.Status = overstory.MergeStatus(status)
	if tier.Valid {
		t := overstory.Tier(tier.String)
		e.ResolvedTier = &t
	}
	return &e, nil
}
