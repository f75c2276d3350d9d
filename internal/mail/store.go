// Package mail provides durable inter-agent messaging: an SQLite-backed
// message table with per-recipient insertion-order delivery, group and
// broadcast addressing, priority nudge markers, and the hook-facing inbox
// injection flow.
package mail

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/internal/store"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Message is one mail row. A broadcast fans out into one row per recipient.
type Message struct {
	ID        string
	From      string
	To        string
	Subject   string
	Body      string
	Type      overstory.MailType
	Priority  overstory.Priority
	ThreadID  string
	Payload   string // opaque JSON, decoded by consumers
	Read      bool
	CreatedAt time.Time
}

// ListFilter selects messages for List.
type ListFilter struct {
	From   string
	To     string
	Unread bool
	Limit  int
}

// PurgeFilter selects messages for bulk deletion. Exactly one of the fields
// should be meaningful; All wins over the others.
type PurgeFilter struct {
	All         bool
	OlderThanMs int64
	Agent       string
}

// Store is the mail table.
type Store struct {
	db *store.DB
}

var migrations = []store.Migration{
	{Version: 1, SQL: `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	from_agent TEXT NOT NULL,
	to_agent TEXT NOT NULL,
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	type TEXT NOT NULL,
	priority TEXT NOT NULL,
	thread_id TEXT,
	payload TEXT,
	read INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_to ON messages(to_agent, read, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_agent, created_at);
`},
}

// Open opens (and migrates) the mail store at path.
func Open(path string) (*Store, error) {
	db, err := store.Open(path, migrations)
	if err != nil {
		return nil, fmt.Errorf("open mail store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

const messageColumns = `id, from_agent, to_agent, subject, body, type, priority,
	thread_id, payload, read, created_at`

// insert writes one message row, filling in id and created-at when empty.
func (s *Store) insert(m *Message) (string, error) {
	if m.From == "" || m.To == "" {
		return "", oops.New(oops.CodeMail, "mail requires both from and to").
			With("from", m.From).With("to", m.To)
	}
	if !m.Type.Valid() {
		return "", oops.New(oops.CodeMail, "unknown mail type %q", string(m.Type))
	}
	if !m.Priority.Valid() {
		return "", oops.New(oops.CodeMail, "unknown priority %q", string(m.Priority))
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.From, m.To, m.Subject, m.Body, string(m.Type), string(m.Priority),
		nullable(m.ThreadID), nullable(m.Payload), boolInt(m.Read),
		overstory.Timestamp(m.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return m.ID, nil
}

// Get returns one message by id, or nil.
func (s *Store) Get(id string) (*Message, error) {
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessageFrom(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// Unread returns the unread messages addressed to agent, strictly in
// insertion order. Timestamps only carry millisecond precision, so ordering
// rides on rowid instead.
func (s *Store) Unread(agent string) ([]*Message, error) {
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE to_agent = ? AND read = 0
		ORDER BY rowid
	`, agent)
	if err != nil {
		return nil, fmt.Errorf("unread messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkRead marks one message read. Idempotent: a second call reports
// alreadyRead=true and changes nothing.
func (s *Store) MarkRead(id string) (alreadyRead bool, err error) {
	res, err := s.db.Exec(`UPDATE messages SET read = 1 WHERE id = ? AND read = 0`, id)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark read rows: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	m, err := s.Get(id)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, oops.New(oops.CodeMail, "no message %q", id)
	}
	return true, nil
}

// markAllRead marks the given message ids read in one transaction.
func (s *Store) markAllRead(ids []string) error {
	return s.db.Transaction(func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.Exec(`UPDATE messages SET read = 1 WHERE id = ?`, id); err != nil {
				return fmt.Errorf("mark read %s: %w", id, err)
			}
		}
		return nil
	})
}

// List returns messages matching the filter, newest first.
func (s *Store) List(f ListFilter) ([]*Message, error) {
	sqlStr := `SELECT ` + messageColumns + ` FROM messages WHERE 1=1`
	var args []any
	if f.From != "" {
		sqlStr += " AND from_agent = ?"
		args = append(args, f.From)
	}
	if f.To != "" {
		sqlStr += " AND to_agent = ?"
		args = append(args, f.To)
	}
	if f.Unread {
		sqlStr += " AND read = 0"
	}
	sqlStr += " ORDER BY rowid DESC"
	if f.Limit > 0 {
		sqlStr += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Purge bulk-deletes messages per the filter and returns the count removed.
func (s *Store) Purge(f PurgeFilter) (int64, error) {
	var res sql.Result
	var err error
	switch {
	case f.All:
		res, err = s.db.Exec(`DELETE FROM messages`)
	case f.OlderThanMs > 0:
		cutoff := time.Now().Add(-time.Duration(f.OlderThanMs) * time.Millisecond)
		res, err = s.db.Exec(`DELETE FROM messages WHERE created_at < ?`, overstory.Timestamp(cutoff))
	case f.Agent != "":
		res, err = s.db.Exec(`DELETE FROM messages WHERE to_agent = ? OR from_agent = ?`, f.Agent, f.Agent)
	default:
		return 0, oops.New(oops.CodeValidation, "purge requires --all, --older-than, or --agent")
	}
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows: %w", err)
	}
	return n, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var msgs []*Message
	for rows.Next() {
		m, err := scanMessageFrom(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessageFrom(scan func(...any) error) (*Message, error) {
	var m Message
	var mtype, priority, createdAt string
	var threadID, payload sql.NullString
	var read int
	err := scan(&m.ID, &m.From, &m.To, &m.Subject, &m.Body, &mtype, &priority,
		&threadID, &payload, &read, &createdAt)
	if err != nil {
		return nil, err
	}
	m.Type = overstory.MailType(mtype)
	m.Priority = overstory.Priority(priority)
	if threadID.Valid {
		m.ThreadID = threadID.String
	}
	if payload.Valid {
		m.Payload = payload.String
	}
	m.Read = read != 0
	m.CreatedAt, _ = overstory.ParseTimestamp(createdAt)
	return &m, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
