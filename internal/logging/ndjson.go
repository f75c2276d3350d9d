package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// NDJSONLog is the authoritative per-agent event log:
// logs/{agent}/{session-timestamp}/events.ndjson. One JSON object per line,
// append-only.
type NDJSONLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NDJSONRecord is one line of the agent event log.
type NDJSONRecord struct {
	Timestamp string         `json:"ts"`
	Agent     string         `json:"agent"`
	Type      string         `json:"type"`
	Level     string         `json:"level,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// OpenNDJSON opens (or creates) the event log for an agent session under
// logsDir. The session directory name is the session start time.
func OpenNDJSON(logsDir, agent string, startedAt time.Time) (*NDJSONLog, error) {
	dir := filepath.Join(logsDir, agent, startedAt.UTC().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, "events.ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &NDJSONLog{file: f, path: path}, nil
}

// Path returns the log file path.
func (l *NDJSONLog) Path() string { return l.path }

// Append writes one record. The timestamp is filled in when empty.
func (l *NDJSONLog) Append(rec NDJSONRecord) error {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event record: %w", err)
	}
	return nil
}

// Close closes the log file.
func (l *NDJSONLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
