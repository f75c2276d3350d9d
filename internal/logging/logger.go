// Package logging provides file-backed debug logging and the per-agent
// NDJSON event log.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// DebugLogger writes timestamped debug lines to a file. A zero-value logger
// is a no-op, so callers never need nil checks.
type DebugLogger struct {
	mu     sync.Mutex
	file   *os.File
	redact bool
}

// NewDebugLogger creates a logger writing to the specified path, creating
// parent directories as needed. An empty path returns a no-op logger.
func NewDebugLogger(logPath string, redactSecrets bool) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{redact: redactSecrets}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{file: f, redact: redactSecrets}
	l.Log("=== overstory log started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// NopLogger returns a no-op logger.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// secretPattern matches values assigned to token/key-ish environment names.
var secretPattern = regexp.MustCompile(`((?:API_KEY|AUTH_TOKEN|[A-Z0-9_]*_TOKEN|[A-Z0-9_]*_KEY)=)\S+`)

// Redact scrubs secret-bearing assignments from a line.
func Redact(s string) string {
	return secretPattern.ReplaceAllString(s, "${1}[redacted]")
}

// Log writes a timestamped message.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if l.redact {
		msg = Redact(msg)
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, msg)
	l.file.Sync()
}

// Close closes the log file. Safe on nil or no-op loggers.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
