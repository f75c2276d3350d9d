package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRedact(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			"env ANTHROPIC_API_KEY=sk-ant-12345 set",
			"env ANTHROPIC_API_KEY=[redacted] set",
		},
		{
			"ZAI_API_KEY=abc ANTHROPIC_AUTH_TOKEN=def",
			"ZAI_API_KEY=[redacted] ANTHROPIC_AUTH_TOKEN=[redacted]",
		},
		{
			"GITHUB_TOKEN=ghp_xyz",
			"GITHUB_TOKEN=[redacted]",
		},
		{
			"no secrets on this line",
			"no secrets on this line",
		},
		{
			"MAX_DEPTH=2 is not a secret name",
			"MAX_DEPTH=2 is not a secret name",
		},
	}
	for _, tc := range cases {
		if got := Redact(tc.in); got != tc.want {
			t.Errorf("Redact(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDebugLoggerWritesAndRedacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	l, err := NewDebugLogger(path, true)
	if err != nil {
		t.Fatal(err)
	}
	l.Log("spawning with API_KEY=secret123")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret123") {
		t.Error("secret leaked to log")
	}
	if !strings.Contains(string(data), "API_KEY=[redacted]") {
		t.Errorf("log:\n%s", data)
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Log("goes nowhere %d", 1)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	var nilLogger *DebugLogger
	nilLogger.Log("also fine")
	if err := nilLogger.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNDJSONAppend(t *testing.T) {
	logsDir := t.TempDir()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	l, err := OpenNDJSON(logsDir, "builder-1", started)
	if err != nil {
		t.Fatal(err)
	}

	wantPath := filepath.Join(logsDir, "builder-1", "20260301-100000", "events.ndjson")
	if l.Path() != wantPath {
		t.Errorf("path = %s", l.Path())
	}

	if err := l.Append(NDJSONRecord{Agent: "builder-1", Type: "tool_start", Message: "Bash"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(NDJSONRecord{Agent: "builder-1", Type: "tool_end", Data: map[string]any{"exit": 0.0}}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(wantPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var recs []NDJSONRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec NDJSONRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		recs = append(recs, rec)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	if recs[0].Type != "tool_start" || recs[0].Timestamp == "" {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].Data["exit"] != 0.0 {
		t.Errorf("second record data = %v", recs[1].Data)
	}
}
