package lifecycle

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sprinteroz/overstory/internal/oops"
)

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cp := &Checkpoint{
		AgentName:     "builder-1",
		TaskID:        "t-1",
		Branch:        "overstory/builder-1/t-1",
		Summary:       "store layer done, wiring the client",
		ModifiedFiles: []string{"internal/store/db.go", "internal/store/db_test.go"},
		PendingWork:   []string{"client retries", "integration test"},
		Domains:       []string{"architecture"},
	}
	if err := SaveCheckpoint(dir, cp); err != nil {
		t.Fatal(err)
	}
	if cp.CreatedAt == "" {
		t.Error("save should stamp createdAt")
	}

	loaded, err := LoadCheckpoint(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded, cp) {
		t.Errorf("loaded = %+v, want %+v", loaded, cp)
	}
}

func TestCheckpointMissing(t *testing.T) {
	cp, err := LoadCheckpoint(t.TempDir())
	if err != nil || cp != nil {
		t.Errorf("LoadCheckpoint on empty dir = (%v, %v), want (nil, nil)", cp, err)
	}
}

func TestCheckpointValidation(t *testing.T) {
	err := SaveCheckpoint(t.TempDir(), &Checkpoint{AgentName: "a"})
	if !oops.Is(err, oops.CodeLifecycle) {
		t.Errorf("err = %v, want LIFECYCLE", err)
	}
}

func TestClearCheckpoint(t *testing.T) {
	dir := t.TempDir()
	if err := SaveCheckpoint(dir, &Checkpoint{AgentName: "a", TaskID: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := ClearCheckpoint(dir); err != nil {
		t.Fatal(err)
	}
	if cp, _ := LoadCheckpoint(dir); cp != nil {
		t.Error("checkpoint survived clear")
	}
	// Clearing twice is fine.
	if err := ClearCheckpoint(dir); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestHandoffsPathPerAgent(t *testing.T) {
	agentDir := filepath.Join("/state", "agents", "builder-1")
	want := filepath.Join(agentDir, "handoffs.json")
	if got := HandoffsPath(agentDir); got != want {
		t.Errorf("HandoffsPath = %s, want %s", got, want)
	}

	// Logs in two agent dirs never see each other.
	root := t.TempDir()
	pathA := HandoffsPath(filepath.Join(root, "agents", "builder-1"))
	pathB := HandoffsPath(filepath.Join(root, "agents", "builder-2"))
	if _, err := OpenHandoff(pathA, Handoff{FromSession: "s1", AgentName: "builder-1", TaskID: "t-1"}); err != nil {
		t.Fatal(err)
	}
	handoffs, err := LoadHandoffs(pathB)
	if err != nil {
		t.Fatal(err)
	}
	if len(handoffs) != 0 {
		t.Errorf("builder-2 log = %+v, want empty", handoffs)
	}
}

func TestHandoffLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoffs.json")

	h, err := OpenHandoff(path, Handoff{
		FromSession: "sess-1",
		AgentName:   "builder-1",
		TaskID:      "t-1",
		Reason:      "stalled past threshold",
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.ID == "" || !h.Pending() {
		t.Fatalf("opened handoff = %+v", h)
	}

	pending, err := PendingHandoffFor(path, "builder-1")
	if err != nil || pending == nil || pending.ID != h.ID {
		t.Fatalf("PendingHandoffFor = (%v, %v)", pending, err)
	}
	if other, _ := PendingHandoffFor(path, "builder-2"); other != nil {
		t.Error("pending handoff leaked to another agent")
	}

	if err := CompleteHandoff(path, h.ID, "sess-2"); err != nil {
		t.Fatal(err)
	}

	handoffs, err := LoadHandoffs(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(handoffs) != 1 {
		t.Fatalf("handoff count = %d", len(handoffs))
	}
	done := handoffs[0]
	if done.Pending() || *done.ToSession != "sess-2" || done.CompletedAt == nil {
		t.Errorf("completed handoff = %+v", done)
	}

	if pending, _ := PendingHandoffFor(path, "builder-1"); pending != nil {
		t.Error("completed handoff still reported pending")
	}

	// Completing twice is rejected.
	if err := CompleteHandoff(path, h.ID, "sess-3"); !oops.Is(err, oops.CodeLifecycle) {
		t.Errorf("double complete = %v, want LIFECYCLE", err)
	}
	// Unknown ids are rejected.
	if err := CompleteHandoff(path, "nope", "sess-3"); !oops.Is(err, oops.CodeLifecycle) {
		t.Errorf("unknown id = %v, want LIFECYCLE", err)
	}
}

func TestHandoffAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoffs.json")

	first, err := OpenHandoff(path, Handoff{FromSession: "s1", AgentName: "a", TaskID: "t-1"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := OpenHandoff(path, Handoff{FromSession: "s2", AgentName: "a", TaskID: "t-2"})
	if err != nil {
		t.Fatal(err)
	}

	handoffs, err := LoadHandoffs(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(handoffs) != 2 {
		t.Fatalf("handoff count = %d, want 2", len(handoffs))
	}
	if handoffs[0].ID != first.ID || handoffs[1].ID != second.ID {
		t.Error("handoff order not preserved")
	}
}
