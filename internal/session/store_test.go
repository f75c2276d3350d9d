package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id, name string) *Session {
	parent := "lead-1"
	now := time.Now()
	return &Session{
		ID:           id,
		AgentName:    name,
		Capability:   overstory.CapBuilder,
		WorktreePath: "/tmp/wt/" + name,
		BranchName:   overstory.BranchName(name, "t-1"),
		TaskID:       "t-1",
		TmuxSession:  overstory.SessionName("proj", name),
		State:        overstory.StateBooting,
		ParentAgent:  &parent,
		Depth:        1,
		StartedAt:    now,
		LastActivity: now,
	}
}

func TestUpsertAndGetByName(t *testing.T) {
	s := openStore(t)

	sess := testSession("s1", "builder-1")
	if err := s.Upsert(sess); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetByName("builder-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "s1" {
		t.Fatalf("GetByName = %+v", got)
	}
	if got.Capability != overstory.CapBuilder || got.Depth != 1 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.ParentAgent == nil || *got.ParentAgent != "lead-1" {
		t.Errorf("parent = %v", got.ParentAgent)
	}
}

func TestUpsertDepthParentInvariant(t *testing.T) {
	s := openStore(t)

	orphan := testSession("s1", "builder-1")
	orphan.ParentAgent = nil
	err := s.Upsert(orphan)
	if oops.CodeOf(err) != oops.CodeValidation {
		t.Errorf("depth 1 without parent: %v", err)
	}

	root := testSession("s2", "lead-1")
	root.Depth = 0
	err = s.Upsert(root)
	if oops.CodeOf(err) != oops.CodeValidation {
		t.Errorf("depth 0 with parent: %v", err)
	}

	root.ParentAgent = nil
	if err := s.Upsert(root); err != nil {
		t.Errorf("root session rejected: %v", err)
	}
}

func TestUpsertRejectsDuplicateActiveName(t *testing.T) {
	s := openStore(t)

	if err := s.Upsert(testSession("s1", "builder-1")); err != nil {
		t.Fatal(err)
	}

	dup := testSession("s2", "builder-1")
	err := s.Upsert(dup)
	if oops.CodeOf(err) != oops.CodeAgent {
		t.Fatalf("duplicate active name: %v", err)
	}

	// Re-upserting the same session id is the update path, not a duplicate.
	same := testSession("s1", "builder-1")
	same.State = overstory.StateWorking
	if err := s.Upsert(same); err != nil {
		t.Fatalf("self re-upsert: %v", err)
	}

	// Once the holder is terminal the name is free again.
	if err := s.UpdateState("builder-1", overstory.StateCompleted); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(dup); err != nil {
		t.Errorf("name reuse after completion: %v", err)
	}
}

func TestUpdateStateTerminalGuard(t *testing.T) {
	s := openStore(t)

	if err := s.Upsert(testSession("s1", "builder-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateState("builder-1", overstory.StateCompleted); err != nil {
		t.Fatal(err)
	}

	err := s.UpdateState("builder-1", overstory.StateWorking)
	if oops.CodeOf(err) != oops.CodeAgent {
		t.Errorf("terminal session mutated: %v", err)
	}

	if err := s.UpdateState("ghost", overstory.StateWorking); oops.CodeOf(err) != oops.CodeAgent {
		t.Errorf("unknown agent: %v", err)
	}
	if err := s.UpdateState("builder-1", overstory.AgentState("melted")); oops.CodeOf(err) != oops.CodeValidation {
		t.Errorf("invalid state: %v", err)
	}
}

func TestUpdateStateStalledStamps(t *testing.T) {
	s := openStore(t)

	sess := testSession("s1", "builder-1")
	if err := s.Upsert(sess); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateState("builder-1", overstory.StateStalled); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetByName("builder-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.StalledSince == nil {
		t.Fatal("stalled_since not stamped")
	}
	if !got.StalledSince.Equal(got.LastActivity) {
		t.Errorf("stalled_since = %v, want last activity %v", got.StalledSince, got.LastActivity)
	}

	// Recovering clears the marker.
	if err := s.UpdateState("builder-1", overstory.StateWorking); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetByName("builder-1")
	if got.StalledSince != nil {
		t.Errorf("stalled_since survived recovery: %v", got.StalledSince)
	}
}

func TestUpdateLastActivityMonotonic(t *testing.T) {
	s := openStore(t)

	sess := testSession("s1", "builder-1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess.StartedAt = base
	sess.LastActivity = base
	if err := s.Upsert(sess); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateLastActivity("builder-1", base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetByName("builder-1")
	if !got.LastActivity.Equal(base.Add(time.Minute)) {
		t.Fatalf("last activity = %v", got.LastActivity)
	}

	// An earlier timestamp never rewinds the clock.
	if err := s.UpdateLastActivity("builder-1", base.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetByName("builder-1")
	if !got.LastActivity.Equal(base.Add(time.Minute)) {
		t.Errorf("last activity rewound to %v", got.LastActivity)
	}
}

func TestGetActiveExcludesTerminal(t *testing.T) {
	s := openStore(t)

	if err := s.Upsert(testSession("s1", "builder-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(testSession("s2", "builder-2")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateState("builder-2", overstory.StateCompleted); err != nil {
		t.Fatal(err)
	}

	active, err := s.GetActive()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].AgentName != "builder-1" {
		t.Errorf("active = %+v", active)
	}

	n, err := s.CountActive()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountActive = %d", n)
	}

	all, err := s.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("GetAll = %d rows", len(all))
	}
}

func TestActiveTaskHolder(t *testing.T) {
	s := openStore(t)

	holder := testSession("s1", "builder-1")
	holder.TaskID = "t-99"
	if err := s.Upsert(holder); err != nil {
		t.Fatal(err)
	}

	got, err := s.ActiveTaskHolder("t-99")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.AgentName != "builder-1" {
		t.Fatalf("holder = %+v", got)
	}

	if err := s.UpdateState("builder-1", overstory.StateZombie); err != nil {
		t.Fatal(err)
	}
	got, err = s.ActiveTaskHolder("t-99")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("zombie still holds the task: %+v", got)
	}
}

func TestCountByRun(t *testing.T) {
	s := openStore(t)

	runID := "run-abc123"
	for i, name := range []string{"builder-1", "builder-2"} {
		sess := testSession("s"+string(rune('1'+i)), name)
		sess.RunID = &runID
		if err := s.Upsert(sess); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Upsert(testSession("s9", "builder-9")); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountByRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountByRun = %d", n)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openStore(t)

	if err := s.CreateRun("run-1", "coord-sess"); err != nil {
		t.Fatal(err)
	}

	runID := "run-1"
	sess := testSession("s1", "builder-1")
	sess.RunID = &runID
	if err := s.Upsert(sess); err != nil {
		t.Fatal(err)
	}

	if err := s.CompleteRun("run-1"); err != nil {
		t.Fatal(err)
	}

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d", len(runs))
	}
	r := runs[0]
	if r.Status != "completed" || r.CompletedAt == nil {
		t.Errorf("run not completed: %+v", r)
	}
	if r.AgentCount != 1 {
		t.Errorf("agent count = %d", r.AgentCount)
	}
	if r.CoordinatorSessionID != "coord-sess" {
		t.Errorf("coordinator = %s", r.CoordinatorSessionID)
	}

	if err := s.CompleteRun("run-missing"); oops.CodeOf(err) != oops.CodeValidation {
		t.Errorf("completing unknown run: %v", err)
	}
}

func TestCurrentRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "current-run.txt")

	got, err := CurrentRun(path)
	if err != nil || got != "" {
		t.Fatalf("missing file: %q, %v", got, err)
	}

	if err := SetCurrentRun(path, "run-7"); err != nil {
		t.Fatal(err)
	}
	got, err = CurrentRun(path)
	if err != nil || got != "run-7" {
		t.Fatalf("CurrentRun = %q, %v", got, err)
	}

	if err := SetCurrentRun(path, ""); err != nil {
		t.Fatal(err)
	}
	got, _ = CurrentRun(path)
	if got != "" {
		t.Errorf("marker not cleared: %q", got)
	}

	// Clearing twice is fine.
	if err := SetCurrentRun(path, ""); err != nil {
		t.Errorf("double clear: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)

	if err := s.Upsert(testSession("s1", "builder-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("s1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetByName("builder-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("session survived delete: %+v", got)
	}
}
