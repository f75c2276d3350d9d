package hooks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sprinteroz/overstory/internal/config"
	"github.com/sprinteroz/overstory/internal/lifecycle"
	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/internal/sling"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

func TestShouldSkipCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail-check-state.json")
	now := time.Now()

	skip, err := ShouldSkipCheck(path, "builder-1", 5000, now)
	if err != nil || skip {
		t.Errorf("first check = (%v, %v), want no skip", skip, err)
	}

	if err := RecordCheck(path, "builder-1", now); err != nil {
		t.Fatal(err)
	}

	skip, err = ShouldSkipCheck(path, "builder-1", 5000, now.Add(2*time.Second))
	if err != nil || !skip {
		t.Errorf("within window = (%v, %v), want skip", skip, err)
	}

	skip, err = ShouldSkipCheck(path, "builder-1", 5000, now.Add(6*time.Second))
	if err != nil || skip {
		t.Errorf("past window = (%v, %v), want no skip", skip, err)
	}

	// Other agents are tracked independently.
	skip, err = ShouldSkipCheck(path, "builder-2", 5000, now.Add(time.Second))
	if err != nil || skip {
		t.Errorf("other agent = (%v, %v), want no skip", skip, err)
	}

	// A window of zero disables debouncing entirely.
	skip, err = ShouldSkipCheck(path, "builder-1", 0, now)
	if err != nil || skip {
		t.Errorf("disabled window = (%v, %v), want no skip", skip, err)
	}
}

func TestShouldSkipCheckCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail-check-state.json")
	if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}

	skip, err := ShouldSkipCheck(path, "builder-1", 5000, time.Now())
	if err != nil || skip {
		t.Errorf("corrupt state = (%v, %v), want no skip and no error", skip, err)
	}
}

func TestReportActivity(t *testing.T) {
	root := t.TempDir()
	sessions, err := session.Open(filepath.Join(root, "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer sessions.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err = sessions.Upsert(&session.Session{
		ID: "s1", AgentName: "builder-1", Capability: overstory.CapBuilder,
		WorktreePath: "/tmp/b1", BranchName: "overstory/builder-1/t-1",
		TaskID: "t-1", TmuxSession: "x", State: overstory.StateBooting,
		StartedAt: base, LastActivity: base,
	})
	if err != nil {
		t.Fatal(err)
	}

	// First activity promotes booting to working and bumps the clock.
	sess, err := ReportActivity(sessions, "builder-1", base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil || sess.State != overstory.StateWorking {
		t.Fatalf("reported session = %+v", sess)
	}
	got, err := sessions.GetByName("builder-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != overstory.StateWorking {
		t.Errorf("state = %s, want working", got.State)
	}
	if !got.LastActivity.Equal(base.Add(time.Minute)) {
		t.Errorf("last activity = %v", got.LastActivity)
	}

	// A stalled agent that acts again recovers to working.
	if err := sessions.UpdateState("builder-1", overstory.StateStalled); err != nil {
		t.Fatal(err)
	}
	if _, err := ReportActivity(sessions, "builder-1", base.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, _ = sessions.GetByName("builder-1")
	if got.State != overstory.StateWorking || got.StalledSince != nil {
		t.Errorf("recovered session = %+v", got)
	}

	// Unknown agents are a no-op, never an error.
	sess, err = ReportActivity(sessions, "ghost", base)
	if err != nil || sess != nil {
		t.Errorf("unknown agent = (%+v, %v)", sess, err)
	}
}

func TestWriteSpec(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteSpec(dir, "t-1", "# Build the thing\n", "lead-1")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "t-1.md" {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "<!-- written by lead-1 at ") {
		t.Errorf("missing attribution header: %q", content)
	}
	if !strings.Contains(content, "# Build the thing") {
		t.Errorf("missing body: %q", content)
	}

	// No author, no header.
	path, err = WriteSpec(dir, "t-2", "body", "")
	if err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "body" {
		t.Errorf("content = %q, want bare body", data)
	}
}

func TestWriteSpecRejectsPathTraversal(t *testing.T) {
	_, err := WriteSpec(t.TempDir(), "../evil", "body", "")
	if !oops.Is(err, oops.CodeValidation) {
		t.Errorf("err = %v, want VALIDATION", err)
	}
	if _, err := WriteSpec(t.TempDir(), "", "body", ""); !oops.Is(err, oops.CodeValidation) {
		t.Errorf("empty task id = %v, want VALIDATION", err)
	}
}

func TestHealGitignore(t *testing.T) {
	dir := t.TempDir()

	if err := HealGitignore(dir); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "*" {
		t.Errorf("gitignore = %q", data)
	}

	// A clobbered gitignore is healed back.
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("node_modules\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := HealGitignore(dir); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, ".gitignore"))
	if strings.TrimSpace(string(data)) != "*" {
		t.Errorf("healed gitignore = %q", data)
	}
}

type fakeGit struct{ branch string }

func (f *fakeGit) Run(args ...string) (string, error)        { return "", nil }
func (f *fakeGit) CurrentBranch() (string, error)            { return f.branch, nil }
func (f *fakeGit) CheckoutBranch(name string) error          { return nil }
func (f *fakeGit) BranchExists(name string) (bool, error)    { return false, nil }
func (f *fakeGit) DeleteBranch(name string) error            { return nil }
func (f *fakeGit) Status() (string, error)                   { return "", nil }
func (f *fakeGit) Add(paths ...string) error                 { return nil }
func (f *fakeGit) Commit(message string) error               { return nil }
func (f *fakeGit) Merge(branch string) error                 { return nil }
func (f *fakeGit) MergeAbort() error                         { return nil }
func (f *fakeGit) MergeInProgress() bool                     { return false }
func (f *fakeGit) UnmergedFiles() ([]string, error)          { return nil, nil }
func (f *fakeGit) ShowFile(ref, path string) (string, error) { return "", nil }
func (f *fakeGit) WorktreeAdd(path, branch, base string) error {
	return nil
}
func (f *fakeGit) WorktreeRemove(path string, force bool) error { return nil }
func (f *fakeGit) WorktreeList() ([]string, error)              { return nil, nil }
func (f *fakeGit) WorktreePrune() error                         { return nil }
func (f *fakeGit) ChangedFilesRelative(branch, relativeTo string) ([]string, error) {
	return nil, nil
}

func newPrimerEnv(t *testing.T) (*config.Config, *session.Store, *Primer) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Project: config.ProjectConfig{Name: "proj", Root: root, CanonicalBranch: "main"},
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sessions.Close() })

	return cfg, sessions, NewPrimer(cfg, sessions, &fakeGit{branch: "feature/x"}, nil)
}

func TestPrimeOrchestrator(t *testing.T) {
	cfg, sessions, primer := newPrimerEnv(t)

	err := sessions.Upsert(&session.Session{
		ID: "s1", AgentName: "builder-1", Capability: overstory.CapBuilder,
		WorktreePath: "/tmp/b1", BranchName: "overstory/builder-1/t-1",
		TaskID: "t-1", TmuxSession: "x", State: overstory.StateWorking,
		StartedAt: time.Now(), LastActivity: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := primer.Prime("orchestrator")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"proj", "main", "Session branch: feature/x", "builder-1", "t-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("prime output missing %q:\n%s", want, out)
		}
	}

	// The current branch was captured for later merge targeting.
	data, err := os.ReadFile(cfg.SessionBranchPath())
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "feature/x" {
		t.Errorf("session-branch.txt = %q", data)
	}

	// The state dir ignores itself.
	if _, err := os.Stat(filepath.Join(cfg.StateDir(), ".gitignore")); err != nil {
		t.Errorf("gitignore not healed: %v", err)
	}
}

func TestPrimeAgent(t *testing.T) {
	cfg, _, primer := newPrimerEnv(t)

	agentDir := cfg.AgentDir("builder-1")
	err := sling.WriteIdentity(agentDir, sling.Identity{
		AgentName:  "builder-1",
		Capability: overstory.CapBuilder,
		TaskID:     "t-1",
		Parent:     "lead-1",
		Depth:      1,
		Branch:     "overstory/builder-1/t-1",
		Worktree:   "/tmp/b1",
		SpecPath:   "specs/t-1.md",
	})
	if err != nil {
		t.Fatal(err)
	}
	err = lifecycle.SaveCheckpoint(agentDir, &lifecycle.Checkpoint{
		AgentName:   "builder-1",
		TaskID:      "t-1",
		Branch:      "overstory/builder-1/t-1",
		Summary:     "halfway through the store layer",
		PendingWork: []string{"wire the client"},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := primer.Prime("builder-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"builder-1", "lead-1", "task t-1", "specs/t-1.md",
		"Session recovery", "halfway through the store layer", "wire the client",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prime output missing %q:\n%s", want, out)
		}
	}
}

func TestPrimeAgentWithoutIdentity(t *testing.T) {
	_, _, primer := newPrimerEnv(t)

	out, err := primer.Prime("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "proj") {
		t.Errorf("even unknown agents get the project header:\n%s", out)
	}
	if strings.Contains(out, "Session recovery") {
		t.Error("no checkpoint, no recovery block")
	}
}
