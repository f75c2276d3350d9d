package merge

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sprinteroz/overstory/internal/mergeq"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// fakeGit is an in-memory Runner for resolver tests.
type fakeGit struct {
	branch       string
	mergeErr     error
	unmerged     []string
	showFiles    map[string]string // "ref:path" -> content
	calls        []string
	checkoutErr  error
	commitErr    error
	abortedCount int
}

func (g *fakeGit) Run(args ...string) (string, error) { return "", nil }

func (g *fakeGit) CurrentBranch() (string, error) { return g.branch, nil }

func (g *fakeGit) CheckoutBranch(name string) error {
	g.calls = append(g.calls, "checkout "+name)
	if g.checkoutErr != nil {
		return g.checkoutErr
	}
	g.branch = name
	return nil
}

func (g *fakeGit) BranchExists(name string) (bool, error) { return true, nil }
func (g *fakeGit) DeleteBranch(name string) error         { return nil }
func (g *fakeGit) Status() (string, error)                { return "", nil }

func (g *fakeGit) Add(paths ...string) error {
	g.calls = append(g.calls, "add "+strings.Join(paths, " "))
	return nil
}

func (g *fakeGit) Commit(message string) error {
	g.calls = append(g.calls, "commit "+message)
	return g.commitErr
}

func (g *fakeGit) Merge(branch string) error {
	g.calls = append(g.calls, "merge "+branch)
	return g.mergeErr
}

func (g *fakeGit) MergeAbort() error {
	g.abortedCount++
	return nil
}

func (g *fakeGit) MergeInProgress() bool { return false }

func (g *fakeGit) UnmergedFiles() ([]string, error) { return g.unmerged, nil }

func (g *fakeGit) ChangedFilesRelative(branch, relativeTo string) ([]string, error) {
	return nil, nil
}

func (g *fakeGit) ShowFile(ref, path string) (string, error) {
	if c, ok := g.showFiles[ref+":"+path]; ok {
		return c, nil
	}
	return "", errors.New("no such object")
}

func (g *fakeGit) WorktreeAdd(path, branch, base string) error  { return nil }
func (g *fakeGit) WorktreeRemove(path string, force bool) error { return nil }
func (g *fakeGit) WorktreeList() ([]string, error)              { return nil, nil }
func (g *fakeGit) WorktreePrune() error                         { return nil }

// stubLLM returns a canned response per file prompt.
type stubLLM struct {
	response string
	err      error
}

func (l *stubLLM) Complete(prompt, dir string) (string, error) {
	return l.response, l.err
}

func testEntry() *mergeq.Entry {
	return &mergeq.Entry{
		ID:            1,
		BranchName:    "overstory/builder-1/t-1",
		TaskID:        "t-1",
		AgentName:     "builder-1",
		FilesModified: []string{"a.txt"},
	}
}

func conflictContent() string {
	return strings.Join([]string{
		"header",
		"<<<<<<< HEAD",
		"ours",
		"=======",
		"theirs",
		">>>>>>> overstory/builder-1/t-1",
		"footer",
	}, "\n")
}

func TestResolveCleanMerge(t *testing.T) {
	g := &fakeGit{branch: "other"}
	r := NewResolver(g, nil, nil, Config{}, nil)

	res, err := r.Resolve(testEntry(), "main", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Tier != overstory.TierCleanMerge {
		t.Fatalf("result = %+v", res)
	}
	// The canonical branch is checked out before merging.
	if g.calls[0] != "checkout main" {
		t.Errorf("calls = %v", g.calls)
	}
}

func TestResolveSkipsCheckoutWhenOnCanonical(t *testing.T) {
	g := &fakeGit{branch: "main"}
	r := NewResolver(g, nil, nil, Config{}, nil)

	if _, err := r.Resolve(testEntry(), "main", t.TempDir()); err != nil {
		t.Fatal(err)
	}
	for _, c := range g.calls {
		if strings.HasPrefix(c, "checkout") {
			t.Errorf("redundant checkout: %v", g.calls)
		}
	}
}

func TestResolveAutoResolve(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte(conflictContent()), 0644); err != nil {
		t.Fatal(err)
	}

	g := &fakeGit{branch: "main", mergeErr: errors.New("conflict"), unmerged: []string{"a.txt"}}
	mulchStub := &stubMulch{}
	r := NewResolver(g, nil, mulchStub, Config{}, nil)

	res, err := r.Resolve(testEntry(), "main", root)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Tier != overstory.TierAutoResolve {
		t.Fatalf("result = %+v", res)
	}

	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "header\ntheirs\nfooter" {
		t.Errorf("resolved content:\n%s", got)
	}

	// The outcome lands in the knowledge store.
	if len(mulchStub.recorded) != 1 || !strings.Contains(mulchStub.recorded[0], "resolved at tier auto-resolve") {
		t.Errorf("recorded = %v", mulchStub.recorded)
	}
}

func TestResolveFailureAbortsAndRecords(t *testing.T) {
	root := t.TempDir()
	// No conflict markers: delete/modify style conflict fails auto-resolve.
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("plain\n"), 0644); err != nil {
		t.Fatal(err)
	}

	g := &fakeGit{branch: "main", mergeErr: errors.New("conflict"), unmerged: []string{"a.txt"}}
	mulchStub := &stubMulch{}
	r := NewResolver(g, nil, mulchStub, Config{}, nil)

	res, err := r.Resolve(testEntry(), "main", root)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("markerless conflict auto-resolved")
	}
	if res.Tier != overstory.TierAutoResolve {
		t.Errorf("tier = %s", res.Tier)
	}
	if g.abortedCount == 0 {
		t.Error("merge not aborted on failure")
	}
	if len(mulchStub.recorded) != 1 || !strings.Contains(mulchStub.recorded[0], "failed at tier auto-resolve") {
		t.Errorf("recorded = %v", mulchStub.recorded)
	}
}

func TestResolveAIResolve(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("plain, no markers\n"), 0644); err != nil {
		t.Fatal(err)
	}

	g := &fakeGit{branch: "main", mergeErr: errors.New("conflict"), unmerged: []string{"a.txt"}}
	llm := &stubLLM{response: "reconciled content\n"}
	r := NewResolver(g, llm, nil, Config{AIResolveEnabled: true}, nil)

	res, err := r.Resolve(testEntry(), "main", root)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Tier != overstory.TierAIResolve {
		t.Fatalf("result = %+v", res)
	}
	got, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(got) != "reconciled content\n" {
		t.Errorf("content = %q", got)
	}
}

func TestResolveAIResolveRejectsProse(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("plain\n"), 0644); err != nil {
		t.Fatal(err)
	}

	g := &fakeGit{branch: "main", mergeErr: errors.New("conflict"), unmerged: []string{"a.txt"}}
	llm := &stubLLM{response: "I'll resolve this by merging both sides."}
	r := NewResolver(g, llm, nil, Config{AIResolveEnabled: true}, nil)

	res, err := r.Resolve(testEntry(), "main", root)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("prose response applied as file content")
	}
	// The original file survived untouched.
	got, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(got) != "plain\n" {
		t.Errorf("file overwritten with %q", got)
	}
}

func TestResolveHistorySkipsAutoResolve(t *testing.T) {
	root := t.TempDir()
	// Markers present: auto-resolve would succeed if attempted.
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte(conflictContent()), 0644); err != nil {
		t.Fatal(err)
	}

	fail := Pattern{Tier: overstory.TierAutoResolve, Branch: "b", Agent: "x", Files: []string{"a.txt"}}
	mulchStub := &stubMulch{patterns: []string{FormatPattern(fail), FormatPattern(fail)}}

	g := &fakeGit{branch: "main", mergeErr: errors.New("conflict"), unmerged: []string{"a.txt"}}
	llm := &stubLLM{response: "from the model\n"}
	r := NewResolver(g, llm, mulchStub, Config{AIResolveEnabled: true, SkipFailures: 2}, nil)

	res, err := r.Resolve(testEntry(), "main", root)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Tier != overstory.TierAIResolve {
		t.Fatalf("result = %+v; auto-resolve should have been skipped", res)
	}
}

func TestResolveReimagine(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("plain\n"), 0644); err != nil {
		t.Fatal(err)
	}

	g := &fakeGit{
		branch:   "main",
		mergeErr: errors.New("conflict"),
		unmerged: []string{"a.txt"},
		showFiles: map[string]string{
			"main:a.txt":                    "canonical version\n",
			"overstory/builder-1/t-1:a.txt": "branch version\n",
		},
	}
	llm := &stubLLM{response: "the reconciled whole\n"}
	r := NewResolver(g, llm, nil, Config{ReimagineEnabled: true}, nil)

	res, err := r.Resolve(testEntry(), "main", root)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Tier != overstory.TierReimagine {
		t.Fatalf("result = %+v", res)
	}
	// Reimagine abandons the half-done merge before rewriting.
	if g.abortedCount == 0 {
		t.Error("in-progress merge not aborted before reimagine")
	}
	got, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(got) != "the reconciled whole\n" {
		t.Errorf("content = %q", got)
	}
}
