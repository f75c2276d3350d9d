// Package git provides a subprocess-backed interface for the git operations
// the orchestrator needs: branch bookkeeping, worktree management, and the
// merge primitives the tiered resolver drives.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecRunner implements Runner using exec.Command.
type ExecRunner struct {
	repoPath string
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

// RepoPath returns the repository root this runner operates in.
func (r *ExecRunner) RepoPath() string {
	return r.repoPath
}

// run executes a git command and returns its trimmed output. Stderr on a
// non-zero exit is folded into the returned error.
func (r *ExecRunner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and discards output on success.
func (r *ExecRunner) runSilent(args ...string) error {
	_, err := r.run(args...)
	return err
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.run(args...)
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// CheckoutBranch switches to the specified branch.
func (r *ExecRunner) CheckoutBranch(name string) error {
	return r.runSilent("checkout", name)
}

// BranchExists returns true if the local branch exists.
func (r *ExecRunner) BranchExists(name string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = r.repoPath
	err := cmd.Run()
	if err != nil {
		// Exit code 1 means the ref doesn't exist, not a failure.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch exists: %w", err)
	}
	return true, nil
}

// DeleteBranch force-deletes the specified branch.
func (r *ExecRunner) DeleteBranch(name string) error {
	return r.runSilent("branch", "-D", name)
}

// Status returns the output of git status --porcelain.
func (r *ExecRunner) Status() (string, error) {
	return r.run("status", "--porcelain")
}

// Add stages the specified files for commit.
func (r *ExecRunner) Add(paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	return r.runSilent(args...)
}

// Commit creates a new commit with the given message.
func (r *ExecRunner) Commit(message string) error {
	return r.runSilent("commit", "-m", message)
}

// Merge merges the specified branch into the current branch without opening
// an editor for the merge commit message.
func (r *ExecRunner) Merge(branch string) error {
	return r.runSilent("merge", "--no-edit", branch)
}

// MergeAbort aborts an in-progress merge. A no-op error ("no merge to
// abort") is swallowed so callers can use it best-effort.
func (r *ExecRunner) MergeAbort() error {
	if err := r.runSilent("merge", "--abort"); err != nil {
		if strings.Contains(err.Error(), "MERGE_HEAD") {
			return nil
		}
		return err
	}
	return nil
}

// MergeInProgress reports whether a merge is currently in progress.
func (r *ExecRunner) MergeInProgress() bool {
	gitDir, err := r.run("rev-parse", "--git-dir")
	if err != nil {
		return false
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(r.repoPath, gitDir)
	}
	_, err = os.Stat(filepath.Join(gitDir, "MERGE_HEAD"))
	return err == nil
}

// UnmergedFiles returns the paths with unmerged changes.
func (r *ExecRunner) UnmergedFiles() ([]string, error) {
	out, err := r.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ChangedFilesRelative returns files changed on branch relative to another
// branch (three-dot diff).
func (r *ExecRunner) ChangedFilesRelative(branch, relativeTo string) ([]string, error) {
	out, err := r.run("diff", "--name-only", relativeTo+"..."+branch)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ShowFile returns the contents of a file at a specific ref.
func (r *ExecRunner) ShowFile(ref, path string) (string, error) {
	cmd := exec.Command("git", "show", ref+":"+path)
	cmd.Dir = r.repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git show %s:%s: %w", ref, path, err)
	}
	return string(out), nil
}

// WorktreeAdd creates a worktree at path on a new branch based on base.
func (r *ExecRunner) WorktreeAdd(path, branch, base string) error {
	return r.runSilent("worktree", "add", "-b", branch, path, base)
}

// WorktreeRemove removes the worktree at the given path.
func (r *ExecRunner) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	return r.runSilent(args...)
}

// WorktreeList returns the list of worktree paths.
func (r *ExecRunner) WorktreeList() ([]string, error) {
	out, err := r.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if p, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// WorktreePrune removes stale worktree bookkeeping.
func (r *ExecRunner) WorktreePrune() error {
	return r.runSilent("worktree", "prune")
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
