package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FindProjectRoot walks up from start looking for a directory that owns an
// .overstory state directory. When start sits inside an agent worktree, the
// worktree's .git file is followed back to the parent repository so that hook
// helpers invoked inside the worktree resolve the project's state, not the
// worktree's.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, StateDirName)); err == nil && info.IsDir() {
			return dir, nil
		}

		// A .git *file* marks a linked worktree; its gitdir line points
		// into the parent repo's .git/worktrees/<name>.
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil && !info.IsDir() {
			if parent := worktreeParent(gitPath); parent != "" {
				if info, err := os.Stat(filepath.Join(parent, StateDirName)); err == nil && info.IsDir() {
					return parent, nil
				}
			}
		}

		next := filepath.Dir(dir)
		if next == dir {
			return "", fmt.Errorf("no %s directory found above %s", StateDirName, start)
		}
		dir = next
	}
}

// worktreeParent resolves the owning repository root from a worktree's .git
// file. Returns "" when the file does not describe a linked worktree.
func worktreeParent(gitFile string) string {
	data, err := os.ReadFile(gitFile)
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(string(data))
	gitdir, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return ""
	}
	gitdir = strings.TrimSpace(gitdir)

	// gitdir is {repo}/.git/worktrees/{name}
	idx := strings.Index(gitdir, filepath.Join(".git", "worktrees"))
	if idx < 0 {
		return ""
	}
	return filepath.Clean(strings.TrimSuffix(gitdir[:idx], string(filepath.Separator)))
}
