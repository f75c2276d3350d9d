package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/git"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/internal/tmux"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

var cleanFlags struct {
	zombies  bool
	all      bool
	branches bool
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Tear down agent sessions and their worktrees in bulk",
	Long: `Clean up after a swarm. By default only terminal sessions (completed,
zombie) are reaped: their tmux sessions killed, worktrees removed, and
nudge markers dropped. --all reaps active agents too; --branches also
deletes the overstory branches of reaped agents.`,
	RunE: runClean,
}

func init() {
	f := cleanCmd.Flags()
	f.BoolVar(&cleanFlags.zombies, "zombies", false, "reap only zombie sessions")
	f.BoolVar(&cleanFlags.all, "all", false, "reap every session, active ones included")
	f.BoolVar(&cleanFlags.branches, "branches", false, "also delete reaped agents' branches")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	all, err := sessions.GetAll()
	if err != nil {
		return err
	}

	tm := tmux.NewRunner()
	g := git.NewRunner(cfg.Project.Root)
	reaped := 0

	for _, s := range all {
		if !shouldReap(s) {
			continue
		}

		if tm.IsSessionAlive(s.TmuxSession) {
			if err := tm.KillSession(s.TmuxSession); err != nil {
				fmt.Printf("warning: kill %s: %v\n", s.TmuxSession, err)
			}
		}
		if s.WorktreePath != "" {
			if err := g.WorktreeRemove(s.WorktreePath, true); err != nil &&
				!strings.Contains(err.Error(), "not a working tree") {
				fmt.Printf("warning: remove worktree %s: %v\n", s.WorktreePath, err)
			}
		}
		if cleanFlags.branches && s.BranchName != "" {
			if err := g.DeleteBranch(s.BranchName); err != nil {
				fmt.Printf("warning: delete branch %s: %v\n", s.BranchName, err)
			}
		}
		if err := sessions.Delete(s.ID); err != nil {
			return err
		}
		reaped++
		fmt.Printf("Reaped %s (%s)\n", s.AgentName, s.State)
	}

	_ = g.WorktreePrune()

	// Pending nudges for reaped agents are worthless; drop the whole dir.
	if reaped > 0 {
		if err := os.RemoveAll(cfg.PendingNudgesDir()); err != nil {
			fmt.Printf("warning: clear nudges: %v\n", err)
		}
	}

	fmt.Printf("Reaped %d session(s)\n", reaped)
	return nil
}

func shouldReap(s *session.Session) bool {
	if cleanFlags.all {
		return true
	}
	if cleanFlags.zombies {
		return s.State == overstory.StateZombie
	}
	return s.State.Terminal()
}
