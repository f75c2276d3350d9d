package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/git"
	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/internal/tmux"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

var stopFlags struct {
	keepWorktree bool
}

var stopCmd = &cobra.Command{
	Use:   "stop <agent-name>",
	Short: "Stop one agent: kill its session and mark it completed",
	Long: `Kill the agent's tmux session, mark the session row completed, and
remove its worktree. The branch is kept; merge it or delete it explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopFlags.keepWorktree, "keep-worktree", false, "leave the worktree in place")
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	name := args[0]
	sess, err := sessions.GetActiveByName(name)
	if err != nil {
		return err
	}
	if sess == nil {
		return oops.New(oops.CodeAgent, "no active session for agent %q", name)
	}

	tm := tmux.NewRunner()
	if tm.IsSessionAlive(sess.TmuxSession) {
		if err := tm.KillSession(sess.TmuxSession); err != nil {
			return err
		}
	}

	if err := sessions.UpdateState(name, overstory.StateCompleted); err != nil {
		return err
	}

	if !stopFlags.keepWorktree && sess.WorktreePath != "" {
		g := git.NewRunner(cfg.Project.Root)
		if err := g.WorktreeRemove(sess.WorktreePath, true); err != nil {
			fmt.Printf("warning: remove worktree: %v\n", err)
		}
		_ = g.WorktreePrune()
	}

	fmt.Printf("Stopped %s (branch %s kept)\n", name, sess.BranchName)
	return nil
}
