package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/events"
	"github.com/sprinteroz/overstory/internal/git"
	"github.com/sprinteroz/overstory/internal/sling"
	"github.com/sprinteroz/overstory/internal/tmux"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

var slingFlags struct {
	capability string
	task       string
	parent     string
	depth      int
	specPath   string
	files      []string
	model      string
	force      bool
}

var slingCmd = &cobra.Command{
	Use:   "sling <agent-name>",
	Short: "Spawn an agent in its own worktree, branch, and tmux session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSling,
}

func init() {
	f := slingCmd.Flags()
	f.StringVarP(&slingFlags.capability, "capability", "c", "builder", "agent capability (lead, builder, scout, ...)")
	f.StringVarP(&slingFlags.task, "task", "t", "", "task id the agent will own (required)")
	f.StringVarP(&slingFlags.parent, "parent", "p", "", "spawning agent's name; empty means the orchestrator")
	f.IntVarP(&slingFlags.depth, "depth", "d", 0, "hierarchy depth of the new agent")
	f.StringVar(&slingFlags.specPath, "spec", "", "path to the task spec the agent should read")
	f.StringSliceVar(&slingFlags.files, "files", nil, "files the task touches, for knowledge-domain inference")
	f.StringVar(&slingFlags.model, "model", "", "override the capability-configured model")
	f.BoolVar(&slingFlags.force, "force", false, "bypass the hierarchy check")
	_ = slingCmd.MarkFlagRequired("task")
}

func runSling(cmd *cobra.Command, args []string) error {
	if err := CheckTmux(); err != nil {
		return err
	}
	if err := CheckClaudeCLI(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := debugLogger(cfg)
	defer logger.Close()

	mailStore, sessions, mailClient, err := openMail(cfg)
	if err != nil {
		return err
	}
	defer mailStore.Close()
	defer sessions.Close()

	eventStore, err := events.Open(cfg.EventsDBPath())
	if err != nil {
		return err
	}
	defer eventStore.Close()

	coordinator := sling.NewCoordinator(cfg, sessions, mailClient, eventStore,
		git.NewRunner(cfg.Project.Root), tmux.NewRunner(), logger)

	res, err := coordinator.Spawn(sling.Request{
		AgentName:  args[0],
		Capability: overstory.Capability(slingFlags.capability),
		TaskID:     slingFlags.task,
		Parent:     slingFlags.parent,
		Depth:      slingFlags.depth,
		SpecPath:   slingFlags.specPath,
		Files:      slingFlags.files,
		Model:      slingFlags.model,
		Force:      slingFlags.force,
	})
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		color.New(color.FgYellow).Printf("warning: %s\n", w)
	}
	s := res.Session
	fmt.Printf("Spawned %s (%s) on task %s\n", s.AgentName, s.Capability, s.TaskID)
	fmt.Printf("  branch:   %s\n", s.BranchName)
	fmt.Printf("  worktree: %s\n", s.WorktreePath)
	fmt.Printf("  session:  %s\n", s.TmuxSession)
	return nil
}
