package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/lifecycle"
	"github.com/sprinteroz/overstory/internal/oops"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Externalize or recover an agent's progress",
}

var checkpointSaveFlags struct {
	agent   string
	task    string
	branch  string
	summary string
	files   []string
	pending []string
	domains []string
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Snapshot an agent's progress for a future session",
	RunE:  runCheckpointSave,
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <agent-name>",
	Short: "Show an agent's checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointShow,
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear <agent-name>",
	Short: "Remove an agent's checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointClear,
}

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Chain a surrendered session to its successor",
}

var handoffOpenFlags struct {
	fromSession string
	agent       string
	task        string
	reason      string
}

var handoffOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Record a pending takeover",
	RunE:  runHandoffOpen,
}

var handoffCompleteFlags struct {
	agent     string
	toSession string
}

var handoffListFlags struct {
	agent string
}

var handoffCompleteCmd = &cobra.Command{
	Use:   "complete <handoff-id>",
	Short: "Bind the successor session to a pending handoff",
	Args:  cobra.ExactArgs(1),
	RunE:  runHandoffComplete,
}

var handoffListCmd = &cobra.Command{
	Use:   "list",
	Short: "List handoffs",
	RunE:  runHandoffList,
}

func init() {
	s := checkpointSaveCmd.Flags()
	s.StringVar(&checkpointSaveFlags.agent, "agent", "", "agent name (required)")
	s.StringVar(&checkpointSaveFlags.task, "task", "", "task id (required)")
	s.StringVar(&checkpointSaveFlags.branch, "branch", "", "current branch")
	s.StringVar(&checkpointSaveFlags.summary, "summary", "", "progress summary (required)")
	s.StringSliceVar(&checkpointSaveFlags.files, "files", nil, "modified files")
	s.StringSliceVar(&checkpointSaveFlags.pending, "pending", nil, "pending work items")
	s.StringSliceVar(&checkpointSaveFlags.domains, "domains", nil, "knowledge-domain tags")
	_ = checkpointSaveCmd.MarkFlagRequired("agent")
	_ = checkpointSaveCmd.MarkFlagRequired("task")
	_ = checkpointSaveCmd.MarkFlagRequired("summary")
	checkpointCmd.AddCommand(checkpointSaveCmd, checkpointShowCmd, checkpointClearCmd)

	o := handoffOpenCmd.Flags()
	o.StringVar(&handoffOpenFlags.fromSession, "from-session", "", "surrendering session id (required)")
	o.StringVar(&handoffOpenFlags.agent, "agent", "", "agent name (required)")
	o.StringVar(&handoffOpenFlags.task, "task", "", "task id")
	o.StringVar(&handoffOpenFlags.reason, "reason", "", "why the session is handing off")
	_ = handoffOpenCmd.MarkFlagRequired("from-session")
	_ = handoffOpenCmd.MarkFlagRequired("agent")

	handoffCompleteCmd.Flags().StringVar(&handoffCompleteFlags.agent, "agent", "", "agent name (required)")
	handoffCompleteCmd.Flags().StringVar(&handoffCompleteFlags.toSession, "to-session", "", "successor session id (required)")
	_ = handoffCompleteCmd.MarkFlagRequired("agent")
	_ = handoffCompleteCmd.MarkFlagRequired("to-session")

	handoffListCmd.Flags().StringVar(&handoffListFlags.agent, "agent", "", "limit to one agent")

	handoffCmd.AddCommand(handoffOpenCmd, handoffCompleteCmd, handoffListCmd)
}

func runCheckpointSave(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	err = lifecycle.SaveCheckpoint(cfg.AgentDir(checkpointSaveFlags.agent), &lifecycle.Checkpoint{
		AgentName:     checkpointSaveFlags.agent,
		TaskID:        checkpointSaveFlags.task,
		Branch:        checkpointSaveFlags.branch,
		Summary:       checkpointSaveFlags.summary,
		ModifiedFiles: checkpointSaveFlags.files,
		PendingWork:   checkpointSaveFlags.pending,
		Domains:       checkpointSaveFlags.domains,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Checkpointed %s\n", checkpointSaveFlags.agent)
	return nil
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cp, err := lifecycle.LoadCheckpoint(cfg.AgentDir(args[0]))
	if err != nil {
		return err
	}
	if cp == nil {
		return oops.New(oops.CodeLifecycle, "no checkpoint for agent %q", args[0])
	}

	fmt.Printf("Agent:   %s\nTask:    %s\nBranch:  %s\nAt:      %s\n\n%s\n",
		cp.AgentName, cp.TaskID, cp.Branch, cp.CreatedAt, cp.Summary)
	if len(cp.ModifiedFiles) > 0 {
		fmt.Printf("\nModified: %s\n", strings.Join(cp.ModifiedFiles, ", "))
	}
	for _, w := range cp.PendingWork {
		fmt.Printf("- %s\n", w)
	}
	return nil
}

func runCheckpointClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := lifecycle.ClearCheckpoint(cfg.AgentDir(args[0])); err != nil {
		return err
	}
	fmt.Printf("Cleared checkpoint for %s\n", args[0])
	return nil
}

func runHandoffOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := lifecycle.HandoffsPath(cfg.AgentDir(handoffOpenFlags.agent))
	h, err := lifecycle.OpenHandoff(path, lifecycle.Handoff{
		FromSession: handoffOpenFlags.fromSession,
		AgentName:   handoffOpenFlags.agent,
		TaskID:      handoffOpenFlags.task,
		Reason:      handoffOpenFlags.reason,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Opened handoff %s\n", h.ID)
	return nil
}

func runHandoffComplete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := lifecycle.HandoffsPath(cfg.AgentDir(handoffCompleteFlags.agent))
	err = lifecycle.CompleteHandoff(path, args[0], handoffCompleteFlags.toSession)
	if err != nil {
		return err
	}
	fmt.Printf("Handoff %s completed by %s\n", args[0], handoffCompleteFlags.toSession)
	return nil
}

func runHandoffList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	agents := []string{handoffListFlags.agent}
	if handoffListFlags.agent == "" {
		entries, err := os.ReadDir(cfg.AgentsDir())
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("read agents dir: %w", err)
		}
		agents = agents[:0]
		for _, e := range entries {
			if e.IsDir() {
				agents = append(agents, e.Name())
			}
		}
	}

	var handoffs []*lifecycle.Handoff
	for _, agent := range agents {
		hs, err := lifecycle.LoadHandoffs(lifecycle.HandoffsPath(cfg.AgentDir(agent)))
		if err != nil {
			return err
		}
		handoffs = append(handoffs, hs...)
	}
	if len(handoffs) == 0 {
		fmt.Println("No handoffs.")
		return nil
	}
	for _, h := range handoffs {
		status := "pending"
		if !h.Pending() {
			status = "-> " + *h.ToSession
		}
		fmt.Printf("%s  %s (%s) from %s  %s\n", h.ID, h.AgentName, h.TaskID, h.FromSession, status)
	}
	return nil
}
