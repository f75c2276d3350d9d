package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Group spawns into a named run",
	Long: `A run groups the sessions of one swarm invocation. Starting a run sets
the current-run marker; every subsequent spawn is attributed to it and the
per-run session cap applies.`,
}

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a run and make it current",
	RunE:  runRunStart,
}

var runCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete the current run and clear the marker",
	RunE:  runRunComplete,
}

var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	RunE:  runRunList,
}

func init() {
	runCmd.AddCommand(runStartCmd, runCompleteCmd, runListCmd)
}

func runRunStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	if current, err := session.CurrentRun(cfg.CurrentRunPath()); err != nil {
		return err
	} else if current != "" {
		return oops.New(oops.CodeValidation, "run %s is already current", current).
			WithHint("complete it with 'ov run complete' first")
	}

	runID := "run-" + uuid.NewString()[:8]
	if err := sessions.CreateRun(runID, ""); err != nil {
		return err
	}
	if err := session.SetCurrentRun(cfg.CurrentRunPath(), runID); err != nil {
		return err
	}
	fmt.Printf("Started %s\n", runID)
	return nil
}

func runRunComplete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	runID, err := session.CurrentRun(cfg.CurrentRunPath())
	if err != nil {
		return err
	}
	if runID == "" {
		return oops.New(oops.CodeValidation, "no current run")
	}

	if err := sessions.CompleteRun(runID); err != nil {
		return err
	}
	if err := session.SetCurrentRun(cfg.CurrentRunPath(), ""); err != nil {
		return err
	}
	fmt.Printf("Completed %s\n", runID)
	return nil
}

func runRunList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	runs, err := sessions.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-9s  %d agents  started %s ago\n",
			r.ID, r.Status, r.AgentCount, formatDuration(time.Since(r.StartedAt)))
	}
	return nil
}
