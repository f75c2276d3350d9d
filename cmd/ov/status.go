package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/mail"
	"github.com/sprinteroz/overstory/internal/mergeq"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the swarm at a glance",
	Long: `Display active agents with their state and activity age, the merge
queue, and unread mail counts.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	active, err := sessions.GetActive()
	if err != nil {
		return err
	}

	runID, _ := session.CurrentRun(cfg.CurrentRunPath())
	if runID != "" {
		fmt.Printf("Run: %s\n", runID)
	}

	if len(active) == 0 {
		fmt.Println("No active agents. Spawn one with 'ov sling'.")
	} else {
		fmt.Printf("Agents (%d active):\n", len(active))
		for _, s := range active {
			parent := ""
			if s.ParentAgent != nil {
				parent = " < " + *s.ParentAgent
			}
			fmt.Printf("  %-16s %-11s %-8s task %-10s idle %s%s\n",
				s.AgentName, s.Capability, stateName(s.State), s.TaskID,
				formatDuration(time.Since(s.LastActivity)), parent)
		}
	}

	if err := statusMergeQueue(cfg.MergeQueueDBPath()); err != nil {
		return err
	}
	return statusMail(cfg.MailDBPath(), active)
}

func statusMergeQueue(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	queue, err := mergeq.Open(path)
	if err != nil {
		return err
	}
	defer queue.Close()

	pending, err := queue.List(overstory.MergePending)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	fmt.Printf("\nMerge queue (%d pending):\n", len(pending))
	for _, e := range pending {
		fmt.Printf("  #%d %s (%s)\n", e.ID, e.BranchName, e.AgentName)
	}
	return nil
}

func statusMail(path string, active []*session.Session) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	mailStore, err := mail.Open(path)
	if err != nil {
		return err
	}
	defer mailStore.Close()

	total := 0
	lines := ""
	for _, s := range active {
		unread, err := mailStore.Unread(s.AgentName)
		if err != nil {
			return err
		}
		if len(unread) > 0 {
			total += len(unread)
			lines += fmt.Sprintf("  %s: %d unread\n", s.AgentName, len(unread))
		}
	}
	if total > 0 {
		fmt.Printf("\nMail:\n%s", lines)
	}
	return nil
}

// formatDuration renders a duration the way humans skim it.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
