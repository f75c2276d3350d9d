package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/hooks"
	"github.com/sprinteroz/overstory/internal/logging"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

var pulseFlags struct {
	agent string
	tool  string
}

var pulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Record agent activity (called by the PostToolUse hook)",
	Long: `Stamp the agent's last-activity clock and promote a booting or stalled
session back to working. The watchdog reads this clock to tell busy agents
from dead ones.`,
	RunE: runPulse,
}

func init() {
	pulseCmd.Flags().StringVar(&pulseFlags.agent, "agent", "", "agent reporting activity (required)")
	pulseCmd.Flags().StringVar(&pulseFlags.tool, "tool", "", "tool that just ran")
	_ = pulseCmd.MarkFlagRequired("agent")
}

func runPulse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	sess, err := hooks.ReportActivity(sessions, pulseFlags.agent, time.Now())
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	// Best effort: the agent log never blocks a tool call.
	log, err := logging.OpenNDJSON(cfg.LogsDir(), sess.AgentName, sess.StartedAt)
	if err != nil {
		return nil
	}
	defer log.Close()

	rec := logging.NDJSONRecord{
		Agent: sess.AgentName,
		Type:  string(overstory.EventToolEnd),
		Data:  map[string]any{"sessionId": sess.ID},
	}
	if pulseFlags.tool != "" {
		rec.Data["tool"] = pulseFlags.tool
	}
	_ = log.Append(rec)
	return nil
}
