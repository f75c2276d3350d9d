package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/config"
	"github.com/sprinteroz/overstory/internal/logging"
	"github.com/sprinteroz/overstory/internal/mail"
	"github.com/sprinteroz/overstory/internal/mulch"
	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// CheckClaudeCLI verifies that the 'claude' CLI is available in PATH.
func CheckClaudeCLI() error {
	if _, err := exec.LookPath("claude"); err != nil {
		return fmt.Errorf("claude CLI not found in PATH\n\n" +
			"Overstory launches agents through the Claude Code CLI.\n\n" +
			"Install it with:\n" +
			"  npm install -g @anthropic-ai/claude-code")
	}
	return nil
}

// CheckTmux verifies that tmux is available in PATH.
func CheckTmux() error {
	if _, err := exec.LookPath("tmux"); err != nil {
		return fmt.Errorf("tmux not found in PATH\n\n" +
			"Overstory hosts every agent in a detached tmux session.\n" +
			"Install tmux through your package manager and retry.")
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "ov",
	Short: "Orchestrate parallel coding agents in isolated worktrees",
	Long: `Overstory runs a swarm of coding agents, each in its own git worktree,
branch, and detached tmux session.

Agents are spawned with 'ov sling', talk to each other through 'ov mail',
and land their branches through the tiered resolver behind 'ov merge'.
The watchdog keeps the session registry honest; 'ov status' shows the
whole canopy at a glance.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Structured errors print their hint and
// drive the exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)

		var oerr *oops.Error
		if errors.As(err, &oerr) && oerr.Hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", oerr.Hint)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(slingCmd)
	rootCmd.AddCommand(mailCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(watchdogCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(primeCmd)
	rootCmd.AddCommand(pulseCmd)
	rootCmd.AddCommand(specCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(handoffCmd)
	rootCmd.AddCommand(guardCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the project root from the working directory
// (worktree-aware) and loads its configuration.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		return nil, oops.Wrap(oops.CodeConfig, err, "locate project").
			WithHint("run 'ov init' inside your project first")
	}
	return config.Load(root)
}

// debugLogger builds the file-backed debug logger when verbose logging is
// on, and a no-op logger otherwise.
func debugLogger(cfg *config.Config) *logging.DebugLogger {
	if !cfg.Logging.Verbose {
		return logging.NopLogger()
	}
	logger, err := logging.NewDebugLogger(
		cfg.LogsDir()+"/debug.log", cfg.Logging.RedactSecrets)
	if err != nil {
		return logging.NopLogger()
	}
	return logger
}

// mulchClient returns the knowledge-store client, or nil when disabled.
func mulchClient(cfg *config.Config) mulch.Client {
	if !cfg.Mulch.Enabled {
		return nil
	}
	return mulch.NewCLIClient(cfg.Project.Root)
}

// activeAdapter exposes the session store to mail group resolution.
type activeAdapter struct {
	sessions *session.Store
}

func (a activeAdapter) ActiveRecipients() ([]mail.Recipient, error) {
	active, err := a.sessions.GetActive()
	if err != nil {
		return nil, err
	}
	recipients := make([]mail.Recipient, len(active))
	for i, s := range active {
		recipients[i] = mail.Recipient{AgentName: s.AgentName, Capability: s.Capability}
	}
	return recipients, nil
}

// openMail opens the mail store plus a client wired for group addressing
// and nudges. The caller closes both stores.
func openMail(cfg *config.Config) (*mail.Store, *session.Store, *mail.Client, error) {
	mailStore, err := mail.Open(cfg.MailDBPath())
	if err != nil {
		return nil, nil, nil, err
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		mailStore.Close()
		return nil, nil, nil, err
	}
	client := mail.NewClient(mailStore, activeAdapter{sessions}, cfg.PendingNudgesDir())
	return mailStore, sessions, client, nil
}

// stateName colors an agent state for terminal output.
func stateName(s overstory.AgentState) string {
	switch s {
	case overstory.StateWorking:
		return color.GreenString(string(s))
	case overstory.StateBooting:
		return color.CyanString(string(s))
	case overstory.StateStalled:
		return color.YellowString(string(s))
	case overstory.StateZombie:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
