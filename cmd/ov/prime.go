package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/git"
	"github.com/sprinteroz/overstory/internal/hooks"
	"github.com/sprinteroz/overstory/internal/session"
)

var primeFlags struct {
	agent string
}

var primeCmd = &cobra.Command{
	Use:   "prime",
	Short: "Print the session-start context block",
	Long: `Invoked by the session-start hook. Prints the context an agent (or the
orchestrator) needs: project and branch info, identity, open task, and a
recovery block when a checkpoint exists. Also heals the state directory's
gitignore and, for the orchestrator, captures the session branch.`,
	RunE: runPrime,
}

func init() {
	primeCmd.Flags().StringVar(&primeFlags.agent, "agent", "", "agent to prime; empty primes the orchestrator")
}

func runPrime(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, err := session.Open(cfg.SessionsDBPath())
	if err != nil {
		return err
	}
	defer sessions.Close()

	primer := hooks.NewPrimer(cfg, sessions, git.NewRunner(cfg.Project.Root), mulchClient(cfg))
	block, err := primer.Prime(primeFlags.agent)
	if err != nil {
		return err
	}
	fmt.Print(block)
	return nil
}
