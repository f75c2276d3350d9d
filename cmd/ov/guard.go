package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/sling"
)

var guardFlags struct {
	agent string
}

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Pre-tool hook: block dangerous terminal commands",
	Long: `Invoked by the PreToolUse hook with the tool call on stdin. Exits 2
(block, with the reason on stderr) when the command would rewrite shared
history or escape the agent's branch; exits 0 otherwise.`,
	RunE: runGuard,
}

func init() {
	guardCmd.Flags().StringVar(&guardFlags.agent, "agent", "", "agent whose branch namespace applies (required)")
	_ = guardCmd.MarkFlagRequired("agent")
}

// guardInput is the slice of the hook payload the guard cares about.
type guardInput struct {
	ToolInput struct {
		Command string `json:"command"`
	} `json:"tool_input"`
}

func runGuard(cmd *cobra.Command, args []string) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read hook input: %w", err)
	}

	var input guardInput
	if err := json.Unmarshal(data, &input); err != nil {
		// Unparseable input is not this guard's call to block.
		return nil
	}
	if input.ToolInput.Command == "" {
		return nil
	}

	if reason, blocked := sling.BlockedCommand(guardFlags.agent, input.ToolInput.Command); blocked {
		fmt.Fprintln(os.Stderr, reason)
		os.Exit(2)
	}
	return nil
}
