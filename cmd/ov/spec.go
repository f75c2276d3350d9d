package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/hooks"
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Manage task specs",
}

var specWriteFlags struct {
	body   string
	author string
	stdin  bool
}

var specWriteCmd = &cobra.Command{
	Use:   "write <task-id>",
	Short: "Atomically write a task spec into the specs directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runSpecWrite,
}

func init() {
	f := specWriteCmd.Flags()
	f.StringVar(&specWriteFlags.body, "body", "", "spec body")
	f.StringVar(&specWriteFlags.author, "author", "", "attributed author, recorded in an HTML comment")
	f.BoolVar(&specWriteFlags.stdin, "stdin", false, "read the body from stdin instead of --body")
	specCmd.AddCommand(specWriteCmd)
}

func runSpecWrite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	body := specWriteFlags.body
	if specWriteFlags.stdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		body = string(data)
	}

	path, err := hooks.WriteSpec(cfg.SpecsDir(), args[0], body, specWriteFlags.author)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
