package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/config"
	"github.com/sprinteroz/overstory/internal/hooks"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .overstory state directory in this project",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := CheckTmux(); err != nil {
		return err
	}
	if err := CheckClaudeCLI(); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	stateDir := filepath.Join(cwd, config.StateDirName)
	if _, err := os.Stat(stateDir); err == nil {
		fmt.Printf("%s already exists, nothing to do\n", stateDir)
		return nil
	}

	for _, dir := range []string{stateDir,
		filepath.Join(stateDir, "worktrees"),
		filepath.Join(stateDir, "specs"),
		filepath.Join(stateDir, "agents"),
		filepath.Join(stateDir, "logs"),
		filepath.Join(stateDir, "pending-nudges"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := hooks.HealGitignore(stateDir); err != nil {
		return err
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}

	fmt.Printf("Initialized overstory in %s\n", stateDir)
	fmt.Println("Edit .overstory/config.yaml to tune limits, then spawn a lead with 'ov sling'.")
	return nil
}
