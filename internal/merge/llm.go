package merge

import (
	"fmt"
	"os/exec"
)

// LLM produces raw file content from a resolution prompt. The production
// implementation shells out to the claude CLI; tests substitute a canned
// responder.
type LLM interface {
	Complete(prompt, dir string) (string, error)
}

// CLIRunner invokes the claude CLI in print mode.
type CLIRunner struct {
	Model string
}

// Complete runs a one-shot prompt and returns the raw text response.
func (r *CLIRunner) Complete(prompt, dir string) (string, error) {
	args := []string{"-p", "--output-format", "text"}
	if r.Model != "" {
		args = append(args, "--model", r.Model)
	}
	args = append(args, prompt)

	cmd := exec.Command("claude", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}
	return string(out), nil
}

// Verify CLIRunner implements LLM at compile time.
var _ LLM = (*CLIRunner)(nil)
