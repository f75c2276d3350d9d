// Package mulch wraps the external knowledge-store CLI. The orchestrator
// records merge-conflict patterns into it and queries them back to steer
// tier selection; all calls are best-effort from the caller's perspective.
package mulch

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Client is the knowledge-store surface the merge resolver and prime flow
// need. Implementations may be nil-checked by callers; a nil client means
// the knowledge store is disabled.
type Client interface {
	// QueryPatterns returns recorded pattern lines carrying the given tag.
	QueryPatterns(tag string) ([]string, error)
	// RecordPattern stores a pattern line with tags.
	RecordPattern(pattern string, tags []string) error
	// Prime returns a context primer for the given domains.
	Prime(domains []string, format string) (string, error)
}

// CLIClient shells out to the mulch binary.
type CLIClient struct {
	projectRoot string
}

// NewCLIClient creates a client operating in the given project root.
func NewCLIClient(projectRoot string) *CLIClient {
	return &CLIClient{projectRoot: projectRoot}
}

// run executes mulch with the given arguments.
func (c *CLIClient) run(args ...string) (string, error) {
	cmd := exec.Command("mulch", args...)
	cmd.Dir = c.projectRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("mulch %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// QueryPatterns returns the stored pattern lines tagged with tag. The CLI
// emits a JSON array of strings; a plain-text fallback of one pattern per
// line is also accepted.
func (c *CLIClient) QueryPatterns(tag string) ([]string, error) {
	out, err := c.run("query", "--type", "pattern", "--tag", tag, "--format", "json")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var patterns []string
	if err := json.Unmarshal([]byte(out), &patterns); err == nil {
		return patterns, nil
	}
	return strings.Split(out, "\n"), nil
}

// RecordPattern stores a pattern line with the given tags.
func (c *CLIClient) RecordPattern(pattern string, tags []string) error {
	args := []string{"record", "pattern", pattern}
	for _, t := range tags {
		args = append(args, "--tag", t)
	}
	_, err := c.run(args...)
	return err
}

// Prime returns a knowledge primer for the given domains.
func (c *CLIClient) Prime(domains []string, format string) (string, error) {
	args := []string{"prime"}
	if len(domains) > 0 {
		args = append(args, "--domains", strings.Join(domains, ","))
	}
	if format != "" {
		args = append(args, "--format", format)
	}
	return c.run(args...)
}

// Verify CLIClient implements Client at compile time.
var _ Client = (*CLIClient)(nil)
