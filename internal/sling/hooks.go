package sling

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Hook settings mirror the agent CLI's settings.json schema: a permissions
// block plus lifecycle hooks that call back into the ov binary with the
// agent's name baked in.

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

type permissionSettings struct {
	Deny []string `json:"deny,omitempty"`
}

type hookSettings struct {
	Permissions *permissionSettings      `json:"permissions,omitempty"`
	Hooks       map[string][]hookMatcher `json:"hooks"`
}

// DeployHookSettings writes the agent-specific settings file into the
// worktree. Every hook command carries the agent name so helper invocations
// are attributed even when the environment is lost. Read-only capabilities
// (scout, reviewer) get their write tools denied outright; everyone gets the
// command guard on terminal use.
func DeployHookSettings(worktreePath, agentName string, capability overstory.Capability) error {
	settings := hookSettings{
		Hooks: map[string][]hookMatcher{
			"SessionStart": {{
				Hooks: []hookCommand{{Type: "command",
					Command: fmt.Sprintf("ov prime --agent %s", agentName)}},
			}},
			"UserPromptSubmit": {{
				Hooks: []hookCommand{{Type: "command",
					Command: fmt.Sprintf("ov mail check --inject --agent %s", agentName)}},
			}},
			"PreToolUse": {{
				Matcher: "Bash",
				Hooks: []hookCommand{{Type: "command",
					Command: fmt.Sprintf("ov guard --agent %s", agentName)}},
			}},
			"PostToolUse": {{
				Hooks: []hookCommand{{Type: "command",
					Command: fmt.Sprintf("ov pulse --agent %s", agentName)}},
			}},
		},
	}
	if capability.ReadOnly() {
		settings.Permissions = &permissionSettings{
			Deny: []string{"Write", "Edit", "NotebookEdit"},
		}
	}

	dir := filepath.Join(worktreePath, ".claude")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal hook settings: %w", err)
	}
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write hook settings: %w", err)
	}
	return nil
}
