package sling

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Identity is the per-agent record written at spawn time and read back by
// the prime helper to re-anchor an agent after restarts.
type Identity struct {
	AgentName  string               `yaml:"agentName"`
	Capability overstory.Capability `yaml:"capability"`
	TaskID     string               `yaml:"taskId"`
	Parent     string               `yaml:"parent,omitempty"`
	Depth      int                  `yaml:"depth"`
	Branch     string               `yaml:"branch"`
	Worktree   string               `yaml:"worktree"`
	SpecPath   string               `yaml:"specPath,omitempty"`
	Domains    []string             `yaml:"domains,omitempty"`
	SpawnedAt  string               `yaml:"spawnedAt"`
}

const identityFile = "identity.yaml"

// WriteIdentity persists the identity under the agent's state directory.
func WriteIdentity(agentDir string, id Identity) error {
	if id.SpawnedAt == "" {
		id.SpawnedAt = overstory.Timestamp(time.Now())
	}
	if err := os.MkdirAll(agentDir, 0755); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}

	data, err := yaml.Marshal(&id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.WriteFile(filepath.Join(agentDir, identityFile), data, 0644); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// LoadIdentity reads the identity for an agent. A missing file yields
// (nil, nil); the caller decides whether that is an error.
func LoadIdentity(agentDir string) (*Identity, error) {
	data, err := os.ReadFile(filepath.Join(agentDir, identityFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	return &id, nil
}
