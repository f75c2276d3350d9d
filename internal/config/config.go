// Package config handles configuration loading for overstory. Settings live
// in {project}/.overstory/config.yaml; the project root is resolved
// worktree-aware so that hook helpers running inside an agent worktree find
// the parent project's state directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// StateDirName is the hidden directory holding all runtime state.
const StateDirName = ".overstory"

// Config holds all configuration for overstory.
type Config struct {
	Project   ProjectConfig       `mapstructure:"project"`
	Agents    AgentsConfig        `mapstructure:"agents"`
	Worktrees WorktreesConfig     `mapstructure:"worktrees"`
	Merge     MergeConfig         `mapstructure:"merge"`
	Watchdog  WatchdogConfig      `mapstructure:"watchdog"`
	Providers map[string]Provider `mapstructure:"providers"`
	Models    map[string]string   `mapstructure:"models"`
	Mulch     MulchConfig         `mapstructure:"mulch"`
	Logging   LoggingConfig       `mapstructure:"logging"`
}

// ProjectConfig identifies the project and its integration branch.
type ProjectConfig struct {
	Name            string `mapstructure:"name"`
	Root            string `mapstructure:"root"`
	CanonicalBranch string `mapstructure:"canonicalBranch"`
}

// AgentsConfig holds spawn limits and pacing.
type AgentsConfig struct {
	ManifestPath      string `mapstructure:"manifestPath"`
	BaseDir           string `mapstructure:"baseDir"`
	MaxConcurrent     int    `mapstructure:"maxConcurrent"`
	StaggerDelayMs    int    `mapstructure:"staggerDelayMs"`
	MaxDepth          int    `mapstructure:"maxDepth"`
	MaxSessionsPerRun int    `mapstructure:"maxSessionsPerRun"`
}

// WorktreesConfig holds worktree placement settings.
type WorktreesConfig struct {
	BaseDir string `mapstructure:"baseDir"`
}

// MergeConfig gates the optional merge tiers and the history heuristic.
type MergeConfig struct {
	AIResolveEnabled bool `mapstructure:"aiResolveEnabled"`
	ReimagineEnabled bool `mapstructure:"reimagineEnabled"`
	// SkipFailures is the failure count at which an all-failing tier is
	// skipped for overlapping files. Heuristic default, not an invariant.
	SkipFailures int `mapstructure:"skipFailures"`
}

// WatchdogConfig holds health-evaluation thresholds and intervals.
type WatchdogConfig struct {
	Tier0Enabled      bool `mapstructure:"tier0Enabled"`
	Tier0IntervalMs   int  `mapstructure:"tier0IntervalMs"`
	Tier1Enabled      bool `mapstructure:"tier1Enabled"`
	Tier2Enabled      bool `mapstructure:"tier2Enabled"`
	StaleThresholdMs  int  `mapstructure:"staleThresholdMs"`
	ZombieThresholdMs int  `mapstructure:"zombieThresholdMs"`
	NudgeIntervalMs   int  `mapstructure:"nudgeIntervalMs"`
}

// Provider describes an LLM gateway reachable through the Anthropic-shaped
// environment contract.
type Provider struct {
	Type         string `mapstructure:"type"`
	BaseURL      string `mapstructure:"baseUrl"`
	AuthTokenEnv string `mapstructure:"authTokenEnv"`
}

// MulchConfig controls knowledge-store integration.
type MulchConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Domains     []string `mapstructure:"domains"`
	PrimeFormat string   `mapstructure:"primeFormat"`
}

// LoggingConfig holds ambient logging settings.
type LoggingConfig struct {
	Verbose       bool `mapstructure:"verbose"`
	RedactSecrets bool `mapstructure:"redactSecrets"`
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("project.canonicalBranch", "main")
	v.SetDefault("agents.maxConcurrent", 5)
	v.SetDefault("agents.staggerDelayMs", 2000)
	v.SetDefault("agents.maxDepth", 2)
	v.SetDefault("agents.maxSessionsPerRun", 0)
	v.SetDefault("merge.aiResolveEnabled", false)
	v.SetDefault("merge.reimagineEnabled", false)
	v.SetDefault("merge.skipFailures", 2)
	v.SetDefault("watchdog.tier0Enabled", true)
	v.SetDefault("watchdog.tier0IntervalMs", 30000)
	v.SetDefault("watchdog.tier1Enabled", true)
	v.SetDefault("watchdog.tier2Enabled", false)
	v.SetDefault("watchdog.staleThresholdMs", 300000)
	v.SetDefault("watchdog.zombieThresholdMs", 600000)
	v.SetDefault("watchdog.nudgeIntervalMs", 60000)
	v.SetDefault("mulch.enabled", false)
	v.SetDefault("mulch.primeFormat", "compact")
	v.SetDefault("logging.verbose", false)
	v.SetDefault("logging.redactSecrets", true)
}

// Load reads configuration for the project rooted at root. A missing config
// file yields defaults; a present but unreadable one is an error.
func Load(root string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	path := filepath.Join(root, StateDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Project.Root == "" {
		cfg.Project.Root = root
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(root)
	}
	if cfg.Worktrees.BaseDir == "" {
		cfg.Worktrees.BaseDir = filepath.Join(root, StateDirName, "worktrees")
	}
	return cfg, nil
}

// Save writes the configuration to the project's config.yaml.
func Save(cfg *Config) error {
	dir := filepath.Join(cfg.Project.Root, StateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))
	v.Set("project.name", cfg.Project.Name)
	v.Set("project.canonicalBranch", cfg.Project.CanonicalBranch)
	v.Set("agents.maxConcurrent", cfg.Agents.MaxConcurrent)
	v.Set("agents.staggerDelayMs", cfg.Agents.StaggerDelayMs)
	v.Set("agents.maxDepth", cfg.Agents.MaxDepth)
	v.Set("agents.maxSessionsPerRun", cfg.Agents.MaxSessionsPerRun)
	v.Set("merge.aiResolveEnabled", cfg.Merge.AIResolveEnabled)
	v.Set("merge.reimagineEnabled", cfg.Merge.ReimagineEnabled)
	v.Set("watchdog.staleThresholdMs", cfg.Watchdog.StaleThresholdMs)
	v.Set("watchdog.zombieThresholdMs", cfg.Watchdog.ZombieThresholdMs)
	v.Set("logging.verbose", cfg.Logging.Verbose)
	v.Set("logging.redactSecrets", cfg.Logging.RedactSecrets)
	return v.WriteConfig()
}

// StateDir returns the state directory for the configured project.
func (c *Config) StateDir() string {
	return filepath.Join(c.Project.Root, StateDirName)
}

func (c *Config) SessionsDBPath() string   { return filepath.Join(c.StateDir(), "sessions.db") }
func (c *Config) MailDBPath() string       { return filepath.Join(c.StateDir(), "mail.db") }
func (c *Config) MergeQueueDBPath() string { return filepath.Join(c.StateDir(), "merge-queue.db") }
func (c *Config) EventsDBPath() string     { return filepath.Join(c.StateDir(), "events.db") }
func (c *Config) MetricsDBPath() string    { return filepath.Join(c.StateDir(), "metrics.db") }
func (c *Config) CurrentRunPath() string   { return filepath.Join(c.StateDir(), "current-run.txt") }
func (c *Config) SessionBranchPath() string {
	return filepath.Join(c.StateDir(), "session-branch.txt")
}
func (c *Config) PendingNudgesDir() string { return filepath.Join(c.StateDir(), "pending-nudges") }
func (c *Config) MailCheckStatePath() string {
	return filepath.Join(c.StateDir(), "mail-check-state.json")
}
func (c *Config) SpecsDir() string  { return filepath.Join(c.StateDir(), "specs") }
func (c *Config) AgentsDir() string { return filepath.Join(c.StateDir(), "agents") }
func (c *Config) LogsDir() string   { return filepath.Join(c.StateDir(), "logs") }

// AgentDir returns the per-agent state directory.
func (c *Config) AgentDir(agent string) string {
	return filepath.Join(c.AgentsDir(), agent)
}

// StaleThresholdMs returns the stale threshold with its default applied.
func (c *Config) StaleThresholdMs() int {
	if c.Watchdog.StaleThresholdMs <= 0 {
		return 300000
	}
	return c.Watchdog.StaleThresholdMs
}

// ZombieThresholdMs returns the zombie threshold with its default applied.
func (c *Config) ZombieThresholdMs() int {
	if c.Watchdog.ZombieThresholdMs <= 0 {
		return 600000
	}
	return c.Watchdog.ZombieThresholdMs
}
