// Package hooks implements the helpers the agent CLI's hooks invoke: prime
// (session-start context), the mail-check debounce, and spec writing. These
// run as short-lived child processes inside agent sessions and communicate
// purely through stdout and the shared state directory.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sprinteroz/overstory/internal/config"
	"github.com/sprinteroz/overstory/internal/git"
	"github.com/sprinteroz/overstory/internal/lifecycle"
	"github.com/sprinteroz/overstory/internal/mulch"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/internal/sling"
	"github.com/sprinteroz/overstory/internal/store"
)

// Primer assembles the session-start context block.
type Primer struct {
	cfg      *config.Config
	sessions *session.Store
	git      git.Runner
	mulch    mulch.Client // nil disables the knowledge primer
}

// NewPrimer wires a primer. mulchClient may be nil.
func NewPrimer(cfg *config.Config, sessions *session.Store, g git.Runner, mulchClient mulch.Client) *Primer {
	return &Primer{cfg: cfg, sessions: sessions, git: g, mulch: mulchClient}
}

// Prime produces the context block for a session start. An empty agent name
// (or "orchestrator") primes the orchestrator itself: it additionally
// captures the current branch into session-branch.txt so later merges know
// where the orchestrator was working.
func (p *Primer) Prime(agentName string) (string, error) {
	if err := HealGitignore(p.cfg.StateDir()); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s\n", p.cfg.Project.Name)
	fmt.Fprintf(&b, "Canonical branch: %s\n", p.cfg.Project.CanonicalBranch)

	if agentName == "" || agentName == "orchestrator" {
		if err := p.primeOrchestrator(&b); err != nil {
			return "", err
		}
	} else {
		if err := p.primeAgent(&b, agentName); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func (p *Primer) primeOrchestrator(b *strings.Builder) error {
	branch, err := p.git.CurrentBranch()
	if err == nil && branch != "" {
		if err := os.WriteFile(p.cfg.SessionBranchPath(), []byte(branch+"\n"), 0644); err != nil {
			return fmt.Errorf("capture session branch: %w", err)
		}
		fmt.Fprintf(b, "Session branch: %s\n", branch)
	}

	active, err := p.sessions.GetActive()
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "\n## Agents (%d active)\n", len(active))
	for _, s := range active {
		fmt.Fprintf(b, "- %s (%s) on %s, state %s\n", s.AgentName, s.Capability, s.TaskID, s.State)
	}

	runs, err := p.sessions.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		fmt.Fprintf(b, "\n## Recent runs\n")
		for i, r := range runs {
			if i == 3 {
				break
			}
			fmt.Fprintf(b, "- %s: %s, %d agents\n", r.ID, r.Status, r.AgentCount)
		}
	}

	p.primeMetrics(b)
	p.primeKnowledge(b, p.cfg.Mulch.Domains)
	return nil
}

// primeMetrics appends recent session metrics when a metrics database exists.
// The database is written by external tooling; any read problem skips the
// section silently.
func (p *Primer) primeMetrics(b *strings.Builder) {
	path := p.cfg.MetricsDBPath()
	if _, err := os.Stat(path); err != nil {
		return
	}

	db, err := store.Open(path, nil)
	if err != nil {
		return
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT agent_name, metric, value FROM metrics
		ORDER BY created_at DESC LIMIT 5
	`)
	if err != nil {
		return
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var agent, metric string
		var value float64
		if err := rows.Scan(&agent, &metric, &value); err != nil {
			return
		}
		lines = append(lines, fmt.Sprintf("- %s %s: %g", agent, metric, value))
	}
	if len(lines) == 0 {
		return
	}

	fmt.Fprintf(b, "\n## Recent metrics\n%s\n", strings.Join(lines, "\n"))
}

func (p *Primer) primeAgent(b *strings.Builder, agentName string) error {
	agentDir := p.cfg.AgentDir(agentName)

	identity, err := sling.LoadIdentity(agentDir)
	if err != nil {
		return err
	}
	if identity != nil {
		fmt.Fprintf(b, "\n## Identity\n")
		fmt.Fprintf(b, "You are %s, a %s at depth %d.\n", identity.AgentName, identity.Capability, identity.Depth)
		fmt.Fprintf(b, "Your branch: %s\n", identity.Branch)
		if identity.Parent != "" {
			fmt.Fprintf(b, "You report to: %s\n", identity.Parent)
		}
		if identity.TaskID != "" {
			fmt.Fprintf(b, "\nYou are bound to task %s.", identity.TaskID)
			if identity.SpecPath != "" {
				fmt.Fprintf(b, " Read %s before working.", identity.SpecPath)
			}
			fmt.Fprintln(b)
		}
	}

	checkpoint, err := lifecycle.LoadCheckpoint(agentDir)
	if err != nil {
		return err
	}
	if checkpoint != nil {
		fmt.Fprintf(b, "\n## Session recovery\n")
		fmt.Fprintf(b, "A previous session checkpointed at %s:\n", checkpoint.CreatedAt)
		fmt.Fprintf(b, "%s\n", checkpoint.Summary)
		if len(checkpoint.ModifiedFiles) > 0 {
			fmt.Fprintf(b, "Modified: %s\n", strings.Join(checkpoint.ModifiedFiles, ", "))
		}
		for _, w := range checkpoint.PendingWork {
			fmt.Fprintf(b, "- TODO: %s\n", w)
		}
	}

	if identity != nil {
		p.primeKnowledge(b, identity.Domains)
	}
	return nil
}

// primeKnowledge appends the knowledge-store primer. Failures are silent;
// priming is advisory.
func (p *Primer) primeKnowledge(b *strings.Builder, domains []string) {
	if p.mulch == nil || !p.cfg.Mulch.Enabled || len(domains) == 0 {
		return
	}
	primer, err := p.mulch.Prime(domains, p.cfg.Mulch.PrimeFormat)
	if err != nil || primer == "" {
		return
	}
	fmt.Fprintf(b, "\n## Knowledge\n%s\n", primer)
}

// HealGitignore makes sure the state directory ignores itself, so agent
// worktrees never commit orchestrator state.
func HealGitignore(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(stateDir, ".gitignore")
	data, err := os.ReadFile(path)
	if err == nil && strings.TrimSpace(string(data)) == "*" {
		return nil
	}
	if err := os.WriteFile(path, []byte("*\n"), 0644); err != nil {
		return fmt.Errorf("write state gitignore: %w", err)
	}
	return nil
}
