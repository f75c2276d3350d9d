// Package merge implements the tiered conflict-resolution engine. A merge
// entry escalates through up to four tiers: a clean git merge, a
// keep-incoming rewrite of conflict blocks, an LLM-assisted per-file
// resolution, and a full re-imagining of the branch's files. Historical
// outcomes recorded in the knowledge store steer which tiers are attempted.
package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sprinteroz/overstory/internal/git"
	"github.com/sprinteroz/overstory/internal/logging"
	"github.com/sprinteroz/overstory/internal/mergeq"
	"github.com/sprinteroz/overstory/internal/mulch"
	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Config gates the optional tiers and the history heuristic.
type Config struct {
	AIResolveEnabled bool
	ReimagineEnabled bool
	SkipFailures     int
}

// Result is the outcome of resolving one merge entry.
type Result struct {
	Entry         *mergeq.Entry
	Success       bool
	Tier          overstory.Tier
	ConflictFiles []string
	ErrorMessage  string
}

// Resolver drives the tier ladder for one repository.
type Resolver struct {
	git    git.Runner
	llm    LLM
	mulch  mulch.Client // nil disables history
	cfg    Config
	logger *logging.DebugLogger
}

// NewResolver creates a resolver. mulchClient may be nil; llm may be nil
// when both optional tiers are disabled.
func NewResolver(g git.Runner, llm LLM, mulchClient mulch.Client, cfg Config, logger *logging.DebugLogger) *Resolver {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Resolver{git: g, llm: llm, mulch: mulchClient, cfg: cfg, logger: logger}
}

// Resolve merges entry's branch into canonical, escalating through the
// enabled tiers. The repo is left clean on failure (merge aborted).
func (r *Resolver) Resolve(entry *mergeq.Entry, canonical, repoRoot string) (*Result, error) {
	// Checkout-skip: re-checking-out a branch we are already on collides
	// with worktrees holding it.
	current, err := r.git.CurrentBranch()
	if err != nil {
		return nil, oops.Wrap(oops.CodeMerge, err, "determine current branch").
			With("branch", entry.BranchName)
	}
	if current != canonical {
		if err := r.git.CheckoutBranch(canonical); err != nil {
			return nil, oops.Wrap(oops.CodeMerge, err, "checkout %s", canonical).
				With("branch", entry.BranchName)
		}
	}

	// Tier 1: clean merge.
	r.logger.Log("merge %s: attempting clean merge into %s", entry.BranchName, canonical)
	if err := r.git.Merge(entry.BranchName); err == nil {
		return &Result{Entry: entry, Success: true, Tier: overstory.TierCleanMerge}, nil
	}

	conflictFiles, err := r.git.UnmergedFiles()
	if err != nil {
		r.abort()
		return nil, oops.Wrap(oops.CodeMerge, err, "list conflicts for %s", entry.BranchName).
			With("branch", entry.BranchName)
	}
	r.logger.Log("merge %s: %d conflicted file(s): %s",
		entry.BranchName, len(conflictFiles), strings.Join(conflictFiles, ", "))

	advice := LoadAdvice(r.mulch, entry.FilesModified, r.cfg.SkipFailures)

	result := r.escalate(entry, canonical, repoRoot, conflictFiles, advice)

	if !result.Success {
		// Best-effort: may be a no-op when a tier already aborted.
		r.abort()
	}
	r.record(entry, result)
	return result, nil
}

// escalate runs tiers 2-4 and returns the final result. The returned Tier
// is the last one attempted.
func (r *Resolver) escalate(entry *mergeq.Entry, canonical, repoRoot string, conflictFiles []string, advice Advice) *Result {
	lastTier := overstory.TierCleanMerge

	if !advice.SkipTiers[overstory.TierAutoResolve] {
		lastTier = overstory.TierAutoResolve
		if r.autoResolve(repoRoot, entry, conflictFiles) {
			return &Result{Entry: entry, Success: true, Tier: overstory.TierAutoResolve, ConflictFiles: conflictFiles}
		}
	} else {
		r.logger.Log("merge %s: skipping auto-resolve per history", entry.BranchName)
	}

	if r.cfg.AIResolveEnabled && !advice.SkipTiers[overstory.TierAIResolve] {
		lastTier = overstory.TierAIResolve
		if r.aiResolve(repoRoot, entry, advice) {
			return &Result{Entry: entry, Success: true, Tier: overstory.TierAIResolve, ConflictFiles: conflictFiles}
		}
	}

	if r.cfg.ReimagineEnabled && !advice.SkipTiers[overstory.TierReimagine] {
		lastTier = overstory.TierReimagine
		if r.reimagine(repoRoot, entry, canonical) {
			return &Result{Entry: entry, Success: true, Tier: overstory.TierReimagine, ConflictFiles: conflictFiles}
		}
	}

	return &Result{
		Entry:         entry,
		Success:       false,
		Tier:          lastTier,
		ConflictFiles: conflictFiles,
		ErrorMessage:  fmt.Sprintf("all enabled tiers failed for %s", entry.BranchName),
	}
}

// autoResolve rewrites every conflict block keeping only the incoming side.
// All conflicted files must carry markers; delete/modify conflicts fail the
// tier.
func (r *Resolver) autoResolve(repoRoot string, entry *mergeq.Entry, conflictFiles []string) bool {
	var staged []string
	for _, file := range conflictFiles {
		path := filepath.Join(repoRoot, file)
		content, err := os.ReadFile(path)
		if err != nil {
			r.logger.Log("auto-resolve %s: read %s: %v", entry.BranchName, file, err)
			return false
		}

		resolved, err := ResolveKeepIncoming(string(content))
		if err != nil {
			r.logger.Log("auto-resolve %s: %s: %v", entry.BranchName, file, err)
			return false
		}
		if err := os.WriteFile(path, []byte(resolved), 0644); err != nil {
			r.logger.Log("auto-resolve %s: write %s: %v", entry.BranchName, file, err)
			return false
		}
		staged = append(staged, file)
	}

	return r.stageAndCommit(staged, fmt.Sprintf("Merge %s (auto-resolved, incoming kept)", entry.BranchName))
}

// aiResolve asks the LLM for raw resolved content per remaining conflicted
// file. Every response must pass the prose heuristic; one prose response
// fails the tier.
func (r *Resolver) aiResolve(repoRoot string, entry *mergeq.Entry, advice Advice) bool {
	if r.llm == nil {
		return false
	}

	conflictFiles, err := r.git.UnmergedFiles()
	if err != nil || len(conflictFiles) == 0 {
		return false
	}

	resolved := make(map[string]string, len(conflictFiles))
	for _, file := range conflictFiles {
		content, err := os.ReadFile(filepath.Join(repoRoot, file))
		if err != nil {
			return false
		}

		prompt := buildResolvePrompt(file, string(content), advice.PastResolutions)
		out, err := r.llm.Complete(prompt, repoRoot)
		if err != nil {
			r.logger.Log("ai-resolve %s: %s: %v", entry.BranchName, file, err)
			return false
		}
		if IsProse(out) {
			r.logger.Log("ai-resolve %s: %s: response rejected as prose", entry.BranchName, file)
			return false
		}
		resolved[file] = out
	}

	var staged []string
	for file, content := range resolved {
		if err := os.WriteFile(filepath.Join(repoRoot, file), []byte(content), 0644); err != nil {
			return false
		}
		staged = append(staged, file)
	}
	return r.stageAndCommit(staged, fmt.Sprintf("Merge %s (ai-resolved)", entry.BranchName))
}

// reimagine abandons the in-progress merge and asks the LLM to reconcile
// both versions of every file the entry modified.
func (r *Resolver) reimagine(repoRoot string, entry *mergeq.Entry, canonical string) bool {
	if r.llm == nil || len(entry.FilesModified) == 0 {
		return false
	}

	r.abort()

	var staged []string
	for _, file := range entry.FilesModified {
		// Either side may lack the file (added or deleted on one branch).
		canonicalContent, _ := r.git.ShowFile(canonical, file)
		branchContent, _ := r.git.ShowFile(entry.BranchName, file)

		prompt := buildReimaginePrompt(file, canonical, canonicalContent, entry.BranchName, branchContent)
		out, err := r.llm.Complete(prompt, repoRoot)
		if err != nil {
			r.logger.Log("reimagine %s: %s: %v", entry.BranchName, file, err)
			return false
		}
		if IsProse(out) {
			r.logger.Log("reimagine %s: %s: response rejected as prose", entry.BranchName, file)
			return false
		}

		path := filepath.Join(repoRoot, file)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return false
		}
		if err := os.WriteFile(path, []byte(out), 0644); err != nil {
			return false
		}
		staged = append(staged, file)
	}

	return r.stageAndCommit(staged, fmt.Sprintf("Reimagine merge of %s", entry.BranchName))
}

// stageAndCommit stages the given files and commits. Empty file sets fail.
func (r *Resolver) stageAndCommit(files []string, message string) bool {
	if len(files) == 0 {
		return false
	}
	if err := r.git.Add(files...); err != nil {
		r.logger.Log("stage: %v", err)
		return false
	}
	if err := r.git.Commit(message); err != nil {
		r.logger.Log("commit: %v", err)
		return false
	}
	return true
}

// abort best-effort aborts an in-progress merge.
func (r *Resolver) abort() {
	if err := r.git.MergeAbort(); err != nil {
		r.logger.Log("merge abort: %v", err)
	}
}

// record stores the outcome in the knowledge store. Clean merges are not
// recorded; recording failures are swallowed.
func (r *Resolver) record(entry *mergeq.Entry, result *Result) {
	if result.Tier == overstory.TierCleanMerge && result.Success {
		return
	}
	RecordOutcome(r.mulch, Pattern{
		Resolved: result.Success,
		Tier:     result.Tier,
		Branch:   entry.BranchName,
		Agent:    entry.AgentName,
		Files:    result.ConflictFiles,
	})
}

func buildResolvePrompt(file, content string, pastResolutions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resolve the merge conflict in %s.\n\n", file)
	b.WriteString("Output ONLY the complete resolved file content. ")
	b.WriteString("No prose, no explanation, no code fencing.\n\n")
	if len(pastResolutions) > 0 {
		b.WriteString("Historical context from previous merges:\n")
		for _, p := range pastResolutions {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "File content with conflict markers:\n\n%s", content)
	return b.String()
}

func buildReimaginePrompt(file, canonical, canonicalContent, branch, branchContent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Two branches diverged on %s. Produce the final reconciled file.\n\n", file)
	b.WriteString("Output ONLY the complete file content. ")
	b.WriteString("No prose, no explanation, no code fencing.\n\n")
	fmt.Fprintf(&b, "Version on %s:\n\n%s\n\n", canonical, canonicalContent)
	fmt.Fprintf(&b, "Version on %s:\n\n%s", branch, branchContent)
	return b.String()
}
