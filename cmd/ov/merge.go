package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sprinteroz/overstory/internal/config"
	"github.com/sprinteroz/overstory/internal/git"
	"github.com/sprinteroz/overstory/internal/merge"
	"github.com/sprinteroz/overstory/internal/mergeq"
	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

var mergeFlags struct {
	all     bool
	into    string
	jsonOut bool
}

var mergeCmd = &cobra.Command{
	Use:   "merge [branch]",
	Short: "Merge an agent branch (or the whole queue) through the tier ladder",
	Long: `Merge a finished agent branch into the target branch. The target is,
in priority order: --into, the orchestrator's captured session branch,
then the configured canonical branch.

A named branch is enqueued first if the queue does not know it. With
--all, pending queue entries are popped and resolved in FIFO order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMerge,
}

func init() {
	f := mergeCmd.Flags()
	f.BoolVar(&mergeFlags.all, "all", false, "resolve every pending queue entry in order")
	f.StringVar(&mergeFlags.into, "into", "", "target branch to merge into")
	f.BoolVar(&mergeFlags.jsonOut, "json", false, "emit results as JSON")
}

func runMerge(cmd *cobra.Command, args []string) error {
	if mergeFlags.all == (len(args) == 1) {
		return oops.New(oops.CodeValidation, "pass exactly one of <branch> or --all")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := debugLogger(cfg)
	defer logger.Close()

	queue, err := mergeq.Open(cfg.MergeQueueDBPath())
	if err != nil {
		return err
	}
	defer queue.Close()

	g := git.NewRunner(cfg.Project.Root)
	target, err := resolveMergeTarget(cfg)
	if err != nil {
		return err
	}

	var llm merge.LLM
	if cfg.Merge.AIResolveEnabled || cfg.Merge.ReimagineEnabled {
		llm = &merge.CLIRunner{}
	}
	resolver := merge.NewResolver(g, llm, mulchClient(cfg), merge.Config{
		AIResolveEnabled: cfg.Merge.AIResolveEnabled,
		ReimagineEnabled: cfg.Merge.ReimagineEnabled,
		SkipFailures:     cfg.Merge.SkipFailures,
	}, logger)

	var results []*merge.Result
	if mergeFlags.all {
		results, err = mergeAll(queue, resolver, target, cfg.Project.Root)
	} else {
		var res *merge.Result
		res, err = mergeOne(cfg, g, queue, resolver, args[0], target)
		if res != nil {
			results = append(results, res)
		}
	}
	if err != nil {
		return err
	}
	return reportMergeResults(results)
}

// resolveMergeTarget picks the branch to merge into: --into beats the
// captured session branch beats the canonical branch.
func resolveMergeTarget(cfg *config.Config) (string, error) {
	if mergeFlags.into != "" {
		return mergeFlags.into, nil
	}
	data, err := os.ReadFile(cfg.SessionBranchPath())
	if err == nil {
		if branch := strings.TrimSpace(string(data)); branch != "" {
			return branch, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read session branch: %w", err)
	}
	return cfg.Project.CanonicalBranch, nil
}

// mergeOne enqueues the branch if the queue does not hold it, then resolves
// it immediately.
func mergeOne(cfg *config.Config, g git.Runner, queue *mergeq.Queue,
	resolver *merge.Resolver, branch, target string) (*merge.Result, error) {
	entry, err := queue.GetByBranch(branch)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		exists, err := g.BranchExists(branch)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, oops.New(oops.CodeMerge, "no branch %q", branch).
				With("branch", branch)
		}

		agentName, taskID, err := overstory.ParseBranch(branch)
		if err != nil {
			return nil, oops.Wrap(oops.CodeMerge, err, "derive agent from branch")
		}
		files, err := g.ChangedFilesRelative(branch, cfg.Project.CanonicalBranch)
		if err != nil {
			return nil, err
		}
		entry, err = queue.Enqueue(branch, taskID, agentName, files)
		if err != nil {
			return nil, err
		}
	}

	if err := queue.UpdateStatus(branch, overstory.MergeMerging, nil); err != nil {
		return nil, err
	}
	res, err := resolver.Resolve(entry, target, cfg.Project.Root)
	if err != nil {
		_ = queue.UpdateStatus(branch, overstory.MergeFailed, nil)
		return nil, err
	}
	return res, recordMergeStatus(queue, res)
}

// mergeAll pops pending entries in FIFO order and resolves each.
func mergeAll(queue *mergeq.Queue, resolver *merge.Resolver, target, repoRoot string) ([]*merge.Result, error) {
	var results []*merge.Result
	for {
		entry, err := queue.Dequeue()
		if err != nil {
			return results, err
		}
		if entry == nil {
			return results, nil
		}

		res, err := resolver.Resolve(entry, target, repoRoot)
		if err != nil {
			_ = queue.UpdateStatus(entry.BranchName, overstory.MergeFailed, nil)
			return results, err
		}
		if err := recordMergeStatus(queue, res); err != nil {
			return results, err
		}
		results = append(results, res)
	}
}

func recordMergeStatus(queue *mergeq.Queue, res *merge.Result) error {
	if res.Success {
		tier := res.Tier
		return queue.UpdateStatus(res.Entry.BranchName, overstory.MergeMerged, &tier)
	}
	status := overstory.MergeConflict
	if len(res.ConflictFiles) == 0 {
		status = overstory.MergeFailed
	}
	return queue.UpdateStatus(res.Entry.BranchName, status, nil)
}

func reportMergeResults(results []*merge.Result) error {
	if mergeFlags.jsonOut {
		type jsonResult struct {
			Branch        string   `json:"branch"`
			Success       bool     `json:"success"`
			Tier          string   `json:"tier"`
			ConflictFiles []string `json:"conflictFiles,omitempty"`
			Error         string   `json:"error,omitempty"`
		}
		out := make([]jsonResult, len(results))
		for i, r := range results {
			out[i] = jsonResult{
				Branch:        r.Entry.BranchName,
				Success:       r.Success,
				Tier:          string(r.Tier),
				ConflictFiles: r.ConflictFiles,
				Error:         r.ErrorMessage,
			}
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	failed := 0
	for _, r := range results {
		if r.Success {
			fmt.Printf("%s %s (%s)\n", color.GreenString("merged"), r.Entry.BranchName, r.Tier)
		} else {
			failed++
			color.New(color.FgRed).Printf("failed %s at tier %s", r.Entry.BranchName, r.Tier)
			if len(r.ConflictFiles) > 0 {
				fmt.Printf(": %s", strings.Join(r.ConflictFiles, ", "))
			}
			fmt.Println()
		}
	}
	if failed > 0 {
		return oops.New(oops.CodeMerge, "%d of %d merge(s) failed", failed, len(results))
	}
	return nil
}
