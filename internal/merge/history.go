package merge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sprinteroz/overstory/internal/mulch"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// PatternTag is the knowledge-store tag under which merge outcomes are
// recorded and queried.
const PatternTag = "merge-conflict"

// Pattern is one recorded merge outcome parsed back from its sentence form.
type Pattern struct {
	Resolved bool
	Tier     overstory.Tier
	Branch   string
	Agent    string
	Files    []string
}

// Advice is what the resolver derives from history before escalating.
type Advice struct {
	// SkipTiers holds tiers that have only ever failed for overlapping
	// files, at or past the configured failure threshold.
	SkipTiers map[overstory.Tier]bool
	// PastResolutions describes prior successful resolutions, used to
	// enrich the ai-resolve prompt.
	PastResolutions []string
	// PredictedConflictFiles is the union of files seen in relevant
	// patterns.
	PredictedConflictFiles []string
}

// FormatPattern renders a merge outcome in the recorded sentence form:
// "Merge conflict resolved at tier auto-resolve. Branch: b. Agent: a.
// Conflicting files: x,y."
func FormatPattern(p Pattern) string {
	outcome := "failed"
	if p.Resolved {
		outcome = "resolved"
	}
	return fmt.Sprintf("Merge conflict %s at tier %s. Branch: %s. Agent: %s. Conflicting files: %s.",
		outcome, p.Tier, p.Branch, p.Agent, strings.Join(p.Files, ","))
}

var patternRe = regexp.MustCompile(
	`^Merge conflict (resolved|failed) at tier ([a-z-]+)\. Branch: (.*?)\. Agent: (.*?)\. Conflicting files: (.*?)\.$`)

// ParsePattern parses a recorded sentence back into a Pattern. Lines that
// don't match the format are rejected.
func ParsePattern(line string) (*Pattern, bool) {
	m := patternRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, false
	}

	p := &Pattern{
		Resolved: m[1] == "resolved",
		Tier:     overstory.Tier(m[2]),
		Branch:   m[3],
		Agent:    m[4],
	}
	if !p.Tier.Valid() {
		return nil, false
	}
	for _, f := range strings.Split(m[5], ",") {
		if f = strings.TrimSpace(f); f != "" {
			p.Files = append(p.Files, f)
		}
	}
	return p, true
}

// LoadAdvice queries history and derives tier advice for an entry touching
// the given files. Query failures yield empty advice; history is never
// fatal to a merge.
func LoadAdvice(client mulch.Client, filesModified []string, skipFailures int) Advice {
	advice := Advice{SkipTiers: make(map[overstory.Tier]bool)}
	if client == nil {
		return advice
	}
	if skipFailures <= 0 {
		skipFailures = 2
	}

	lines, err := client.QueryPatterns(PatternTag)
	if err != nil {
		return advice
	}

	modified := make(map[string]bool, len(filesModified))
	for _, f := range filesModified {
		modified[f] = true
	}

	failures := make(map[overstory.Tier]int)
	successes := make(map[overstory.Tier]int)
	predicted := make(map[string]bool)

	for _, line := range lines {
		p, ok := ParsePattern(line)
		if !ok {
			continue
		}

		overlaps := false
		for _, f := range p.Files {
			if modified[f] {
				overlaps = true
				break
			}
		}
		if !overlaps {
			continue
		}

		for _, f := range p.Files {
			predicted[f] = true
		}
		if p.Resolved {
			successes[p.Tier]++
			advice.PastResolutions = append(advice.PastResolutions,
				fmt.Sprintf("tier %s resolved a conflict on %s", p.Tier, strings.Join(p.Files, ", ")))
		} else {
			failures[p.Tier]++
		}
	}

	for tier, n := range failures {
		if n >= skipFailures && successes[tier] == 0 {
			advice.SkipTiers[tier] = true
		}
	}
	for f := range predicted {
		advice.PredictedConflictFiles = append(advice.PredictedConflictFiles, f)
	}
	return advice
}

// RecordOutcome stores the outcome of a non-trivial merge. Fire-and-forget:
// recording failures are swallowed.
func RecordOutcome(client mulch.Client, p Pattern) {
	if client == nil {
		return
	}
	_ = client.RecordPattern(FormatPattern(p), []string{PatternTag})
}
