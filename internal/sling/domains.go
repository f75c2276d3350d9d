package sling

import (
	"sort"
	"strings"
)

// prefixDomains maps source-tree prefixes to knowledge-store domains.
var prefixDomains = map[string]string{
	"src/commands/": "cli",
	"src/mail/":     "messaging",
	"src/agents/":   "agents",
	"src/merge/":    "architecture",
	"src/worktree/": "architecture",
}

// sourceDomain is the catch-all domain for source files outside the mapped
// subtrees.
const sourceDomain = "core"

// InferDomains maps a task's touched files to knowledge-store domains for
// priming. Files outside src/ contribute nothing; when no file maps, the
// configured fallback domains are returned instead.
func InferDomains(files, fallback []string) []string {
	seen := make(map[string]bool)
	for _, f := range files {
		domain := ""
		for prefix, d := range prefixDomains {
			if strings.HasPrefix(f, prefix) {
				domain = d
				break
			}
		}
		if domain == "" && strings.HasPrefix(f, "src/") {
			domain = sourceDomain
		}
		if domain != "" {
			seen[domain] = true
		}
	}

	if len(seen) == 0 {
		return fallback
	}

	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
