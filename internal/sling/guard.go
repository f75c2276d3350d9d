package sling

import (
	"fmt"
	"strings"

	"github.com/sprinteroz/overstory/pkg/overstory"
)

// BlockedCommand reports whether a shell command an agent wants to run is
// dangerous for the swarm, with a human-readable reason. Agents own exactly
// one branch; anything that rewrites shared history or escapes that branch
// is blocked by the pre-tool hook.
func BlockedCommand(agentName, command string) (string, bool) {
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "git" {
		return "", false
	}
	args := fields[1:]

	if hasSubsequence(args, "reset", "--hard") {
		return "git reset --hard discards work in a shared worktree", true
	}
	if hasSubsequence(args, "checkout", "-b") || hasSubsequence(args, "switch", "-c") {
		return "creating branches is reserved for the orchestrator", true
	}

	for i, a := range args {
		if a != "push" {
			continue
		}
		if branch, bad := badPushRef(agentName, args[i+1:]); bad {
			return fmt.Sprintf("push to %q is not allowed; push only %s branches",
				branch, overstory.BranchPrefix+agentName+"/"), true
		}
	}
	return "", false
}

// badPushRef inspects the arguments after "push". The first two non-flag
// tokens are remote and refspec; a push of the current branch (no refspec)
// is always allowed since the agent lives on its own branch.
func badPushRef(agentName string, args []string) (string, bool) {
	var positional []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		positional = append(positional, a)
	}
	if len(positional) < 2 {
		return "", false
	}

	ref := strings.TrimPrefix(positional[1], "+")
	if _, dst, found := strings.Cut(ref, ":"); found {
		// src:dst refspec; the destination is what needs protecting.
		ref = dst
	}
	if ref == "main" || ref == "master" {
		return ref, true
	}
	if !strings.HasPrefix(ref, overstory.BranchPrefix+agentName+"/") {
		return ref, true
	}
	return "", false
}

func hasSubsequence(args []string, first, second string) bool {
	seen := false
	for _, a := range args {
		if a == first {
			seen = true
		}
		if seen && a == second {
			return true
		}
	}
	return false
}
