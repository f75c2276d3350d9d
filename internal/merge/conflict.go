package merge

import (
	"fmt"
	"strings"
)

// Conflict markers as git writes them: seven characters each.
const (
	markerOurs   = "<<<<<<<"
	markerBase   = "======="
	markerTheirs = ">>>>>>>"
)

// HasConflictMarkers reports whether content contains a conflict block.
func HasConflictMarkers(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, markerOurs) {
			return true
		}
	}
	return false
}

// ResolveKeepIncoming rewrites every conflict block in content, keeping only
// the incoming side (between ======= and >>>>>>>). Files without markers,
// such as delete/modify conflicts, are rejected: there is nothing to rewrite.
func ResolveKeepIncoming(content string) (string, error) {
	if !HasConflictMarkers(content) {
		return "", fmt.Errorf("no conflict markers found")
	}

	lines := strings.Split(content, "\n")
	var out []string

	const (
		stateNormal = iota
		stateOurs
		stateTheirs
	)
	state := stateNormal

	for _, line := range lines {
		switch state {
		case stateNormal:
			if strings.HasPrefix(line, markerOurs) {
				state = stateOurs
				continue
			}
			out = append(out, line)
		case stateOurs:
			if strings.HasPrefix(line, markerBase) {
				state = stateTheirs
				continue
			}
			if strings.HasPrefix(line, markerTheirs) {
				return "", fmt.Errorf("malformed conflict block: %s before %s", markerTheirs, markerBase)
			}
			// ours side: dropped
		case stateTheirs:
			if strings.HasPrefix(line, markerTheirs) {
				state = stateNormal
				continue
			}
			out = append(out, line)
		}
	}

	if state != stateNormal {
		return "", fmt.Errorf("unterminated conflict block")
	}
	return strings.Join(out, "\n"), nil
}
