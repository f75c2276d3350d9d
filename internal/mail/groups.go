package mail

import (
	"strings"

	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Group addressing. The accepted forms are:
//
//	all                 every active agent
//	group:<name>        where <name> is "all" or a capability
//	<capability>s       plural shorthand, e.g. "builders", "scouts"
//
// The plural form would be ambiguous for a capability whose name ends in
// "s"; the closed capability set contains none, and "custom" deliberately
// has no plural group.

// IsGroupAddress reports whether addr names a group rather than an agent.
func IsGroupAddress(addr string) bool {
	_, ok := parseGroup(addr)
	return ok
}

// parseGroup returns the capability a group address selects, with
// overstory.Capability("") meaning "all capabilities".
func parseGroup(addr string) (overstory.Capability, bool) {
	if addr == "all" {
		return "", true
	}
	if name, ok := strings.CutPrefix(addr, "group:"); ok {
		if name == "all" {
			return "", true
		}
		c := overstory.Capability(name)
		if c.Valid() {
			return c, true
		}
		return "", false
	}
	if singular, ok := strings.CutSuffix(addr, "s"); ok {
		c := overstory.Capability(singular)
		if c.Valid() && c != overstory.CapCustom {
			return c, true
		}
	}
	return "", false
}

// ResolveGroup expands a group address against the active agent names,
// excluding the sender. Returns the recipient names in stable order.
func ResolveGroup(addr, sender string, active []Recipient) ([]string, bool) {
	want, ok := parseGroup(addr)
	if !ok {
		return nil, false
	}

	var out []string
	for _, r := range active {
		if r.AgentName == sender {
			continue
		}
		if want != "" && r.Capability != want {
			continue
		}
		out = append(out, r.AgentName)
	}
	return out, true
}

// Recipient is the slice of session state group resolution needs.
type Recipient struct {
	AgentName  string
	Capability overstory.Capability
}
