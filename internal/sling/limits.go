package sling

import (
	"time"

	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// CalculateStaggerDelay returns how long a spawn must wait so that agent
// starts are at least delayMs apart. Zero when pacing is disabled, no agent
// is active, or the most recent start is already old enough.
func CalculateStaggerDelay(delayMs int, active []*session.Session, now time.Time) time.Duration {
	if delayMs <= 0 || len(active) == 0 {
		return 0
	}

	var latest time.Time
	for _, s := range active {
		if s.StartedAt.After(latest) {
			latest = s.StartedAt
		}
	}

	remaining := time.Duration(delayMs)*time.Millisecond - now.Sub(latest)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CheckRunSessionLimit reports whether the per-run session cap is exhausted.
// A limit of 0 means unlimited.
func CheckRunSessionLimit(limit, count int) bool {
	return limit > 0 && count >= limit
}

// ParentHasScouts reports whether any of the given sessions is a scout
// spawned by parent. Callers pass the active set; scouts that already
// finished do not vouch for a new builder.
func ParentHasScouts(sessions []*session.Session, parent string) bool {
	for _, s := range sessions {
		if s.Capability == overstory.CapScout && s.ParentAgent != nil && *s.ParentAgent == parent {
			return true
		}
	}
	return false
}
