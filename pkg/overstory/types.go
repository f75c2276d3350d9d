// Package overstory defines the shared domain types for the orchestrator:
// agent capabilities, session states, mail enums, and merge tiers.
package overstory

import (
	"fmt"
	"strings"
	"time"
)

// Capability is the role an agent plays in the swarm.
type Capability string

const (
	CapLead        Capability = "lead"
	CapBuilder     Capability = "builder"
	CapScout       Capability = "scout"
	CapReviewer    Capability = "reviewer"
	CapMerger      Capability = "merger"
	CapCoordinator Capability = "coordinator"
	CapMonitor     Capability = "monitor"
	CapCustom      Capability = "custom"
)

// Capabilities lists every recognized capability.
var Capabilities = []Capability{
	CapLead, CapBuilder, CapScout, CapReviewer,
	CapMerger, CapCoordinator, CapMonitor, CapCustom,
}

// Valid reports whether c is a recognized capability.
func (c Capability) Valid() bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return false
}

// Persistent reports whether the capability belongs to a long-lived agent
// that is flipped to working by the watchdog rather than by inbound mail.
func (c Capability) Persistent() bool {
	return c == CapCoordinator || c == CapMonitor
}

// ReadOnly reports whether agents of this capability are denied write tools.
func (c Capability) ReadOnly() bool {
	return c == CapScout || c == CapReviewer
}

// AgentState is the lifecycle state of a running agent session.
type AgentState string

const (
	StateBooting   AgentState = "booting"
	StateWorking   AgentState = "working"
	StateStalled   AgentState = "stalled"
	StateZombie    AgentState = "zombie"
	StateCompleted AgentState = "completed"
)

// Terminal reports whether the state permits no further mutation.
func (s AgentState) Terminal() bool {
	return s == StateCompleted || s == StateZombie
}

// Active reports whether the state counts against concurrency limits.
func (s AgentState) Active() bool {
	return s == StateBooting || s == StateWorking || s == StateStalled
}

// Valid reports whether s is a recognized state.
func (s AgentState) Valid() bool {
	switch s {
	case StateBooting, StateWorking, StateStalled, StateZombie, StateCompleted:
		return true
	}
	return false
}

// Priority is the urgency of a mail message.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a recognized priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Nudges reports whether the priority alone triggers a pending-nudge marker.
func (p Priority) Nudges() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

// MailType categorizes a mail message.
type MailType string

const (
	MailStatus      MailType = "status"
	MailRequest     MailType = "request"
	MailWorkerDone  MailType = "worker_done"
	MailMergeReady  MailType = "merge_ready"
	MailError       MailType = "error"
	MailEscalation  MailType = "escalation"
	MailMergeFailed MailType = "merge_failed"
	MailDispatch    MailType = "dispatch"
)

// Valid reports whether t is a recognized mail type.
func (t MailType) Valid() bool {
	switch t {
	case MailStatus, MailRequest, MailWorkerDone, MailMergeReady,
		MailError, MailEscalation, MailMergeFailed, MailDispatch:
		return true
	}
	return false
}

// Nudges reports whether the type alone triggers a pending-nudge marker.
func (t MailType) Nudges() bool {
	switch t {
	case MailWorkerDone, MailMergeReady, MailError, MailEscalation, MailMergeFailed:
		return true
	}
	return false
}

// MergeStatus is the state of a merge-queue entry.
type MergeStatus string

const (
	MergePending  MergeStatus = "pending"
	MergeMerging  MergeStatus = "merging"
	MergeMerged   MergeStatus = "merged"
	MergeConflict MergeStatus = "conflict"
	MergeFailed   MergeStatus = "failed"
)

// Valid reports whether s is a recognized merge status.
func (s MergeStatus) Valid() bool {
	switch s {
	case MergePending, MergeMerging, MergeMerged, MergeConflict, MergeFailed:
		return true
	}
	return false
}

// Tier names a step in the merge escalation ladder.
type Tier string

const (
	TierCleanMerge  Tier = "clean-merge"
	TierAutoResolve Tier = "auto-resolve"
	TierAIResolve   Tier = "ai-resolve"
	TierReimagine   Tier = "reimagine"
)

// Valid reports whether t is a recognized tier.
func (t Tier) Valid() bool {
	switch t {
	case TierCleanMerge, TierAutoResolve, TierAIResolve, TierReimagine:
		return true
	}
	return false
}

// EventType categorizes a stored event.
type EventType string

const (
	EventToolStart    EventType = "tool_start"
	EventToolEnd      EventType = "tool_end"
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventMailSent     EventType = "mail_sent"
	EventMailReceived EventType = "mail_received"
	EventSpawn        EventType = "spawn"
	EventError        EventType = "error"
	EventCustom       EventType = "custom"
)

// EventLevel is the severity of a stored event.
type EventLevel string

const (
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// BranchPrefix is the namespace every agent branch lives under.
const BranchPrefix = "overstory/"

// BranchName returns the canonical branch name for an agent working a task:
// overstory/{agentName}/{taskId}.
func BranchName(agentName, taskID string) string {
	return BranchPrefix + agentName + "/" + taskID
}

// ParseBranch splits an overstory branch name into agent name and task id.
// The pattern is accepted strictly: exactly overstory/{agent}/{task}.
func ParseBranch(branch string) (agentName, taskID string, err error) {
	rest, ok := strings.CutPrefix(branch, BranchPrefix)
	if !ok {
		return "", "", fmt.Errorf("branch %q does not match overstory/{agent}/{task}", branch)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("branch %q does not match overstory/{agent}/{task}", branch)
	}
	return parts[0], parts[1], nil
}

// SessionName returns the terminal-session name for an agent:
// overstory-{projectName}-{agentName}.
func SessionName(projectName, agentName string) string {
	return "overstory-" + projectName + "-" + agentName
}

// Timestamp formats t the way every store persists it: UTC ISO-8601 with
// millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseTimestamp parses a stored timestamp, accepting second or millisecond
// precision.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05.000Z07:00", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
