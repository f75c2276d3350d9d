package overstory

import (
	"testing"
	"time"
)

func TestBranchNameRoundTrip(t *testing.T) {
	branch := BranchName("builder-1", "t-42")
	if branch != "overstory/builder-1/t-42" {
		t.Fatalf("branch = %s", branch)
	}

	agent, task, err := ParseBranch(branch)
	if err != nil {
		t.Fatal(err)
	}
	if agent != "builder-1" || task != "t-42" {
		t.Errorf("parsed (%s, %s)", agent, task)
	}
}

func TestParseBranchTaskWithSlashes(t *testing.T) {
	// Task ids may contain slashes; only the first two segments are fixed.
	agent, task, err := ParseBranch("overstory/scout-1/epic/sub-task")
	if err != nil {
		t.Fatal(err)
	}
	if agent != "scout-1" || task != "epic/sub-task" {
		t.Errorf("parsed (%s, %s)", agent, task)
	}
}

func TestParseBranchRejects(t *testing.T) {
	for _, branch := range []string{
		"main",
		"feature/x",
		"overstory/only-agent",
		"overstory//t-1",
		"overstory/agent/",
		"overstory/",
	} {
		if _, _, err := ParseBranch(branch); err == nil {
			t.Errorf("ParseBranch(%q) accepted", branch)
		}
	}
}

func TestSessionName(t *testing.T) {
	if got := SessionName("proj", "builder-1"); got != "overstory-proj-builder-1" {
		t.Errorf("SessionName = %s", got)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.UTC)
	s := Timestamp(now)
	if s != "2026-03-01T12:30:45.123Z" {
		t.Errorf("Timestamp = %s", s)
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(now) {
		t.Errorf("parsed = %v, want %v", parsed, now)
	}

	// Second-precision timestamps from older rows still parse.
	if _, err := ParseTimestamp("2026-03-01T12:30:45Z"); err != nil {
		t.Errorf("second precision: %v", err)
	}
}

func TestStatePredicates(t *testing.T) {
	for _, s := range []AgentState{StateBooting, StateWorking, StateStalled} {
		if !s.Active() || s.Terminal() {
			t.Errorf("%s should be active and non-terminal", s)
		}
	}
	for _, s := range []AgentState{StateZombie, StateCompleted} {
		if s.Active() || !s.Terminal() {
			t.Errorf("%s should be terminal and inactive", s)
		}
	}
}

func TestNudgeTriggers(t *testing.T) {
	nudging := []MailType{MailWorkerDone, MailMergeReady, MailError, MailEscalation, MailMergeFailed}
	for _, mt := range nudging {
		if !mt.Nudges() {
			t.Errorf("%s should nudge", mt)
		}
	}
	for _, mt := range []MailType{MailStatus, MailRequest, MailDispatch} {
		if mt.Nudges() {
			t.Errorf("%s should not nudge", mt)
		}
	}

	if !PriorityHigh.Nudges() || !PriorityUrgent.Nudges() {
		t.Error("high and urgent priorities should nudge")
	}
	if PriorityLow.Nudges() || PriorityNormal.Nudges() {
		t.Error("low and normal priorities should not nudge")
	}
}

func TestCapabilityPredicates(t *testing.T) {
	if !CapCoordinator.Persistent() || !CapMonitor.Persistent() {
		t.Error("coordinator and monitor are persistent")
	}
	if CapBuilder.Persistent() {
		t.Error("builder is not persistent")
	}
	if !CapScout.ReadOnly() || !CapReviewer.ReadOnly() {
		t.Error("scout and reviewer are read-only")
	}
	if CapBuilder.ReadOnly() {
		t.Error("builder is not read-only")
	}
	if Capability("wizard").Valid() {
		t.Error("unknown capability accepted")
	}
}
