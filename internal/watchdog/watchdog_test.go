package watchdog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

var testThresholds = Thresholds{StaleMs: 300000, ZombieMs: 600000}

func TestEvaluateState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := func(state overstory.AgentState, capability overstory.Capability, idleMs int) *session.Session {
		return &session.Session{
			AgentName:    "a",
			Capability:   capability,
			State:        state,
			LastActivity: now.Add(-time.Duration(idleMs) * time.Millisecond),
		}
	}

	tests := []struct {
		name  string
		sess  *session.Session
		alive bool
		want  overstory.AgentState
	}{
		{"dead terminal", sess(overstory.StateWorking, overstory.CapBuilder, 0), false, overstory.StateZombie},
		{"dead terminal while booting", sess(overstory.StateBooting, overstory.CapBuilder, 0), false, overstory.StateZombie},
		{"persistent booting flips to working", sess(overstory.StateBooting, overstory.CapCoordinator, 0), true, overstory.StateWorking},
		{"monitor booting flips to working", sess(overstory.StateBooting, overstory.CapMonitor, 0), true, overstory.StateWorking},
		{"builder booting stays booting", sess(overstory.StateBooting, overstory.CapBuilder, 0), true, overstory.StateBooting},
		{"idle past zombie threshold", sess(overstory.StateWorking, overstory.CapBuilder, 600001), true, overstory.StateZombie},
		{"idle past stale threshold", sess(overstory.StateWorking, overstory.CapBuilder, 300001), true, overstory.StateStalled},
		{"idle at stale threshold exactly", sess(overstory.StateWorking, overstory.CapBuilder, 300000), true, overstory.StateWorking},
		{"fresh activity", sess(overstory.StateWorking, overstory.CapBuilder, 1000), true, overstory.StateWorking},
		{"stalled agent recovers nothing by itself", sess(overstory.StateStalled, overstory.CapBuilder, 1000), true, overstory.StateStalled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateState(tt.sess, tt.alive, testThresholds, now)
			if got != tt.want {
				t.Errorf("EvaluateState = %s, want %s", got, tt.want)
			}
		})
	}
}

type fakeTmux struct {
	alive map[string]bool
}

func (f *fakeTmux) CreateSession(name, cwd, command string, env map[string]string) (int, error) {
	return 0, nil
}
func (f *fakeTmux) KillSession(name string) error       { return nil }
func (f *fakeTmux) ListSessions() ([]string, error)     { return nil, nil }
func (f *fakeTmux) IsSessionAlive(name string) bool     { return f.alive[name] }
func (f *fakeTmux) SendKeys(name, keys string) error    { return nil }
func (f *fakeTmux) CurrentSessionName() (string, error) { return "", nil }

func TestSweep(t *testing.T) {
	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Now()
	add := func(name string, capability overstory.Capability, state overstory.AgentState, lastActivity time.Time) {
		t.Helper()
		err := store.Upsert(&session.Session{
			ID:           "sess-" + name,
			AgentName:    name,
			Capability:   capability,
			WorktreePath: "/tmp/" + name,
			BranchName:   overstory.BranchName(name, "t-1"),
			TaskID:       "t-" + name,
			TmuxSession:  "tmux-" + name,
			State:        state,
			StartedAt:    lastActivity,
			LastActivity: lastActivity,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	add("dead", overstory.CapBuilder, overstory.StateWorking, now)
	add("coord", overstory.CapCoordinator, overstory.StateBooting, now)
	add("stale", overstory.CapBuilder, overstory.StateWorking, now.Add(-10*time.Minute))
	add("fine", overstory.CapBuilder, overstory.StateWorking, now)

	tm := &fakeTmux{alive: map[string]bool{
		"tmux-coord": true,
		"tmux-stale": true,
		"tmux-fine":  true,
	}}

	w := New(store, tm, nil, Thresholds{StaleMs: 300000, ZombieMs: 3600000}, nil)
	w.now = func() time.Time { return now }

	transitions, err := w.Sweep()
	if err != nil {
		t.Fatal(err)
	}

	got := map[string]overstory.AgentState{}
	for _, tr := range transitions {
		got[tr.AgentName] = tr.To
	}
	want := map[string]overstory.AgentState{
		"dead":  overstory.StateZombie,
		"coord": overstory.StateWorking,
		"stale": overstory.StateStalled,
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for name, state := range want {
		if got[name] != state {
			t.Errorf("%s -> %s, want %s", name, got[name], state)
		}
	}

	// Transitions are durable and stalled-since is stamped.
	stale, err := store.GetByName("stale")
	if err != nil {
		t.Fatal(err)
	}
	if stale.State != overstory.StateStalled {
		t.Errorf("stale state = %s", stale.State)
	}
	if stale.StalledSince == nil {
		t.Error("stalled session missing stalled-since")
	}

	// A second sweep is idempotent for unchanged sessions.
	transitions, err = w.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if len(transitions) != 0 {
		t.Errorf("second sweep applied %v, want none", transitions)
	}
}
