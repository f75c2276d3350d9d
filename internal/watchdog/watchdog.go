// Package watchdog evaluates the health of running agent sessions. It never
// kills anything itself; it only derives state transitions (working, stalled,
// zombie) from terminal liveness and activity age, and records them.
package watchdog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sprinteroz/overstory/internal/events"
	"github.com/sprinteroz/overstory/internal/logging"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/internal/tmux"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Thresholds are the activity-age cutoffs, in milliseconds.
type Thresholds struct {
	StaleMs  int
	ZombieMs int
}

// Transition records one applied state change.
type Transition struct {
	AgentName string
	From      overstory.AgentState
	To        overstory.AgentState
}

// Watchdog sweeps the session registry.
type Watchdog struct {
	sessions   *session.Store
	tmux       tmux.Runner
	events     *events.Store // nil disables event recording
	thresholds Thresholds
	logger     *logging.DebugLogger

	now func() time.Time
}

// New wires a watchdog. events may be nil.
func New(sessions *session.Store, t tmux.Runner, eventStore *events.Store,
	thresholds Thresholds, logger *logging.DebugLogger) *Watchdog {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Watchdog{
		sessions:   sessions,
		tmux:       t,
		events:     eventStore,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// EvaluateState derives the state a session should be in, given terminal
// liveness and the thresholds. Persistent capabilities (coordinator,
// monitor) are flipped out of booting here because no inbound mail will
// ever do it for them.
func EvaluateState(sess *session.Session, alive bool, thresholds Thresholds, now time.Time) overstory.AgentState {
	if !alive {
		return overstory.StateZombie
	}
	if sess.Capability.Persistent() && sess.State == overstory.StateBooting {
		return overstory.StateWorking
	}

	idle := now.Sub(sess.LastActivity)
	if thresholds.ZombieMs > 0 && idle > time.Duration(thresholds.ZombieMs)*time.Millisecond {
		return overstory.StateZombie
	}
	if thresholds.StaleMs > 0 && idle > time.Duration(thresholds.StaleMs)*time.Millisecond {
		return overstory.StateStalled
	}
	return sess.State
}

// Sweep evaluates every active session once and applies the transitions
// that differ from the stored state. Per-session failures are logged and
// skipped; the sweep itself only fails when the registry is unreadable.
func (w *Watchdog) Sweep() ([]Transition, error) {
	active, err := w.sessions.GetActive()
	if err != nil {
		return nil, err
	}

	now := w.now()
	var applied []Transition
	for _, sess := range active {
		alive := w.tmux.IsSessionAlive(sess.TmuxSession)
		derived := EvaluateState(sess, alive, w.thresholds, now)
		if derived == sess.State {
			continue
		}

		if err := w.sessions.UpdateState(sess.AgentName, derived); err != nil {
			w.logger.Log("watchdog %s: %s -> %s: %v", sess.AgentName, sess.State, derived, err)
			continue
		}
		w.logger.Log("watchdog %s: %s -> %s", sess.AgentName, sess.State, derived)
		applied = append(applied, Transition{AgentName: sess.AgentName, From: sess.State, To: derived})
		w.record(sess, derived, alive)
	}
	return applied, nil
}

// Run sweeps on the given interval until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(); err != nil {
				w.logger.Log("watchdog sweep: %v", err)
			}
		}
	}
}

func (w *Watchdog) record(sess *session.Session, to overstory.AgentState, alive bool) {
	if w.events == nil {
		return
	}
	data, _ := json.Marshal(map[string]any{
		"from":          string(sess.State),
		"to":            string(to),
		"terminalAlive": alive,
	})
	level := overstory.LevelInfo
	if to == overstory.StateZombie {
		level = overstory.LevelWarn
	}
	runID := ""
	if sess.RunID != nil {
		runID = *sess.RunID
	}
	_, err := w.events.Insert(&events.Event{
		RunID:     runID,
		AgentName: sess.AgentName,
		SessionID: &sess.ID,
		Type:      overstory.EventCustom,
		Level:     level,
		Data:      string(data),
	})
	if err != nil {
		w.logger.Log("watchdog %s: record transition: %v", sess.AgentName, err)
	}
}
