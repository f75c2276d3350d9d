package hooks

import (
	"time"

	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// ReportActivity bumps the agent's liveness clock and promotes a booting or
// stalled session back to working. The watchdog reads last_activity to tell
// busy agents from dead ones, so every tool call routes through here. An
// unknown or inactive agent is a no-op: hook helpers never fail an agent's
// tool call over bookkeeping.
func ReportActivity(sessions *session.Store, agent string, now time.Time) (*session.Session, error) {
	sess, err := sessions.GetActiveByName(agent)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	if err := sessions.UpdateLastActivity(agent, now); err != nil {
		return nil, err
	}
	if sess.State == overstory.StateBooting || sess.State == overstory.StateStalled {
		if err := sessions.UpdateState(agent, overstory.StateWorking); err != nil {
			return nil, err
		}
		sess.State = overstory.StateWorking
	}
	return sess, nil
}
