package mail

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Nudges are never delivered by injecting keystrokes into the recipient's
// terminal; that corrupts running tool I/O. A marker file is written instead
// and consumed by the recipient's next inject-mode mail check, which prepends
// a priority banner. At most one marker exists per recipient: a newer nudge
// overwrites an older one.

// Nudge is the pending-nudge marker payload.
type Nudge struct {
	From      string             `json:"from"`
	Subject   string             `json:"subject"`
	Type      overstory.MailType `json:"type"`
	Priority  overstory.Priority `json:"priority"`
	CreatedAt time.Time          `json:"createdAt"`
}

// WriteNudge writes (or overwrites) the pending-nudge marker for recipient.
func WriteNudge(dir, recipient string, n Nudge) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create pending-nudges dir: %w", err)
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal nudge: %w", err)
	}
	path := filepath.Join(dir, recipient+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write nudge marker: %w", err)
	}
	return nil
}

// TakeNudge reads and removes the pending-nudge marker for recipient.
// Returns nil when no marker exists.
func TakeNudge(dir, recipient string) (*Nudge, error) {
	path := filepath.Join(dir, recipient+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read nudge marker: %w", err)
	}

	var n Nudge
	if err := json.Unmarshal(data, &n); err != nil {
		// A corrupt marker is dropped rather than wedging the inbox.
		os.Remove(path)
		return nil, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove nudge marker: %w", err)
	}
	return &n, nil
}

// shouldNudge reports whether a message warrants a pending-nudge marker.
func shouldNudge(m *Message) bool {
	return m.Type.Nudges() || m.Priority.Nudges()
}
