// Package lifecycle externalizes an agent's progress so a future session can
// pick up where it left off. Checkpoints are one-per-agent JSON snapshots;
// handoffs form an append-only chain from a surrendering session to its
// (eventual) successor.
package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Checkpoint is a snapshot of an agent's progress on its task.
type Checkpoint struct {
	AgentName     string   `json:"agentName"`
	TaskID        string   `json:"taskId"`
	Branch        string   `json:"branch"`
	Summary       string   `json:"summary"`
	ModifiedFiles []string `json:"modifiedFiles,omitempty"`
	PendingWork   []string `json:"pendingWork,omitempty"`
	Domains       []string `json:"domains,omitempty"`
	CreatedAt     string   `json:"createdAt"`
}

// Handoff records a pending or completed takeover of a task.
type Handoff struct {
	ID          string  `json:"id"`
	FromSession string  `json:"fromSession"`
	ToSession   *string `json:"toSession"` // null until the takeover completes
	AgentName   string  `json:"agentName"`
	TaskID      string  `json:"taskId"`
	Reason      string  `json:"reason,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	CompletedAt *string `json:"completedAt"`
}

// Pending reports whether the handoff is still waiting for a successor.
func (h *Handoff) Pending() bool { return h.ToSession == nil }

const (
	checkpointFile = "checkpoint.json"
	handoffsFile   = "handoffs.json"
)

// HandoffsPath returns the agent's handoff log path. Each agent keeps its
// own log inside its state directory.
func HandoffsPath(agentDir string) string {
	return filepath.Join(agentDir, handoffsFile)
}

// SaveCheckpoint writes the agent's checkpoint atomically (write-then-rename,
// hook helpers may race with the orchestrator reading it).
func SaveCheckpoint(agentDir string, cp *Checkpoint) error {
	if cp.AgentName == "" || cp.TaskID == "" {
		return oops.New(oops.CodeLifecycle, "checkpoint needs an agent name and task id")
	}
	if cp.CreatedAt == "" {
		cp.CreatedAt = overstory.Timestamp(time.Now())
	}

	if err := os.MkdirAll(agentDir, 0755); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return atomicWrite(filepath.Join(agentDir, checkpointFile), data)
}

// LoadCheckpoint reads the agent's checkpoint. Missing file yields (nil, nil).
func LoadCheckpoint(agentDir string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(agentDir, checkpointFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, oops.Wrap(oops.CodeLifecycle, err, "parse checkpoint")
	}
	return &cp, nil
}

// ClearCheckpoint removes the agent's checkpoint. Clearing a missing
// checkpoint is a no-op.
func ClearCheckpoint(agentDir string) error {
	err := os.Remove(filepath.Join(agentDir, checkpointFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// OpenHandoff appends a new pending handoff to the log at path and returns
// it with its id assigned.
func OpenHandoff(path string, h Handoff) (*Handoff, error) {
	if h.FromSession == "" {
		return nil, oops.New(oops.CodeLifecycle, "handoff needs a from-session")
	}
	h.ID = uuid.NewString()
	h.ToSession = nil
	h.CompletedAt = nil
	h.CreatedAt = overstory.Timestamp(time.Now())

	handoffs, err := LoadHandoffs(path)
	if err != nil {
		return nil, err
	}
	handoffs = append(handoffs, &h)
	if err := writeHandoffs(path, handoffs); err != nil {
		return nil, err
	}
	return &h, nil
}

// CompleteHandoff binds a successor session to a pending handoff.
func CompleteHandoff(path, id, toSession string) error {
	handoffs, err := LoadHandoffs(path)
	if err != nil {
		return err
	}

	for _, h := range handoffs {
		if h.ID != id {
			continue
		}
		if !h.Pending() {
			return oops.New(oops.CodeLifecycle, "handoff %s already completed by %s", id, *h.ToSession)
		}
		now := overstory.Timestamp(time.Now())
		h.ToSession = &toSession
		h.CompletedAt = &now
		return writeHandoffs(path, handoffs)
	}
	return oops.New(oops.CodeLifecycle, "no handoff %q", id)
}

// LoadHandoffs reads the handoff log. Missing file yields an empty log.
func LoadHandoffs(path string) ([]*Handoff, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read handoffs: %w", err)
	}

	var handoffs []*Handoff
	if err := json.Unmarshal(data, &handoffs); err != nil {
		return nil, oops.Wrap(oops.CodeLifecycle, err, "parse handoffs")
	}
	return handoffs, nil
}

// PendingHandoffFor returns the oldest pending handoff for an agent, or nil.
func PendingHandoffFor(path, agentName string) (*Handoff, error) {
	handoffs, err := LoadHandoffs(path)
	if err != nil {
		return nil, err
	}
	for _, h := range handoffs {
		if h.AgentName == agentName && h.Pending() {
			return h, nil
		}
	}
	return nil, nil
}

func writeHandoffs(path string, handoffs []*Handoff) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create handoff dir: %w", err)
	}
	data, err := json.MarshalIndent(handoffs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal handoffs: %w", err)
	}
	return atomicWrite(path, data)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
