package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Mail-check debounce state: a per-project JSON map of agent name to the
// epoch-milliseconds of its last inbox check. Last writer wins; staleness
// only means one extra check.

func loadCheckState(path string) (map[string]int64, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mail-check state: %w", err)
	}

	state := map[string]int64{}
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt state only disables debouncing, never the check itself.
		return map[string]int64{}, nil
	}
	return state, nil
}

// ShouldSkipCheck reports whether the agent checked mail within the debounce
// window. A window of 0 disables debouncing.
func ShouldSkipCheck(path, agent string, windowMs int, now time.Time) (bool, error) {
	if windowMs <= 0 {
		return false, nil
	}
	state, err := loadCheckState(path)
	if err != nil {
		return false, err
	}
	last, ok := state[agent]
	if !ok {
		return false, nil
	}
	return now.UnixMilli()-last < int64(windowMs), nil
}

// RecordCheck stamps the agent's last mail check.
func RecordCheck(path, agent string, now time.Time) error {
	state, err := loadCheckState(path)
	if err != nil {
		return err
	}
	state[agent] = now.UnixMilli()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal mail-check state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write mail-check state: %w", err)
	}
	return nil
}
