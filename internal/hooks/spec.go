package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// WriteSpec atomically writes the task spec under the specs directory and
// returns its path. A non-empty author adds an HTML-comment attribution
// header so the markdown renders unchanged.
func WriteSpec(specsDir, taskID, body, author string) (string, error) {
	if taskID == "" {
		return "", oops.New(oops.CodeValidation, "task id is required")
	}
	if filepath.Base(taskID) != taskID {
		return "", oops.New(oops.CodeValidation, "task id %q must not contain path separators", taskID)
	}

	if err := os.MkdirAll(specsDir, 0755); err != nil {
		return "", fmt.Errorf("create specs dir: %w", err)
	}

	content := body
	if author != "" {
		content = fmt.Sprintf("<!-- written by %s at %s -->\n\n%s",
			author, overstory.Timestamp(time.Now()), body)
	}

	path := filepath.Join(specsDir, taskID+".md")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write spec: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename spec: %w", err)
	}
	return path, nil
}
