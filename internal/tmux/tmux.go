// Package tmux wraps the terminal multiplexer that hosts agent processes.
// Every agent runs detached in its own session; the orchestrator creates,
// inspects, and kills those sessions by name.
package tmux

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Runner is the interface for tmux operations, substitutable in tests.
type Runner interface {
	CreateSession(name, cwd, command string, env map[string]string) (int, error)
	KillSession(name string) error
	ListSessions() ([]string, error)
	IsSessionAlive(name string) bool
	SendKeys(name, keys string) error
	CurrentSessionName() (string, error)
}

// ExecRunner implements Runner by shelling out to tmux.
type ExecRunner struct{}

// NewRunner creates a tmux runner.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// run executes tmux with the given arguments. Stderr on a non-zero exit is
// folded into the returned error.
func (r *ExecRunner) run(args ...string) (string, error) {
	cmd := exec.Command("tmux", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// CreateSession creates a detached session running command in cwd with the
// given extra environment, and returns the pid of the pane process.
func (r *ExecRunner) CreateSession(name, cwd, command string, env map[string]string) (int, error) {
	args := []string{"new-session", "-d", "-s", name, "-c", cwd}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, command)
	if _, err := r.run(args...); err != nil {
		return 0, err
	}

	out, err := r.run("list-panes", "-t", name, "-F", "#{pane_pid}")
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.SplitN(out, "\n", 2)[0])
	if err != nil {
		return 0, fmt.Errorf("parse pane pid %q: %w", out, err)
	}
	return pid, nil
}

// KillSession kills the named session.
func (r *ExecRunner) KillSession(name string) error {
	_, err := r.run("kill-session", "-t", name)
	return err
}

// ListSessions returns the names of all live sessions. An empty server (no
// sessions at all) is not an error.
func (r *ExecRunner) ListSessions() ([]string, error) {
	out, err := r.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// IsSessionAlive reports whether the named session exists.
func (r *ExecRunner) IsSessionAlive(name string) bool {
	cmd := exec.Command("tmux", "has-session", "-t", name)
	return cmd.Run() == nil
}

// SendKeys types keys into the named session followed by Enter. Callers
// must keep keys single-line; embedded newlines corrupt the keystroke
// stream of whatever is running in the pane.
func (r *ExecRunner) SendKeys(name, keys string) error {
	if strings.ContainsAny(keys, "\r\n") {
		return fmt.Errorf("send-keys to %s: keys must be single-line", name)
	}
	_, err := r.run("send-keys", "-t", name, keys, "Enter")
	return err
}

// CurrentSessionName returns the session this process is running inside, or
// "" when not inside tmux.
func (r *ExecRunner) CurrentSessionName() (string, error) {
	if os.Getenv("TMUX") == "" {
		return "", nil
	}
	return r.run("display-message", "-p", "#{session_name}")
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
