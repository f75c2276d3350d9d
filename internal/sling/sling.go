// Package sling spawns agents. The coordinator composes every other
// subsystem: it validates the request against the session registry, paces
// starts, carves out a worktree and branch, deploys hook settings, seeds the
// agent's inbox, and boots the terminal session.
package sling

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/sprinteroz/overstory/internal/config"
	"github.com/sprinteroz/overstory/internal/events"
	"github.com/sprinteroz/overstory/internal/git"
	"github.com/sprinteroz/overstory/internal/logging"
	"github.com/sprinteroz/overstory/internal/mail"
	"github.com/sprinteroz/overstory/internal/oops"
	"github.com/sprinteroz/overstory/internal/session"
	"github.com/sprinteroz/overstory/internal/tmux"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// Request describes the agent to spawn.
type Request struct {
	AgentName  string
	Capability overstory.Capability
	TaskID     string
	Parent     string // "" when spawned by the orchestrator itself
	Depth      int
	SpecPath   string
	// Files are the paths the task is expected to touch, driving
	// knowledge-domain inference.
	Files []string
	// Model overrides the capability-configured model alias.
	Model string
	Force bool
}

// Result is what a successful spawn produced.
type Result struct {
	Session  *session.Session
	Warnings []string
}

// Coordinator performs the spawn pipeline.
type Coordinator struct {
	cfg      *config.Config
	sessions *session.Store
	mail     *mail.Client
	events   *events.Store // nil disables event recording
	git      git.Runner
	tmux     tmux.Runner
	logger   *logging.DebugLogger

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
	uid   func() int
}

// NewCoordinator wires a coordinator. events may be nil.
func NewCoordinator(cfg *config.Config, sessions *session.Store, mailClient *mail.Client,
	eventStore *events.Store, g git.Runner, t tmux.Runner, logger *logging.DebugLogger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{
		cfg:      cfg,
		sessions: sessions,
		mail:     mailClient,
		events:   eventStore,
		git:      g,
		tmux:     t,
		logger:   logger,
		now:      time.Now,
		sleep:    time.Sleep,
		uid:      os.Getuid,
	}
}

// Spawn runs the full pipeline. Validation failures leave no durable state;
// any failure after the worktree exists rolls the worktree and branch back.
func (c *Coordinator) Spawn(req Request) (*Result, error) {
	warnings, err := c.validate(req)
	if err != nil {
		return nil, err
	}

	runID, err := session.CurrentRun(c.cfg.CurrentRunPath())
	if err != nil {
		return nil, err
	}
	if err := c.checkLimits(req, runID); err != nil {
		return nil, err
	}

	// Stagger before touching anything durable so a rejected spawn never
	// waited for nothing.
	active, err := c.sessions.GetActive()
	if err != nil {
		return nil, err
	}
	if delay := CalculateStaggerDelay(c.cfg.Agents.StaggerDelayMs, active, c.now()); delay > 0 {
		c.logger.Log("sling %s: staggering %s", req.AgentName, delay)
		c.sleep(delay)
	}

	if existing, err := c.sessions.GetActiveByName(req.AgentName); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, oops.New(oops.CodeAgent, "agent name %q already in use by an active session", req.AgentName).
			With("agent", req.AgentName).
			WithHint("stop the existing agent or pick another name")
	}

	domains := InferDomains(req.Files, c.cfg.Mulch.Domains)

	branch := overstory.BranchName(req.AgentName, req.TaskID)
	worktreePath := filepath.Join(c.cfg.Worktrees.BaseDir, req.AgentName)
	if err := os.MkdirAll(c.cfg.Worktrees.BaseDir, 0755); err != nil {
		return nil, oops.Wrap(oops.CodeWorktree, err, "create worktree base dir")
	}
	if err := c.git.WorktreeAdd(worktreePath, branch, c.cfg.Project.CanonicalBranch); err != nil {
		return nil, oops.Wrap(oops.CodeWorktree, err, "create worktree for %s", req.AgentName).
			With("agent", req.AgentName).With("branch", branch)
	}

	sess, err := c.boot(req, runID, branch, worktreePath, domains)
	if err != nil {
		c.rollback(req.AgentName, worktreePath, branch)
		return nil, err
	}

	c.recordSpawn(sess)
	return &Result{Session: sess, Warnings: warnings}, nil
}

// validate covers the hierarchy and request-shape checks (steps that cannot
// leave durable state).
func (c *Coordinator) validate(req Request) ([]string, error) {
	if req.AgentName == "" {
		return nil, oops.New(oops.CodeValidation, "agent name is required")
	}
	if req.TaskID == "" {
		return nil, oops.New(oops.CodeValidation, "task id is required")
	}
	if !req.Capability.Valid() {
		return nil, oops.New(oops.CodeValidation, "unknown capability %q", string(req.Capability))
	}
	if maxDepth := c.cfg.Agents.MaxDepth; maxDepth > 0 && req.Depth > maxDepth {
		return nil, oops.New(oops.CodeValidation, "depth %d exceeds maxDepth %d", req.Depth, maxDepth).
			With("agent", req.AgentName)
	}

	if req.Parent == "" && req.Capability != overstory.CapLead && !req.Force {
		return nil, oops.New(oops.CodeHierarchy,
			"capability %q needs a parent agent; only a lead spawns at the root", string(req.Capability)).
			With("capability", string(req.Capability)).
			WithHint("spawn a lead first, or pass --force")
	}

	if runtime.GOOS != "windows" && c.uid() == 0 {
		return nil, oops.New(oops.CodeValidation, "refusing to spawn agents as root").
			WithHint("run overstory as an unprivileged user")
	}

	var warnings []string
	if req.Parent != "" && req.Capability == overstory.CapBuilder {
		parent, err := c.sessions.GetActiveByName(req.Parent)
		if err != nil {
			return nil, err
		}
		if parent != nil && parent.Capability == overstory.CapLead {
			active, err := c.sessions.GetActive()
			if err != nil {
				return nil, err
			}
			if !ParentHasScouts(active, req.Parent) {
				warnings = append(warnings,
					fmt.Sprintf("lead %q is spawning a builder without any scout recon", req.Parent))
			}
		}
	}
	return warnings, nil
}

// checkLimits covers the concurrency cap, per-run cap, and task lock.
func (c *Coordinator) checkLimits(req Request, runID string) error {
	count, err := c.sessions.CountActive()
	if err != nil {
		return err
	}
	if count >= c.cfg.Agents.MaxConcurrent {
		return oops.New(oops.CodeAgent, "%d agents already active (maxConcurrent %d)",
			count, c.cfg.Agents.MaxConcurrent).
			WithHint("wait for an agent to finish or raise agents.maxConcurrent")
	}

	if runID != "" {
		runCount, err := c.sessions.CountByRun(runID)
		if err != nil {
			return err
		}
		if CheckRunSessionLimit(c.cfg.Agents.MaxSessionsPerRun, runCount) {
			return oops.New(oops.CodeAgent, "run %s already has %d sessions (maxSessionsPerRun %d)",
				runID, runCount, c.cfg.Agents.MaxSessionsPerRun)
		}
	}

	holder, err := c.sessions.ActiveTaskHolder(req.TaskID)
	if err != nil {
		return err
	}
	if holder != nil && holder.AgentName != req.Parent {
		return oops.New(oops.CodeAgent, "task %q is already held by agent %q", req.TaskID, holder.AgentName).
			With("task", req.TaskID).With("holder", holder.AgentName)
	}
	return nil
}

// boot performs everything after the worktree exists: identity, hook
// settings, dispatch mail, terminal session, beacon, registration.
func (c *Coordinator) boot(req Request, runID, branch, worktreePath string, domains []string) (*session.Session, error) {
	identity := Identity{
		AgentName:  req.AgentName,
		Capability: req.Capability,
		TaskID:     req.TaskID,
		Parent:     req.Parent,
		Depth:      req.Depth,
		Branch:     branch,
		Worktree:   worktreePath,
		SpecPath:   req.SpecPath,
		Domains:    domains,
	}
	if err := WriteIdentity(c.cfg.AgentDir(req.AgentName), identity); err != nil {
		return nil, oops.Wrap(oops.CodeAgent, err, "write identity for %s", req.AgentName)
	}
	if err := DeployHookSettings(worktreePath, req.AgentName, req.Capability); err != nil {
		return nil, oops.Wrap(oops.CodeAgent, err, "deploy hook settings for %s", req.AgentName)
	}

	if err := c.dispatch(req); err != nil {
		return nil, err
	}

	model, env := ResolveModel(c.cfg, req.Capability)
	if req.Model != "" {
		model = req.Model
	}
	if env == nil {
		env = map[string]string{}
	}
	env["OVERSTORY_AGENT_NAME"] = req.AgentName
	env["OVERSTORY_WORKTREE_PATH"] = worktreePath

	command := "claude"
	if model != "" {
		command = "claude --model " + model
	}

	sessionName := overstory.SessionName(c.cfg.Project.Name, req.AgentName)
	pid, err := c.tmux.CreateSession(sessionName, worktreePath, command, env)
	if err != nil {
		return nil, oops.Wrap(oops.CodeAgent, err, "create session for %s", req.AgentName).
			With("agent", req.AgentName)
	}

	if err := c.tmux.SendKeys(sessionName, c.beacon(req)); err != nil {
		_ = c.tmux.KillSession(sessionName)
		return nil, oops.Wrap(oops.CodeAgent, err, "send beacon to %s", req.AgentName)
	}

	now := c.now()
	sess := &session.Session{
		ID:           uuid.NewString(),
		AgentName:    req.AgentName,
		Capability:   req.Capability,
		WorktreePath: worktreePath,
		BranchName:   branch,
		TaskID:       req.TaskID,
		TmuxSession:  sessionName,
		State:        overstory.StateBooting,
		PID:          &pid,
		Depth:        req.Depth,
		StartedAt:    now,
		LastActivity: now,
	}
	if req.Parent != "" {
		sess.ParentAgent = &req.Parent
	}
	if runID != "" {
		sess.RunID = &runID
	}

	if err := c.sessions.Upsert(sess); err != nil {
		_ = c.tmux.KillSession(sessionName)
		return nil, err
	}
	c.appendBootLog(sess)
	return sess, nil
}

// appendBootLog starts the agent's NDJSON event log with a session-start
// record. Best effort: a failed log never fails the spawn.
func (c *Coordinator) appendBootLog(sess *session.Session) {
	log, err := logging.OpenNDJSON(c.cfg.LogsDir(), sess.AgentName, sess.StartedAt)
	if err != nil {
		c.logger.Log("sling %s: open event log: %v", sess.AgentName, err)
		return
	}
	defer log.Close()

	err = log.Append(logging.NDJSONRecord{
		Agent: sess.AgentName,
		Type:  string(overstory.EventSessionStart),
		Data: map[string]any{
			"sessionId": sess.ID,
			"taskId":    sess.TaskID,
			"branch":    sess.BranchName,
		},
	})
	if err != nil {
		c.logger.Log("sling %s: append event log: %v", sess.AgentName, err)
	}
}

// dispatch pre-seeds the agent's inbox with its assignment so the very first
// mail check delivers the task.
func (c *Coordinator) dispatch(req Request) error {
	from := req.Parent
	if from == "" {
		from = "orchestrator"
	}

	payload, _ := json.Marshal(map[string]string{
		"taskId":     req.TaskID,
		"capability": string(req.Capability),
		"specPath":   req.SpecPath,
	})

	body := fmt.Sprintf("You are assigned task %s as a %s.", req.TaskID, req.Capability)
	if req.SpecPath != "" {
		body += fmt.Sprintf(" Read the spec at %s before starting.", req.SpecPath)
	}

	_, err := c.mail.Send(&mail.Message{
		From:     from,
		To:       req.AgentName,
		Subject:  "Task dispatch: " + req.TaskID,
		Body:     body,
		Type:     overstory.MailDispatch,
		Priority: overstory.PriorityNormal,
		Payload:  string(payload),
	})
	if err != nil {
		return oops.Wrap(oops.CodeMail, err, "dispatch mail to %s", req.AgentName)
	}
	return nil
}

// beacon is the single line typed into the fresh session. Newlines would be
// interpreted as separate keystroke sends, so everything stays on one line.
func (c *Coordinator) beacon(req Request) string {
	parent := req.Parent
	if parent == "" {
		parent = "orchestrator"
	}
	return fmt.Sprintf("You are agent %s (capability %s) on task %s, depth %d, reporting to %s. Check your mail for the dispatch.",
		req.AgentName, req.Capability, req.TaskID, req.Depth, parent)
}

// rollback removes the worktree and branch after a partial spawn. Best
// effort: the state directory is reconciled by clean later if this fails.
func (c *Coordinator) rollback(agentName, worktreePath, branch string) {
	c.logger.Log("sling %s: rolling back worktree %s", agentName, worktreePath)
	if err := c.git.WorktreeRemove(worktreePath, true); err != nil {
		c.logger.Log("sling %s: worktree remove: %v", agentName, err)
	}
	if err := c.git.DeleteBranch(branch); err != nil {
		c.logger.Log("sling %s: delete branch: %v", agentName, err)
	}
	if err := c.git.WorktreePrune(); err != nil {
		c.logger.Log("sling %s: worktree prune: %v", agentName, err)
	}
}

func (c *Coordinator) recordSpawn(sess *session.Session) {
	if c.events == nil {
		return
	}
	data, _ := json.Marshal(map[string]any{
		"capability": string(sess.Capability),
		"taskId":     sess.TaskID,
		"branch":     sess.BranchName,
		"depth":      sess.Depth,
	})
	runID := ""
	if sess.RunID != nil {
		runID = *sess.RunID
	}
	_, err := c.events.Insert(&events.Event{
		RunID:     runID,
		AgentName: sess.AgentName,
		SessionID: &sess.ID,
		Type:      overstory.EventSpawn,
		Data:      string(data),
	})
	if err != nil {
		c.logger.Log("sling %s: record spawn event: %v", sess.AgentName, err)
	}
}
