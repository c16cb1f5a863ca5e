// Package engine ties the task store, contract registry, output validator,
// and chain resolver together into the workflow lifecycle: create → start →
// complete/fail/cancel, with optional auto-chaining from one phase to the
// next. Every transition runs synchronously on the caller's goroutine; the
// only long-running call is the worker hand-off inside Start.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sprocketd/sprocket/chain"
	"github.com/sprocketd/sprocket/contract"
	"github.com/sprocketd/sprocket/events"
	"github.com/sprocketd/sprocket/task"
	"github.com/sprocketd/sprocket/validate"
	"github.com/sprocketd/sprocket/worker"
)

// MetaPendingResult is the task metadata key holding a worker token that
// arrived but was not acted on automatically. An operator resolves these
// tasks by completing or failing them manually.
const MetaPendingResult = "pending_result"

// MetaParentTask is the metadata key linking a chained child to its parent.
const MetaParentTask = "parent_task"

// Options configures an Engine. Store, Registry, and Worker are required;
// Bus and Logger default to no-op/default instances and BaseDir to the
// current directory.
type Options struct {
	Store    task.Store
	Registry *contract.Registry
	Worker   worker.Worker
	Bus      events.Bus
	Logger   *slog.Logger
	BaseDir  string // directory unit-of-work paths resolve against
}

// Engine is the workflow orchestrator.
type Engine struct {
	store     task.Store
	registry  *contract.Registry
	validator *validate.Validator
	resolver  *chain.Resolver
	worker    worker.Worker
	bus       events.Bus
	logger    *slog.Logger
	baseDir   string
	titler    cases.Caser
}

// New creates an Engine from the given options.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewInMemoryBus()
	}
	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = "."
	}
	return &Engine{
		store:     opts.Store,
		registry:  opts.Registry,
		validator: validate.New(opts.Registry),
		resolver:  chain.New(opts.Registry),
		worker:    opts.Worker,
		bus:       bus,
		logger:    logger,
		baseDir:   baseDir,
		titler:    cases.Title(language.English),
	}
}

// Bus returns the engine's event bus for subscribers.
func (e *Engine) Bus() events.Bus { return e.bus }

// CreateRequest describes a task to enqueue.
type CreateRequest struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Agent       string            `json:"agent"`
	Priority    task.Priority     `json:"priority,omitempty"`
	Unit        string            `json:"unit"`
	SourcePath  string            `json:"source_path"`
	Automation  task.Automation   `json:"automation"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Create enqueues a new pending task for a known agent. The task type is
// derived from the agent's contract role.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*task.Task, error) {
	if _, err := e.registry.Get(req.Agent); err != nil {
		return nil, err
	}
	taskType, err := e.registry.TaskTypeFor(req.Agent)
	if err != nil {
		return nil, err
	}

	t := &task.Task{
		Title:       req.Title,
		Description: req.Description,
		Agent:       req.Agent,
		Priority:    req.Priority,
		Type:        taskType,
		Unit:        req.Unit,
		SourcePath:  req.SourcePath,
		Automation:  req.Automation,
		Metadata:    req.Metadata,
	}
	if t.Title == "" {
		t.Title = e.defaultTitle(req.Agent, req.Unit)
	}
	if _, err := e.store.Create(t); err != nil {
		return nil, err
	}

	e.logger.Info("task created",
		slog.String("task", t.ID),
		slog.String("agent", t.Agent),
		slog.String("unit", t.Unit),
	)
	e.publish(ctx, events.TypeCreated, t, "")
	return t, nil
}

// Start transitions a pending task to active and hands it to the worker
// collaborator, blocking until the worker returns. A missing source path is
// a precondition failure: the task's state is left unchanged. When the
// worker reports a terminal outcome and the task has auto-complete enabled,
// Start completes the task (and chains, when enabled) before returning.
func (e *Engine) Start(ctx context.Context, id string) (*task.Task, error) {
	t, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	srcPath := e.resolvePath(t.SourcePath)
	if _, err := os.Stat(srcPath); err != nil {
		return nil, fmt.Errorf("cannot start task %s: source path %s does not exist; create it then start again", id, t.SourcePath)
	}

	t, err = e.store.MoveToActive(id)
	if err != nil {
		return nil, err
	}
	e.logger.Info("task started", slog.String("task", id), slog.String("agent", t.Agent))
	e.publish(ctx, events.TypeStarted, t, "")

	if e.worker == nil {
		return t, nil
	}

	outcome, err := e.worker.Run(ctx, worker.Request{
		Agent:       t.Agent,
		TaskID:      t.ID,
		TaskType:    t.Type,
		SourcePath:  t.SourcePath,
		Description: t.Description,
		Automation:  t.Automation,
	})
	if err != nil {
		// A crashed worker is a failure, not an unknown outcome.
		return e.Fail(ctx, id, fmt.Sprintf("worker: %v", err))
	}

	switch {
	case outcome.Kind == worker.KindUnknown:
		// No recognizable token: leave the task active for an operator.
		if err := e.store.SetMetadata(id, MetaPendingResult, outcome.Token); err != nil {
			return nil, err
		}
		e.logger.Warn("worker returned no recognizable status; task needs manual completion",
			slog.String("task", id), slog.String("agent", t.Agent))
		return e.store.Get(id)

	case t.Automation.AutoComplete:
		res, err := e.Complete(ctx, id, outcome.Token)
		if err != nil {
			return nil, err
		}
		return res.Task, nil

	default:
		// Auto-complete disabled: record the token and wait for the caller.
		if err := e.store.SetMetadata(id, MetaPendingResult, outcome.Token); err != nil {
			return nil, err
		}
		return e.store.Get(id)
	}
}

// Fail transitions an active task to failed and frees its agent.
func (e *Engine) Fail(ctx context.Context, id, errMsg string) (*task.Task, error) {
	t, err := e.store.MoveToFailed(id, errMsg)
	if err != nil {
		return nil, err
	}
	e.logger.Warn("task failed", slog.String("task", id), slog.String("error", errMsg))
	e.publish(ctx, events.TypeFailed, t, errMsg)
	return t, nil
}

// Cancel removes a pending or active task from the live sets. It has no
// effect on an already-invoked worker process: only the orchestrator stops
// acting on the task's eventual result.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (*task.Task, error) {
	t, err := e.store.Cancel(id, reason)
	if err != nil {
		return nil, err
	}
	e.logger.Info("task cancelled", slog.String("task", id), slog.String("reason", reason))
	e.publish(ctx, events.TypeCancelled, t, reason)
	return t, nil
}

// CancelAll cancels every pending and active task, returning the count.
func (e *Engine) CancelAll(ctx context.Context, reason string) (int, error) {
	var n int
	for _, set := range []task.Status{task.StatusPending, task.StatusActive} {
		tasks, err := e.store.List(set)
		if err != nil {
			return n, err
		}
		for _, t := range tasks {
			if _, err := e.Cancel(ctx, t.ID, reason); err != nil {
				return n, fmt.Errorf("cancel %s: %w", t.ID, err)
			}
			n++
		}
	}
	return n, nil
}

// SetMetadata stores an uninterpreted key/value pair on a task.
func (e *Engine) SetMetadata(id, key, value string) error {
	return e.store.SetMetadata(id, key, value)
}

// Get retrieves a task by ID.
func (e *Engine) Get(id string) (*task.Task, error) { return e.store.Get(id) }

// List returns all tasks in the given set.
func (e *Engine) List(set task.Status) ([]*task.Task, error) { return e.store.List(set) }

// Agents lists all known agent availability records.
func (e *Engine) Agents() ([]*task.Availability, error) { return e.store.Agents() }

// ValidateOutputs runs the output validator for an agent against a unit's
// directory without side effects.
func (e *Engine) ValidateOutputs(agent, unit string) validate.Result {
	return e.validator.Validate(agent, e.resolvePath(unit))
}

// ResolveNextAgent returns the agent that would follow current with the
// given status, or "" when none is defined.
func (e *Engine) ResolveNextAgent(current, status string) (string, error) {
	return e.resolver.NextAgent(current, status)
}

// ResolveNextSource returns the artifact path the next agent would consume.
func (e *Engine) ResolveNextSource(unit, current string) (string, error) {
	return e.resolver.NextSourcePath(unit, current)
}

// defaultTitle builds a readable title from the agent name and unit.
func (e *Engine) defaultTitle(agent, unit string) string {
	name := e.titler.String(strings.ReplaceAll(agent, "_", " "))
	if unit == "" {
		return name + " phase"
	}
	return fmt.Sprintf("%s phase: %s", name, unit)
}

// resolvePath resolves a task-relative path against the engine's base dir.
func (e *Engine) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.baseDir, p)
}

// publish emits a lifecycle event; bus errors are logged, never propagated.
func (e *Engine) publish(ctx context.Context, typ events.Type, t *task.Task, detail string) {
	ev := &events.Event{
		Type:   typ,
		TaskID: t.ID,
		Agent:  t.Agent,
		Unit:   t.Unit,
		Detail: detail,
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("event publish failed", slog.String("type", string(typ)), slog.String("error", err.Error()))
	}
}
