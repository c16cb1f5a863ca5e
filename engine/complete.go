package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sprocketd/sprocket/chain"
	"github.com/sprocketd/sprocket/events"
	"github.com/sprocketd/sprocket/task"
	"github.com/sprocketd/sprocket/validate"
)

// StopReason explains why an auto-chain attempt did not create a child task.
type StopReason string

const (
	// StopNoNextAgent means the workflow segment ended normally: the
	// contract defines no successor for this status. Not an error.
	StopNoNextAgent StopReason = "no_next_agent"
	// StopBlocked means the completion status carried the blocked prefix,
	// which never chains.
	StopBlocked StopReason = "blocked"
	// StopValidationFailed means the completed agent's outputs did not
	// satisfy its contract. This gate is never bypassed by automation flags.
	StopValidationFailed StopReason = "validation_failed"
	// StopSourceMissing means the resolved hand-off artifact does not exist
	// on disk, so the next agent would have nothing to read.
	StopSourceMissing StopReason = "source_missing"
)

// ChainResult reports what one auto-chain attempt did.
type ChainResult struct {
	Chained    bool             `json:"chained"`
	Stop       StopReason       `json:"stop,omitempty"`
	NextAgent  string           `json:"next_agent,omitempty"`
	SourcePath string           `json:"source_path,omitempty"`
	Child      *task.Task       `json:"child,omitempty"`
	Validation *validate.Result `json:"validation,omitempty"`
}

// Message renders the chain outcome for an operator, distinguishing the
// normal end of a workflow segment from actionable failures.
func (c *ChainResult) Message() string {
	switch c.Stop {
	case StopNoNextAgent:
		return "workflow segment finished: no next agent defined"
	case StopBlocked:
		return "blocked status never chains; resolve the blocker and create the next task manually"
	case StopValidationFailed:
		return "cannot chain: required outputs missing: " + c.Validation.Summary()
	case StopSourceMissing:
		return fmt.Sprintf("cannot chain: hand-off artifact %s does not exist", c.SourcePath)
	}
	if c.Chained && c.Child != nil {
		return fmt.Sprintf("chained to %s (task %s)", c.NextAgent, c.Child.ID)
	}
	return ""
}

// CompleteResult is what Complete returns: the terminal task plus the chain
// attempt's outcome when chaining was enabled.
type CompleteResult struct {
	Task  *task.Task   `json:"task"`
	Chain *ChainResult `json:"chain,omitempty"`
}

// Complete transitions an active task to completed with the worker's result
// token, then auto-chains when the task enables it and the status is
// chainable. Completion and chainability are independent facts: a chain
// failure is reported in the result but never rolls the completion back.
func (e *Engine) Complete(ctx context.Context, id, result string) (*CompleteResult, error) {
	t, err := e.store.MoveToCompleted(id, result)
	if err != nil {
		return nil, err
	}
	e.logger.Info("task completed",
		slog.String("task", id),
		slog.String("agent", t.Agent),
		slog.String("result", result),
	)

	blocked := chain.IsBlocked(result)
	if blocked {
		e.publish(ctx, events.TypeBlocked, t, result)
	} else {
		e.publish(ctx, events.TypeCompleted, t, result)
	}

	res := &CompleteResult{Task: t}
	if !t.Automation.AutoChain {
		return res, nil
	}
	if blocked {
		res.Chain = &ChainResult{Stop: StopBlocked}
		return res, nil
	}

	cr, err := e.chainFrom(ctx, t)
	res.Chain = cr
	if err != nil {
		// The parent stays completed; surface the chain problem alongside it.
		return res, fmt.Errorf("task %s completed but chain failed: %w", id, err)
	}
	if cr.Stop != "" {
		e.logger.Info("chain stopped", slog.String("task", id), slog.String("why", cr.Message()))
	}
	return res, nil
}

// AutoChain runs the chain step for an already-completed task, for callers
// driving the pipeline manually.
func (e *Engine) AutoChain(ctx context.Context, id string) (*ChainResult, error) {
	t, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusCompleted {
		return nil, fmt.Errorf("task %s is %s, not completed; only completed tasks chain", id, t.Status)
	}
	if chain.IsBlocked(t.Result) {
		return &ChainResult{Stop: StopBlocked}, nil
	}
	return e.chainFrom(ctx, t)
}

// chainFrom performs one validate → resolve → create-and-start hop from a
// completed task. The child inherits the parent's automation flags verbatim,
// which is how fully-automated mode propagates down the whole pipeline and
// manual mode stops after one hop.
func (e *Engine) chainFrom(ctx context.Context, t *task.Task) (*ChainResult, error) {
	// Hard gate: contract outputs must validate before anything chains.
	vres := e.ValidateOutputs(t.Agent, t.Unit)
	if !vres.OK {
		e.logger.Warn("chain validation failed",
			slog.String("task", t.ID),
			slog.String("agent", t.Agent),
			slog.String("reasons", vres.Summary()),
		)
		return &ChainResult{Stop: StopValidationFailed, Validation: &vres}, nil
	}

	next, err := e.resolver.NextAgent(t.Agent, t.Result)
	if err != nil {
		return nil, err
	}
	if next == "" {
		return &ChainResult{Stop: StopNoNextAgent}, nil
	}

	src, err := e.resolver.NextSourcePath(t.Unit, t.Agent)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(e.resolvePath(src)); err != nil {
		return &ChainResult{Stop: StopSourceMissing, NextAgent: next, SourcePath: src}, nil
	}

	child, err := e.Create(ctx, CreateRequest{
		Description: fmt.Sprintf("Continue unit %s from %s output", t.Unit, t.Agent),
		Agent:       next,
		Priority:    t.Priority,
		Unit:        t.Unit,
		SourcePath:  src,
		Automation:  t.Automation,
		Metadata:    map[string]string{MetaParentTask: t.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("create chained task for %s: %w", next, err)
	}
	e.publish(ctx, events.TypeChained, child, "parent "+t.ID)

	started, err := e.Start(ctx, child.ID)
	if err != nil {
		return &ChainResult{Chained: true, NextAgent: next, SourcePath: src, Child: child},
			fmt.Errorf("start chained task %s: %w", child.ID, err)
	}
	return &ChainResult{Chained: true, NextAgent: next, SourcePath: src, Child: started}, nil
}
