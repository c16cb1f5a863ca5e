// Package worker defines the external worker collaborator interface. A
// worker runs one agent's phase and reports a typed Outcome; the engine
// never inspects worker output itself; token recognition lives here, at
// the boundary.
package worker

import (
	"context"

	"github.com/sprocketd/sprocket/task"
)

// Kind classifies a worker outcome.
type Kind string

const (
	// KindReadyFor means the phase succeeded and names the next phase.
	KindReadyFor Kind = "ready_for"
	// KindComplete means the phase succeeded and the pipeline segment ends.
	KindComplete Kind = "complete"
	// KindBlocked means the phase cannot proceed without human intervention.
	KindBlocked Kind = "blocked"
	// KindUnknown means no recognizable status token was found. The task
	// must be completed or failed manually; the engine does not guess.
	KindUnknown Kind = "unknown"
)

// Outcome is the typed result of a worker run.
type Outcome struct {
	Kind   Kind   `json:"kind"`
	Token  string `json:"token"`            // the raw status token, e.g. READY_FOR_DEVELOPMENT
	Phase  string `json:"phase,omitempty"`  // for KindReadyFor, the named next phase
	Reason string `json:"reason,omitempty"` // for KindBlocked, the free-text reason
}

// Terminal reports whether the outcome lets the engine finish the task
// without an operator.
func (o Outcome) Terminal() bool {
	return o.Kind == KindReadyFor || o.Kind == KindComplete || o.Kind == KindBlocked
}

// Request carries everything a worker needs to run one agent's phase.
type Request struct {
	Agent       string          `json:"agent"`
	TaskID      string          `json:"task_id"`
	TaskType    string          `json:"task_type"`
	SourcePath  string          `json:"source_path"`
	Description string          `json:"description"`
	Automation  task.Automation `json:"automation"`
}

// Worker executes one agent phase. Run blocks until the worker finishes;
// a returned error means the worker process itself failed (which the engine
// treats as a task failure, not an unknown outcome).
type Worker interface {
	Run(ctx context.Context, req Request) (Outcome, error)
}
