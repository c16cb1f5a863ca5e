// Package task defines the task model and persistence for orchestrated work items.
package task

import (
	"errors"
	"time"
)

// Status represents which lifecycle set a task belongs to. A task is in
// exactly one set at any time; the store's move operations are the only
// way membership changes.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// LiveSets are the four sets a non-cancelled task can belong to.
var LiveSets = []Status{StatusPending, StatusActive, StatusCompleted, StatusFailed}

// Priority is advisory ordering only; the engine does not enforce it.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Automation controls what the engine does on a task's behalf once the
// worker returns. It is copied by value into chained child tasks.
type Automation struct {
	AutoComplete bool `json:"auto_complete"`
	AutoChain    bool `json:"auto_chain"`
}

// Task is a unit of orchestrated work handed to a named agent.
type Task struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Agent       string            `json:"agent"` // key into the contract registry
	Priority    Priority          `json:"priority"`
	Type        string            `json:"type,omitempty"` // prompt template selector, opaque here
	Unit        string            `json:"unit,omitempty"` // enclosing unit-of-work directory
	SourcePath  string            `json:"source_path,omitempty"`
	Status      Status            `json:"status"`
	Automation  Automation        `json:"automation"`
	Result      string            `json:"result,omitempty"` // worker status token, set once terminal
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// AgentState is the availability of a single agent name.
type AgentState string

const (
	AgentIdle   AgentState = "idle"
	AgentActive AgentState = "active"
)

// Availability records per-agent activity. At most one active task may
// reference an agent at a time.
type Availability struct {
	Agent         string     `json:"agent"`
	Status        AgentState `json:"status"`
	LastActivity  time.Time  `json:"last_activity"`
	CurrentTaskID string     `json:"current_task_id,omitempty"`
}

// Sentinel errors. These are protocol errors: callers must not retry them.
var (
	// ErrNotFound means the task id does not exist in the expected set.
	ErrNotFound = errors.New("task not found")
	// ErrAgentBusy means the agent already has an active task.
	ErrAgentBusy = errors.New("agent already active")
)

// Store persists tasks and agent availability. Mutations are atomic and
// serialized; Get and List never block a writer.
type Store interface {
	// Create persists a new pending task and returns its assigned ID.
	Create(t *Task) (string, error)

	// Get retrieves a task by ID from any set.
	Get(id string) (*Task, error)

	// List returns all tasks in the given set, highest priority first.
	List(set Status) ([]*Task, error)

	// MoveToActive transitions a pending task to active and marks its
	// agent busy. Fails with ErrNotFound if the task is not pending and
	// ErrAgentBusy if the agent already has an active task.
	MoveToActive(id string) (*Task, error)

	// MoveToCompleted transitions an active task to completed with the
	// worker's result token and frees its agent.
	MoveToCompleted(id, result string) (*Task, error)

	// MoveToFailed transitions an active task to failed and frees its agent.
	MoveToFailed(id, errMsg string) (*Task, error)

	// Cancel removes a pending or active task from its set. Cancelling an
	// active task frees the agent; the already-running worker is unaffected.
	Cancel(id, reason string) (*Task, error)

	// SetMetadata stores a key/value pair on the task. The store never
	// interprets metadata.
	SetMetadata(id, key, value string) error

	// Availability returns the availability record for one agent, or a
	// fresh idle record if the agent has never been referenced.
	Availability(agent string) (*Availability, error)

	// Agents lists all known availability records.
	Agents() ([]*Availability, error)
}
