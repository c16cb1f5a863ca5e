// Package events provides the in-process task lifecycle event bus.
package events

import (
	"context"
	"time"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	TypeCreated   Type = "task_created"
	TypeStarted   Type = "task_started"
	TypeCompleted Type = "task_completed"
	TypeFailed    Type = "task_failed"
	TypeCancelled Type = "task_cancelled"
	TypeChained   Type = "task_chained" // a child task was created by auto-chain
	TypeBlocked   Type = "task_blocked" // completed with a blocked status
)

// Event is one task lifecycle transition.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	TaskID    string            `json:"task_id"`
	Agent     string            `json:"agent,omitempty"`
	Unit      string            `json:"unit,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler processes published events.
type Handler func(ctx context.Context, ev *Event) error

// Bus fans lifecycle events out to subscribers. Consumers (SSE clients,
// tests, future integrations) subscribe; the engine publishes.
type Bus interface {
	// Publish delivers the event to all subscribers.
	Publish(ctx context.Context, ev *Event) error

	// Subscribe registers a handler for all events.
	// Returns an unsubscribe function.
	Subscribe(handler Handler) (unsubscribe func())

	// History returns the most recent events, oldest first.
	History(limit int) ([]*Event, error)
}
