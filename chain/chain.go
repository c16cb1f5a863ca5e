// Package chain resolves which agent follows a completed phase and which
// artifact that agent consumes. Resolution is a pure function of the
// contract registry: same inputs, same answer.
package chain

import (
	"path/filepath"
	"strings"

	"github.com/sprocketd/sprocket/contract"
)

// BlockedPrefix marks a status code as terminal-but-unchainable. A blocked
// status always resolves to no next agent regardless of contract content.
const BlockedPrefix = "BLOCKED:"

// Resolver computes chain hand-offs from the contract registry.
type Resolver struct {
	registry *contract.Registry
}

// New creates a Resolver backed by the given registry.
func New(reg *contract.Registry) *Resolver {
	return &Resolver{registry: reg}
}

// IsBlocked reports whether the status code carries the reserved blocked prefix.
func IsBlocked(status string) bool {
	return strings.HasPrefix(status, BlockedPrefix)
}

// NextAgent returns the agent that follows current when it completes with
// statusCode, or "" when the workflow segment ends there. Matching is exact
// and case-sensitive; the first matching transition wins, and only its first
// listed agent is chained (fan-out is not auto-chained).
func (r *Resolver) NextAgent(current, statusCode string) (string, error) {
	if IsBlocked(statusCode) {
		return "", nil
	}
	c, err := r.registry.Get(current)
	if err != nil {
		return "", err
	}
	for _, t := range c.Transitions {
		if t.Status == statusCode {
			if len(t.NextAgents) == 0 {
				return "", nil
			}
			return t.NextAgents[0], nil
		}
	}
	return "", nil
}

// NextSourcePath returns the artifact the next agent consumes: the current
// agent's root document under the unit-of-work directory. The chain is a
// linear hand-off of one canonical artifact per phase.
func (r *Resolver) NextSourcePath(unit, current string) (string, error) {
	c, err := r.registry.Get(current)
	if err != nil {
		return "", err
	}
	return filepath.Join(unit, c.OutputDirectory, c.RootDocument), nil
}
