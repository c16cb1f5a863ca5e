package worker

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is a Worker for tests: it replays canned outcomes per agent and
// records every request it receives.
type Scripted struct {
	mu       sync.Mutex
	outcomes map[string][]Outcome // agent -> queued outcomes
	errs     map[string]error
	Requests []Request
}

// NewScripted creates an empty scripted worker.
func NewScripted() *Scripted {
	return &Scripted{
		outcomes: make(map[string][]Outcome),
		errs:     make(map[string]error),
	}
}

// Queue appends an outcome for the given agent. Outcomes are consumed in
// FIFO order; the last one is replayed once the queue drains.
func (s *Scripted) Queue(agent string, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[agent] = append(s.outcomes[agent], o)
}

// QueueText is a convenience that parses raw worker text into an outcome.
func (s *Scripted) QueueText(agent, text string) {
	s.Queue(agent, ParseOutcome(text))
}

// Fail makes every run for the agent return the given error.
func (s *Scripted) Fail(agent string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[agent] = err
}

// Run replays the next queued outcome for req.Agent.
func (s *Scripted) Run(_ context.Context, req Request) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)

	if err := s.errs[req.Agent]; err != nil {
		return Outcome{}, err
	}
	queue := s.outcomes[req.Agent]
	if len(queue) == 0 {
		return Outcome{}, fmt.Errorf("scripted worker: no outcome queued for agent %s", req.Agent)
	}
	next := queue[0]
	if len(queue) > 1 {
		s.outcomes[req.Agent] = queue[1:]
	}
	return next, nil
}
