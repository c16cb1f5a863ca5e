package chain

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sprocketd/sprocket/contract"
)

func testResolver() *Resolver {
	return New(contract.New(map[string]*contract.Contract{
		"analyst": {
			Role:            "analysis",
			OutputDirectory: "analyst",
			RootDocument:    "summary.md",
			Transitions: []contract.Transition{
				{Status: "READY_FOR_DEVELOPMENT", NextAgents: []string{"architect"}},
				{Status: "READY_FOR_REVIEW", NextAgents: []string{"reviewer", "auditor"}},
			},
		},
		"architect": {
			Role:            "technical_design",
			OutputDirectory: "architect",
			RootDocument:    "design.md",
		},
	}))
}

func TestNextAgent(t *testing.T) {
	r := testResolver()

	next, err := r.NextAgent("analyst", "READY_FOR_DEVELOPMENT")
	if err != nil {
		t.Fatalf("NextAgent: %v", err)
	}
	if next != "architect" {
		t.Errorf("next = %q, want architect", next)
	}
}

func TestNextAgent_NoMatch(t *testing.T) {
	r := testResolver()

	next, err := r.NextAgent("analyst", "SOMETHING_ELSE")
	if err != nil {
		t.Fatalf("NextAgent: %v", err)
	}
	if next != "" {
		t.Errorf("next = %q, want none for unmatched status", next)
	}

	// Matching is exact and case-sensitive.
	next, err = r.NextAgent("analyst", "ready_for_development")
	if err != nil {
		t.Fatalf("NextAgent: %v", err)
	}
	if next != "" {
		t.Errorf("next = %q, want none for lowercased status", next)
	}
}

func TestNextAgent_NoTransitions(t *testing.T) {
	r := testResolver()
	next, err := r.NextAgent("architect", "READY_FOR_ANYTHING")
	if err != nil {
		t.Fatalf("NextAgent: %v", err)
	}
	if next != "" {
		t.Errorf("next = %q, want none for agent without transitions", next)
	}
}

func TestNextAgent_UnknownAgent(t *testing.T) {
	r := testResolver()
	if _, err := r.NextAgent("nobody", "READY_FOR_DEVELOPMENT"); !errors.Is(err, contract.ErrUnknownAgent) {
		t.Fatalf("NextAgent unknown: got %v, want ErrUnknownAgent", err)
	}
}

// A blocked status never chains, even if a contract listed it.
func TestNextAgent_BlockedNeverChains(t *testing.T) {
	r := New(contract.New(map[string]*contract.Contract{
		"analyst": {
			RootDocument: "summary.md",
			Transitions: []contract.Transition{
				{Status: "BLOCKED: anything", NextAgents: []string{"architect"}},
			},
		},
	}))

	for _, status := range []string{"BLOCKED: anything", "BLOCKED: missing input", "BLOCKED:"} {
		next, err := r.NextAgent("analyst", status)
		if err != nil {
			t.Fatalf("NextAgent(%q): %v", status, err)
		}
		if next != "" {
			t.Errorf("NextAgent(%q) = %q, want none", status, next)
		}
	}
}

// Only the first listed agent is auto-chained on fan-out transitions.
func TestNextAgent_FanOutPicksFirst(t *testing.T) {
	r := testResolver()
	next, err := r.NextAgent("analyst", "READY_FOR_REVIEW")
	if err != nil {
		t.Fatalf("NextAgent: %v", err)
	}
	if next != "reviewer" {
		t.Errorf("next = %q, want reviewer (first listed)", next)
	}
}

// Resolution is a pure function: repeated calls agree.
func TestNextAgent_Deterministic(t *testing.T) {
	r := testResolver()
	first, err := r.NextAgent("analyst", "READY_FOR_DEVELOPMENT")
	if err != nil {
		t.Fatalf("NextAgent: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := r.NextAgent("analyst", "READY_FOR_DEVELOPMENT")
		if err != nil || got != first {
			t.Fatalf("call %d: got (%q, %v), want (%q, nil)", i, got, err, first)
		}
	}
}

func TestNextSourcePath(t *testing.T) {
	r := testResolver()
	src, err := r.NextSourcePath("unit", "analyst")
	if err != nil {
		t.Fatalf("NextSourcePath: %v", err)
	}
	want := filepath.Join("unit", "analyst", "summary.md")
	if src != want {
		t.Errorf("src = %q, want %q", src, want)
	}

	if _, err := r.NextSourcePath("unit", "nobody"); !errors.Is(err, contract.ErrUnknownAgent) {
		t.Fatalf("NextSourcePath unknown: got %v, want ErrUnknownAgent", err)
	}
}

func TestIsBlocked(t *testing.T) {
	if !IsBlocked("BLOCKED: missing input") {
		t.Error("IsBlocked should recognize the blocked prefix")
	}
	if IsBlocked("READY_FOR_DEVELOPMENT") {
		t.Error("IsBlocked should not match a ready status")
	}
}
