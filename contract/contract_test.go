package contract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_PipelineWiring(t *testing.T) {
	reg := Default()

	c, err := reg.Get("analyst")
	if err != nil {
		t.Fatalf("Get analyst: %v", err)
	}
	if c.Agent != "analyst" {
		t.Errorf("Agent = %q, want analyst", c.Agent)
	}
	if c.OutputDirectory != "analyst" || c.RootDocument != "summary.md" {
		t.Errorf("analyst outputs = %s/%s, want analyst/summary.md", c.OutputDirectory, c.RootDocument)
	}
	if !c.MetadataRequired {
		t.Error("analyst contract should require metadata")
	}
	if len(c.Transitions) != 1 || c.Transitions[0].NextAgents[0] != "architect" {
		t.Errorf("analyst transitions = %+v, want READY_FOR_DEVELOPMENT -> architect", c.Transitions)
	}

	// The last phase has no successors.
	scribe, err := reg.Get("scribe")
	if err != nil {
		t.Fatalf("Get scribe: %v", err)
	}
	if len(scribe.Transitions) != 0 {
		t.Errorf("scribe transitions = %+v, want none", scribe.Transitions)
	}
}

func TestRegistry_Get_Unknown(t *testing.T) {
	reg := Default()
	if _, err := reg.Get("nobody"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("Get unknown: got %v, want ErrUnknownAgent", err)
	}
}

func TestRegistry_TaskTypeFor(t *testing.T) {
	reg := New(map[string]*Contract{
		"analyst":   {Role: "analysis", RootDocument: "summary.md"},
		"architect": {Role: "technical_design", RootDocument: "design.md"},
		"oddball":   {Role: "interpretive_dance", RootDocument: "notes.md"},
	})

	cases := []struct {
		agent string
		want  string
	}{
		{"analyst", "analysis"},
		{"architect", "technical_analysis"},
		{"oddball", "unknown"},
	}
	for _, tc := range cases {
		got, err := reg.TaskTypeFor(tc.agent)
		if err != nil {
			t.Fatalf("TaskTypeFor(%s): %v", tc.agent, err)
		}
		if got != tc.want {
			t.Errorf("TaskTypeFor(%s) = %q, want %q", tc.agent, got, tc.want)
		}
	}

	if _, err := reg.TaskTypeFor("nobody"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("TaskTypeFor unknown: got %v, want ErrUnknownAgent", err)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contracts.yaml")
	content := `
agents:
  reviewer:
    role: analysis
    output_directory: review
    root_document: review.md
    additional_required_files: [checklist.md]
    metadata_required: true
    transitions:
      - status: READY_FOR_MERGE
        next_agents: [merger, auditor]
  merger:
    role: implementation
    output_directory: merge
    root_document: merged.md
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write contracts: %v", err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	c, err := reg.Get("reviewer")
	if err != nil {
		t.Fatalf("Get reviewer: %v", err)
	}
	if c.OutputDirectory != "review" {
		t.Errorf("OutputDirectory = %q, want review", c.OutputDirectory)
	}
	if len(c.RequiredFiles) != 1 || c.RequiredFiles[0] != "checklist.md" {
		t.Errorf("RequiredFiles = %v, want [checklist.md]", c.RequiredFiles)
	}
	if len(c.Transitions) != 1 || len(c.Transitions[0].NextAgents) != 2 {
		t.Errorf("Transitions = %+v, want one entry with two next agents", c.Transitions)
	}

	if got := reg.Agents(); len(got) != 2 || got[0] != "merger" || got[1] != "reviewer" {
		t.Errorf("Agents() = %v, want sorted [merger reviewer]", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "nope.yaml")
	if _, err := Load(missing); err == nil {
		t.Error("Load missing file: expected error")
	}

	noRoot := filepath.Join(dir, "noroot.yaml")
	if err := os.WriteFile(noRoot, []byte("agents:\n  a:\n    role: analysis\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(noRoot); err == nil {
		t.Error("Load contract without root_document: expected error")
	}
}
