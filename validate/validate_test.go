package validate

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sprocketd/sprocket/contract"
)

const validDoc = `---
enhancement: unit
agent: analyst
task_id: T1
timestamp: "2026-08-29T10:00:00Z"
status: READY_FOR_DEVELOPMENT
---

# Summary

Findings go here.
`

func testRegistry() *contract.Registry {
	return contract.New(map[string]*contract.Contract{
		"analyst": {
			Role:             "analysis",
			OutputDirectory:  "analyst",
			RootDocument:     "summary.md",
			RequiredFiles:    []string{"details.md"},
			MetadataRequired: true,
		},
		"scribe": {
			Role:            "documentation",
			OutputDirectory: "scribe",
			RootDocument:    "release-notes.md",
		},
	})
}

func writeOutput(t *testing.T, dir, agent, name, content string) string {
	t.Helper()
	outDir := filepath.Join(dir, agent)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestValidate_OK(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "analyst", "summary.md", validDoc)
	writeOutput(t, dir, "analyst", "details.md", "details")

	v := New(testRegistry())
	res := v.Validate("analyst", dir)
	if !res.OK {
		t.Fatalf("Validate: not OK, reasons: %s", res.Summary())
	}
	if len(res.Reasons) != 0 {
		t.Errorf("Reasons = %v, want empty", res.Reasons)
	}
}

func TestValidate_ContractMissing(t *testing.T) {
	v := New(testRegistry())
	res := v.Validate("nobody", t.TempDir())
	if res.OK {
		t.Fatal("expected failure for unknown agent")
	}
	if res.Reasons[0].Code != ContractMissing {
		t.Errorf("code = %q, want %q", res.Reasons[0].Code, ContractMissing)
	}
}

func TestValidate_RootDocumentMissing(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "analyst", "details.md", "details")

	v := New(testRegistry())
	res := v.Validate("analyst", dir)
	if res.OK {
		t.Fatal("expected failure for missing root document")
	}
	if res.Reasons[0].Code != RootDocumentMissing {
		t.Errorf("code = %q, want %q", res.Reasons[0].Code, RootDocumentMissing)
	}
	want := filepath.Join(dir, "analyst", "summary.md")
	if res.Reasons[0].Path != want {
		t.Errorf("path = %q, want %q", res.Reasons[0].Path, want)
	}
}

// All problems are reported at once so a human can fix everything in one pass.
func TestValidate_AggregatesAllReasons(t *testing.T) {
	dir := t.TempDir()
	// Neither the root document nor the required file exists.
	v := New(testRegistry())
	res := v.Validate("analyst", dir)
	if res.OK {
		t.Fatal("expected failure")
	}
	if len(res.Reasons) != 2 {
		t.Fatalf("reasons = %d, want 2 (root + required file): %s", len(res.Reasons), res.Summary())
	}
	codes := []ReasonCode{res.Reasons[0].Code, res.Reasons[1].Code}
	want := []ReasonCode{RootDocumentMissing, RequiredFileMissing}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("codes = %v, want %v", codes, want)
	}
}

func TestValidate_MetadataHeaderMissing(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "analyst", "summary.md", "# Summary without metadata\n")
	writeOutput(t, dir, "analyst", "details.md", "details")

	v := New(testRegistry())
	res := v.Validate("analyst", dir)
	if res.OK {
		t.Fatal("expected failure for missing metadata block")
	}
	if res.Reasons[0].Code != MetadataHeaderMissing {
		t.Errorf("code = %q, want %q", res.Reasons[0].Code, MetadataHeaderMissing)
	}
}

func TestValidate_MetadataFieldsMissing(t *testing.T) {
	dir := t.TempDir()
	doc := "---\nenhancement: unit\nagent: analyst\n---\n\n# Summary\n"
	writeOutput(t, dir, "analyst", "summary.md", doc)
	writeOutput(t, dir, "analyst", "details.md", "details")

	v := New(testRegistry())
	res := v.Validate("analyst", dir)
	if res.OK {
		t.Fatal("expected failure for missing metadata fields")
	}
	r := res.Reasons[0]
	if r.Code != MetadataFieldsMissing {
		t.Fatalf("code = %q, want %q", r.Code, MetadataFieldsMissing)
	}
	want := []string{"task_id", "timestamp", "status"}
	if !reflect.DeepEqual(r.Fields, want) {
		t.Errorf("missing fields = %v, want %v", r.Fields, want)
	}
}

func TestValidate_MetadataNotRequired(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "scribe", "release-notes.md", "no metadata needed here\n")

	v := New(testRegistry())
	res := v.Validate("scribe", dir)
	if !res.OK {
		t.Fatalf("Validate: not OK, reasons: %s", res.Summary())
	}
}

// Validation is pure: two calls with no filesystem change agree.
func TestValidate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "analyst", "summary.md", validDoc)

	v := New(testRegistry())
	first := v.Validate("analyst", dir)
	second := v.Validate("analyst", dir)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
}

func TestParseMetadataBlock(t *testing.T) {
	fields, ok := parseMetadataBlock(validDoc)
	if !ok {
		t.Fatal("parseMetadataBlock: expected success")
	}
	if fields["agent"] != "analyst" {
		t.Errorf("agent = %q, want analyst", fields["agent"])
	}
	if fields["status"] != "READY_FOR_DEVELOPMENT" {
		t.Errorf("status = %q, want READY_FOR_DEVELOPMENT", fields["status"])
	}

	if _, ok := parseMetadataBlock("no delimiters at all"); ok {
		t.Error("expected failure without delimiters")
	}
	if _, ok := parseMetadataBlock("---\nunterminated: block\n"); ok {
		t.Error("expected failure with a single delimiter")
	}
}
