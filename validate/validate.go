// Package validate checks an agent's declared outputs against its contract.
// Validation is purely structural: it confirms required files exist and the
// root document carries a metadata block, never judging document content.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sprocketd/sprocket/contract"
)

// ReasonCode classifies a single validation failure.
type ReasonCode string

const (
	ContractMissing       ReasonCode = "contract_missing"
	RootDocumentMissing   ReasonCode = "root_document_missing"
	RequiredFileMissing   ReasonCode = "required_file_missing"
	MetadataHeaderMissing ReasonCode = "metadata_header_missing"
	MetadataFieldsMissing ReasonCode = "metadata_fields_missing"
)

// metadataKeys are the five keys a root document's metadata block must carry.
var metadataKeys = []string{"enhancement", "agent", "task_id", "timestamp", "status"}

// Reason is one validation failure with enough context to fix it.
type Reason struct {
	Code   ReasonCode `json:"code"`
	Path   string     `json:"path,omitempty"`
	Fields []string   `json:"fields,omitempty"`
}

// String renders the reason with the corrective action.
func (r Reason) String() string {
	switch r.Code {
	case ContractMissing:
		return fmt.Sprintf("no contract registered for agent %q; register it before validating", r.Path)
	case RootDocumentMissing:
		return fmt.Sprintf("root document %s does not exist; create it then re-run validate", r.Path)
	case RequiredFileMissing:
		return fmt.Sprintf("required file %s does not exist; create it then re-run validate", r.Path)
	case MetadataHeaderMissing:
		return fmt.Sprintf("%s has no metadata block; add a leading section delimited by two --- lines", r.Path)
	case MetadataFieldsMissing:
		return fmt.Sprintf("%s metadata block is missing keys: %s", r.Path, strings.Join(r.Fields, ", "))
	}
	return string(r.Code)
}

// Result is the outcome of validating one agent's outputs. Validation is
// all-or-nothing: a failed Result carries every reason found, not just the
// first, so a human can fix everything in one pass.
type Result struct {
	OK      bool     `json:"ok"`
	Reasons []Reason `json:"reasons,omitempty"`
}

// Summary joins all reasons into one human-readable line.
func (r Result) Summary() string {
	if r.OK {
		return "ok"
	}
	msgs := make([]string, len(r.Reasons))
	for i, reason := range r.Reasons {
		msgs[i] = reason.String()
	}
	return strings.Join(msgs, "; ")
}

// Validator inspects agent output directories using the contract registry.
type Validator struct {
	registry *contract.Registry
}

// New creates a Validator backed by the given registry.
func New(reg *contract.Registry) *Validator {
	return &Validator{registry: reg}
}

// Validate checks the agent's outputs under workingDir. It has no side
// effects and is idempotent with respect to the filesystem.
func (v *Validator) Validate(agent, workingDir string) Result {
	c, err := v.registry.Get(agent)
	if err != nil {
		return Result{Reasons: []Reason{{Code: ContractMissing, Path: agent}}}
	}

	var reasons []Reason
	outDir := filepath.Join(workingDir, c.OutputDirectory)
	rootPath := filepath.Join(outDir, c.RootDocument)

	rootExists := fileExists(rootPath)
	if !rootExists {
		reasons = append(reasons, Reason{Code: RootDocumentMissing, Path: rootPath})
	}
	for _, name := range c.RequiredFiles {
		p := filepath.Join(outDir, name)
		if !fileExists(p) {
			reasons = append(reasons, Reason{Code: RequiredFileMissing, Path: p})
		}
	}

	if c.MetadataRequired && rootExists {
		reasons = append(reasons, checkMetadata(rootPath)...)
	}

	return Result{OK: len(reasons) == 0, Reasons: reasons}
}

// checkMetadata verifies the root document starts with a delimited metadata
// block containing all required keys.
func checkMetadata(rootPath string) []Reason {
	data, err := os.ReadFile(rootPath)
	if err != nil {
		return []Reason{{Code: RootDocumentMissing, Path: rootPath}}
	}

	fields, ok := parseMetadataBlock(string(data))
	if !ok {
		return []Reason{{Code: MetadataHeaderMissing, Path: rootPath}}
	}

	var missing []string
	for _, key := range metadataKeys {
		if strings.TrimSpace(fields[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return []Reason{{Code: MetadataFieldsMissing, Path: rootPath, Fields: missing}}
	}
	return nil
}

// parseMetadataBlock extracts the leading section bounded by two identical
// "---" delimiter lines and parses it as YAML key/value pairs.
func parseMetadataBlock(content string) (map[string]string, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return nil, false
	}
	parts := strings.SplitN(trimmed, "---", 3)
	// parts[0] is empty (before the first ---), parts[1] is the block
	if len(parts) < 3 {
		return nil, false
	}
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &raw); err != nil || raw == nil {
		return nil, false
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		if v != nil {
			fields[k] = fmt.Sprint(v)
		}
	}
	return fields, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
