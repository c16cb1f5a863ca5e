// Package contract defines the per-agent output contracts and the registry
// that decides what "done" means for each pipeline phase and who runs next.
package contract

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownAgent means the agent name has no contract in the registry.
var ErrUnknownAgent = errors.New("unknown agent")

// Transition maps one success status code to the agents that may follow it.
// The engine auto-chains only to the first listed agent; additional entries
// are independent chain roots a caller may start manually.
type Transition struct {
	Status     string   `yaml:"status"`
	NextAgents []string `yaml:"next_agents"`
}

// Contract is the static, per-agent definition of required output
// artifacts and allowed status transitions. Contracts are authored
// externally and read-only to the engine.
type Contract struct {
	Agent            string       `yaml:"-"`
	Role             string       `yaml:"role"`
	OutputDirectory  string       `yaml:"output_directory"`
	RootDocument     string       `yaml:"root_document"`
	RequiredFiles    []string     `yaml:"additional_required_files"`
	MetadataRequired bool         `yaml:"metadata_required"`
	Transitions      []Transition `yaml:"transitions"`
}

// registryFile is the YAML layout of a contract file.
type registryFile struct {
	Agents map[string]*Contract `yaml:"agents"`
}

// Registry is the static agent-name → contract lookup. It is loaded once
// and immutable for the process lifetime.
type Registry struct {
	contracts map[string]*Contract
}

// roleTaskTypes is the fixed role → task type mapping. Unmapped roles
// yield "unknown".
var roleTaskTypes = map[string]string{
	"analysis":         "analysis",
	"technical_design": "technical_analysis",
	"implementation":   "development",
	"testing":          "testing",
	"documentation":    "documentation",
}

// New builds a registry from a contract map, keying each contract by its
// agent name.
func New(contracts map[string]*Contract) *Registry {
	for name, c := range contracts {
		c.Agent = name
	}
	return &Registry{contracts: contracts}
}

// Load reads a YAML contract file and returns the parsed registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contracts %s: %w", path, err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse contracts %s: %w", path, err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("contracts %s: no agents defined", path)
	}
	for name, c := range file.Agents {
		if c.RootDocument == "" {
			return nil, fmt.Errorf("contracts %s: agent %s has no root_document", path, name)
		}
	}
	return New(file.Agents), nil
}

// Default returns the built-in five-phase pipeline:
// analyst → architect → developer → tester → scribe.
func Default() *Registry {
	return New(map[string]*Contract{
		"analyst": {
			Role:             "analysis",
			OutputDirectory:  "analyst",
			RootDocument:     "summary.md",
			MetadataRequired: true,
			Transitions: []Transition{
				{Status: "READY_FOR_DEVELOPMENT", NextAgents: []string{"architect"}},
			},
		},
		"architect": {
			Role:             "technical_design",
			OutputDirectory:  "architect",
			RootDocument:     "design.md",
			MetadataRequired: true,
			Transitions: []Transition{
				{Status: "READY_FOR_IMPLEMENTATION", NextAgents: []string{"developer"}},
			},
		},
		"developer": {
			Role:             "implementation",
			OutputDirectory:  "developer",
			RootDocument:     "implementation.md",
			MetadataRequired: true,
			Transitions: []Transition{
				{Status: "READY_FOR_TESTING", NextAgents: []string{"tester"}},
			},
		},
		"tester": {
			Role:             "testing",
			OutputDirectory:  "tester",
			RootDocument:     "test-report.md",
			MetadataRequired: true,
			Transitions: []Transition{
				{Status: "READY_FOR_DOCUMENTATION", NextAgents: []string{"scribe"}},
			},
		},
		"scribe": {
			Role:             "documentation",
			OutputDirectory:  "scribe",
			RootDocument:     "release-notes.md",
			MetadataRequired: true,
		},
	})
}

// Get returns the contract for the given agent name.
func (r *Registry) Get(agent string) (*Contract, error) {
	c, ok := r.contracts[agent]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agent, ErrUnknownAgent)
	}
	return c, nil
}

// TaskTypeFor derives the task type for an agent from its contract role.
func (r *Registry) TaskTypeFor(agent string) (string, error) {
	c, err := r.Get(agent)
	if err != nil {
		return "", err
	}
	if tt, ok := roleTaskTypes[c.Role]; ok {
		return tt, nil
	}
	return "unknown", nil
}

// Agents returns all registered agent names, sorted.
func (r *Registry) Agents() []string {
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
