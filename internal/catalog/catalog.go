// Package catalog holds the ordered, immutable roster of council agents.
// The order of the roster defines the order in which stages run.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/forensic-council/internal/sanitize"
)

//go:embed agents.yaml
var defaultRoster []byte

// SimulatedOutcome is the fixed script an agent plays out during its stage.
type SimulatedOutcome struct {
	// ResultText is the finding reported when the stage completes.
	ResultText string `json:"result" yaml:"result"`

	// Confidence is the reported confidence score, 0 to 100.
	Confidence int `json:"confidence" yaml:"confidence"`

	// ThinkingLabel is the status text shown when the stage begins.
	ThinkingLabel string `json:"thinking" yaml:"thinking"`

	// ThinkingPhrases rotate as status text while the stage is thinking.
	ThinkingPhrases []string `json:"thinking_phrases" yaml:"thinking_phrases"`
}

// AgentDefinition describes one council member.
type AgentDefinition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Role        string           `json:"role" yaml:"role"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Outcome     SimulatedOutcome `json:"simulation" yaml:"simulation"`
}

// Catalog is an ordered, read-only sequence of agent definitions.
// It is safe for concurrent use because nothing mutates it after New.
type Catalog struct {
	agents []AgentDefinition
}

type rosterFile struct {
	Agents []AgentDefinition `yaml:"agents"`
}

// New builds a catalog from definitions, validating each one.
// The definitions are copied and their text fields sanitized; later changes
// to defs do not affect the catalog.
func New(defs []AgentDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one agent")
	}

	seen := make(map[string]bool, len(defs))
	agents := make([]AgentDefinition, len(defs))
	for i, d := range defs {
		d = clean(d)
		if err := validate(d); err != nil {
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("agent %d: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true

		agents[i] = d
	}

	return &Catalog{agents: agents}, nil
}

// clean sanitizes every free-text field. Phrases left empty are dropped.
func clean(d AgentDefinition) AgentDefinition {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = sanitize.Text(d.Name)
	d.Role = sanitize.Text(d.Role)
	d.Description = sanitize.Text(d.Description)
	d.Outcome.ResultText = sanitize.Text(d.Outcome.ResultText)
	d.Outcome.ThinkingLabel = sanitize.Text(d.Outcome.ThinkingLabel)

	phrases := make([]string, 0, len(d.Outcome.ThinkingPhrases))
	for _, p := range d.Outcome.ThinkingPhrases {
		if p = sanitize.Text(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	d.Outcome.ThinkingPhrases = phrases
	return d
}

func validate(d AgentDefinition) error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%s: name is required", d.ID)
	}
	if d.Outcome.Confidence < 0 || d.Outcome.Confidence > 100 {
		return fmt.Errorf("%s: confidence must be between 0 and 100, got %d", d.ID, d.Outcome.Confidence)
	}
	if strings.TrimSpace(d.Outcome.ThinkingLabel) == "" {
		return fmt.Errorf("%s: thinking label is required", d.ID)
	}
	if len(d.Outcome.ThinkingPhrases) == 0 {
		return fmt.Errorf("%s: at least one thinking phrase is required", d.ID)
	}
	return nil
}

// Parse decodes a YAML roster of the form `agents: [...]`.
func Parse(data []byte) (*Catalog, error) {
	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	return New(rf.Agents)
}

// Load reads a YAML roster from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in forensic council roster.
func Default() *Catalog {
	c, err := Parse(defaultRoster)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded roster is invalid: %v", err))
	}
	return c
}

// Get returns the definition at index. An out-of-range index is a
// programming error and panics.
func (c *Catalog) Get(index int) AgentDefinition {
	if index < 0 || index >= len(c.agents) {
		panic(fmt.Sprintf("catalog: index %d out of range [0,%d)", index, len(c.agents)))
	}
	d := c.agents[index]
	d.Outcome.ThinkingPhrases = append([]string(nil), d.Outcome.ThinkingPhrases...)
	return d
}

// Size returns the number of agents.
func (c *Catalog) Size() int {
	return len(c.agents)
}

// All returns a copy of every definition in stage order.
func (c *Catalog) All() []AgentDefinition {
	out := make([]AgentDefinition, len(c.agents))
	for i := range c.agents {
		out[i] = c.Get(i)
	}
	return out
}
