package models

import (
	"fmt"
	"strings"
	"time"
)

// AgentResult is the outcome of one completed stage. It is copied from the
// agent's definition when the stage finishes and never changes afterwards.
type AgentResult struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Role       string `json:"role" yaml:"role"`
	Result     string `json:"result" yaml:"result"`
	Confidence int    `json:"confidence" yaml:"confidence"`
}

// Report is the durable record produced once a run reaches completion.
type Report struct {
	ID        string        `json:"id" yaml:"id"`
	FileName  string        `json:"fileName" yaml:"file_name"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Summary   string        `json:"summary" yaml:"summary"`
	Agents    []AgentResult `json:"agents" yaml:"agents"`
}

// Validate checks that a report carries every required field. Reports read
// back from storage are validated before being handed to callers.
func (r Report) Validate() error {
	var problems []string
	if strings.TrimSpace(r.ID) == "" {
		problems = append(problems, "id is required")
	}
	if strings.TrimSpace(r.FileName) == "" {
		problems = append(problems, "fileName is required")
	}
	if r.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}
	for i, a := range r.Agents {
		if err := a.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("agents[%d]: %v", i, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid report: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks a single agent result.
func (a AgentResult) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if a.Confidence < 0 || a.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100, got %d", a.Confidence)
	}
	return nil
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	cp := r
	if r.Agents != nil {
		cp.Agents = make([]AgentResult, len(r.Agents))
		copy(cp.Agents, r.Agents)
	}
	return cp
}
