package simulation

import (
	"fmt"
	"time"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/engine"
)

// Epoch is the virtual clock's starting time in every scenario.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// PNG is the smallest byte sequence intake recognizes as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// AgentSpec is a flat builder for roster entries in tests.
type AgentSpec struct {
	ID         string
	Confidence int
	Phrases    []string
}

// ToDefinition converts the agent description into a catalog entry with
// derived names. An agent without phrases gets a single "<id> working" phrase.
func (s AgentSpec) ToDefinition() catalog.AgentDefinition {
	phrases := s.Phrases
	if len(phrases) == 0 {
		phrases = []string{s.ID + " working"}
	}
	return catalog.AgentDefinition{
		ID:   s.ID,
		Name: "Agent " + s.ID,
		Role: "Role " + s.ID,
		Outcome: catalog.SimulatedOutcome{
			ResultText:      fmt.Sprintf("Finding from %s.", s.ID),
			Confidence:      s.Confidence,
			ThinkingLabel:   s.ID + " is thinking",
			ThinkingPhrases: phrases,
		},
	}
}

// Roster converts specs to definitions, preserving order.
func Roster(specs ...AgentSpec) []catalog.AgentDefinition {
	defs := make([]catalog.AgentDefinition, len(specs))
	for i, s := range specs {
		defs[i] = s.ToDefinition()
	}
	return defs
}

// RunDuration is the council time a run of stages takes without jitter.
func RunDuration(timing engine.Timing, stages int) time.Duration {
	d := timing.Initiating + time.Duration(stages)*timing.Stage
	if !timing.SkipAnalysis {
		d += timing.Analyzing
	}
	return d
}
