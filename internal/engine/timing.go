package engine

import (
	"fmt"
	"time"
)

// Timing holds the delays that pace a run. None of these are part of the
// engine's contract; they only decide how long each phase lasts.
type Timing struct {
	// Analyzing is how long the analyzing phase lasts.
	Analyzing time.Duration `json:"analyzing" yaml:"analyzing"`

	// Initiating is how long the initiating phase lasts.
	Initiating time.Duration `json:"initiating" yaml:"initiating"`

	// Stage is how long each agent thinks before reporting.
	Stage time.Duration `json:"stage" yaml:"stage"`

	// StageJitter adds a random offset in [0, StageJitter) to each stage.
	StageJitter time.Duration `json:"stage_jitter" yaml:"stage_jitter"`

	// PhraseInterval is the period of the thinking phrase rotation.
	// Zero disables rotation.
	PhraseInterval time.Duration `json:"phrase_interval" yaml:"phrase_interval"`

	// SkipAnalysis starts runs directly in the initiating phase.
	SkipAnalysis bool `json:"skip_analysis" yaml:"skip_analysis"`
}

// FullTiming is the three-phase lead-in: analyzing, initiating, processing.
func FullTiming() Timing {
	return Timing{
		Analyzing:      4 * time.Second,
		Initiating:     1 * time.Second,
		Stage:          4 * time.Second,
		PhraseInterval: 800 * time.Millisecond,
	}
}

// LeanTiming skips the analyzing phase and shortens the lead-in.
func LeanTiming() Timing {
	return Timing{
		Initiating:     1 * time.Second,
		Stage:          3 * time.Second,
		PhraseInterval: 800 * time.Millisecond,
		SkipAnalysis:   true,
	}
}

// Validate rejects negative durations.
func (t Timing) Validate() error {
	checks := []struct {
		name string
		d    time.Duration
	}{
		{"analyzing", t.Analyzing},
		{"initiating", t.Initiating},
		{"stage", t.Stage},
		{"stage_jitter", t.StageJitter},
		{"phrase_interval", t.PhraseInterval},
	}
	for _, c := range checks {
		if c.d < 0 {
			return fmt.Errorf("%s delay must be non-negative, got %v", c.name, c.d)
		}
	}
	return nil
}
