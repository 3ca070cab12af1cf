package simulation

import (
	"time"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/models"
	"github.com/nvandessel/forensic-council/internal/store"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	// Agents is the roster to run. Nil uses the built-in catalog.
	Agents []catalog.AgentDefinition

	Timing engine.Timing

	// Seed feeds the stage jitter source. Equal seeds give equal traces.
	Seed uint64

	// DisableSave keeps reports out of the store.
	DisableSave bool

	Steps []Step
}

// Action is what a step does before time advances.
type Action int

const (
	ActionNone Action = iota
	ActionSubmit
	ActionReset
)

// Step is one scripted interaction followed by a span of council time.
type Step struct {
	Label   string
	Action  Action
	File    string        // evidence file name for ActionSubmit
	Advance time.Duration // council time to let pass after the action
}

// Submit returns a step that submits a PNG named file.
func Submit(file string) Step {
	return Step{Label: "submit " + file, Action: ActionSubmit, File: file}
}

// Reset returns a step that resets the council.
func Reset() Step {
	return Step{Label: "reset", Action: ActionReset}
}

// Wait returns a step that only lets d of council time pass.
func Wait(d time.Duration) Step {
	return Step{Label: "wait " + d.String(), Advance: d}
}

// StepResult captures everything observed during one step.
type StepResult struct {
	Index     int
	Label     string
	Err       error // error returned by a submit
	Snapshots []engine.Snapshot
	Cues      []engine.Cue
	Final     engine.Snapshot
}

// SimulationResult captures all steps and the final store state.
type SimulationResult struct {
	Steps   []StepResult
	Reports []models.Report // stored history at the end, newest first
	Current *models.Report
	Store   *store.SQLiteReportStore
}

// Snapshots returns every snapshot observed across all steps, in order.
func (r SimulationResult) Snapshots() []engine.Snapshot {
	var all []engine.Snapshot
	for _, s := range r.Steps {
		all = append(all, s.Snapshots...)
	}
	return all
}

// Cues returns every cue observed across all steps, in order.
func (r SimulationResult) Cues() []engine.Cue {
	var all []engine.Cue
	for _, s := range r.Steps {
		all = append(all, s.Cues...)
	}
	return all
}

// Final returns the snapshot at the end of the last step.
func (r SimulationResult) Final() engine.Snapshot {
	if len(r.Steps) == 0 {
		return engine.Snapshot{Phase: engine.PhaseIdle, CurrentStageIndex: -1}
	}
	return r.Steps[len(r.Steps)-1].Final
}

// Then returns a copy of the step that lets d of council time pass after
// its action.
func (s Step) Then(d time.Duration) Step {
	s.Advance = d
	return s
}
