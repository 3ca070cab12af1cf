// Package engine implements the council simulation: a finite state machine
// that walks the agent catalog stage by stage on a timer, rotating status
// text while each agent "thinks" and emitting a result when it finishes.
//
// The machine itself is the pure function Transition. Engine wraps it with a
// scheduler, runs the effects it returns, and exposes Start, Reset and
// Snapshot to callers.
package engine

import (
	"github.com/nvandessel/forensic-council/internal/models"
)

// Phase is the engine's top-level state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseInitiating Phase = "initiating"
	PhaseProcessing Phase = "processing"
	PhaseComplete   Phase = "complete"
)

// Cue names a status sound a presentation layer may play.
type Cue string

const (
	CueSuccess  Cue = "success"  // run accepted and started
	CueThink    Cue = "think"    // a stage began thinking
	CueAgent    Cue = "agent"    // a stage completed
	CueComplete Cue = "complete" // the whole run completed
)

// State is the mutable core of one run. Values are treated as immutable by
// Transition: it always returns a fresh State.
type State struct {
	Phase      Phase
	StageIndex int
	Results    []models.AgentResult
	StatusText string

	// phrase is the index of the next thinking phrase to show.
	phrase int
}

// IdleState returns the state of an engine with no run.
func IdleState() State {
	return State{Phase: PhaseIdle, StageIndex: -1}
}

// Snapshot is the externally observable view of a run at one instant.
type Snapshot struct {
	Phase             Phase                `json:"phase"`
	CurrentStageIndex int                  `json:"current_stage_index"`
	CompletedResults  []models.AgentResult `json:"completed_results"`
	CurrentStatusText string               `json:"current_status_text"`
	TotalStages       int                  `json:"total_stages"`
}

func (s State) snapshot(total int) Snapshot {
	results := make([]models.AgentResult, len(s.Results))
	copy(results, s.Results)
	return Snapshot{
		Phase:             s.Phase,
		CurrentStageIndex: s.StageIndex,
		CompletedResults:  results,
		CurrentStatusText: s.StatusText,
		TotalStages:       total,
	}
}

// Done reports whether the snapshot is in the terminal phase.
func (s Snapshot) Done() bool {
	return s.Phase == PhaseComplete
}
