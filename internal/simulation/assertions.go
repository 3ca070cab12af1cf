package simulation

import (
	"testing"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/engine"
)

// PhaseSequence collapses the observed snapshots into the sequence of
// distinct phases they passed through.
func PhaseSequence(result SimulationResult) []engine.Phase {
	var seq []engine.Phase
	for _, s := range result.Snapshots() {
		if len(seq) == 0 || seq[len(seq)-1] != s.Phase {
			seq = append(seq, s.Phase)
		}
	}
	return seq
}

// AssertPhaseSequence asserts the phases observed, with repeats collapsed.
func AssertPhaseSequence(t *testing.T, result SimulationResult, want ...engine.Phase) {
	t.Helper()
	got := PhaseSequence(result)
	if len(got) != len(want) {
		t.Errorf("AssertPhaseSequence: got %v, want %v", got, want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AssertPhaseSequence: got %v, want %v", got, want)
			return
		}
	}
}

// AssertFinalPhase asserts the phase at the end of the scenario.
func AssertFinalPhase(t *testing.T, result SimulationResult, want engine.Phase) {
	t.Helper()
	if got := result.Final().Phase; got != want {
		t.Errorf("AssertFinalPhase: got %s, want %s", got, want)
	}
}

// AssertMonotonicProgress asserts that within every run the stage index and
// the number of completed results never go backwards. A snapshot in the
// idle phase starts a new run.
func AssertMonotonicProgress(t *testing.T, result SimulationResult) {
	t.Helper()
	stage, done := -1, 0
	for i, s := range result.Snapshots() {
		if s.Phase == engine.PhaseIdle {
			stage, done = -1, 0
			continue
		}
		if s.CurrentStageIndex < stage {
			t.Errorf("AssertMonotonicProgress: snapshot %d: stage went from %d to %d", i, stage, s.CurrentStageIndex)
		}
		if len(s.CompletedResults) < done {
			t.Errorf("AssertMonotonicProgress: snapshot %d: results went from %d to %d", i, done, len(s.CompletedResults))
		}
		stage, done = s.CurrentStageIndex, len(s.CompletedResults)
	}
}

// AssertResultsFollowRoster asserts that every snapshot's completed results
// are a prefix of the roster, in order, carrying each agent's outcome.
func AssertResultsFollowRoster(t *testing.T, result SimulationResult, roster []catalog.AgentDefinition) {
	t.Helper()
	for i, s := range result.Snapshots() {
		if len(s.CompletedResults) > len(roster) {
			t.Errorf("AssertResultsFollowRoster: snapshot %d: %d results for %d agents", i, len(s.CompletedResults), len(roster))
			continue
		}
		for j, r := range s.CompletedResults {
			def := roster[j]
			if r.ID != def.ID || r.Result != def.Outcome.ResultText || r.Confidence != def.Outcome.Confidence {
				t.Errorf("AssertResultsFollowRoster: snapshot %d: result %d = %+v, want agent %s", i, j, r, def.ID)
			}
		}
	}
}

// AssertStatusWhileProcessing asserts that every processing snapshot shows
// status text for the current stage.
func AssertStatusWhileProcessing(t *testing.T, result SimulationResult) {
	t.Helper()
	for i, s := range result.Snapshots() {
		if s.Phase == engine.PhaseProcessing && s.CurrentStatusText == "" {
			t.Errorf("AssertStatusWhileProcessing: snapshot %d: empty status text at stage %d", i, s.CurrentStageIndex)
		}
	}
}

// AssertQuietAfter asserts that no snapshots or cues were observed in any
// step from index on.
func AssertQuietAfter(t *testing.T, result SimulationResult, index int) {
	t.Helper()
	for i := index; i < len(result.Steps); i++ {
		s := result.Steps[i]
		if len(s.Snapshots) > 0 || len(s.Cues) > 0 {
			t.Errorf("AssertQuietAfter: step %d (%s): %d snapshots, %d cues", i, s.Label, len(s.Snapshots), len(s.Cues))
		}
	}
}

// AssertReportCount asserts how many reports ended up in the history.
func AssertReportCount(t *testing.T, result SimulationResult, want int) {
	t.Helper()
	if len(result.Reports) != want {
		t.Errorf("AssertReportCount: got %d reports, want %d", len(result.Reports), want)
	}
}

// CountCues counts how often cue was observed.
func CountCues(result SimulationResult, cue engine.Cue) int {
	n := 0
	for _, c := range result.Cues() {
		if c == cue {
			n++
		}
	}
	return n
}

// StatusTexts returns the distinct status texts shown during stage index,
// in the order first seen.
func StatusTexts(result SimulationResult, stage int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range result.Snapshots() {
		if s.Phase != engine.PhaseProcessing || s.CurrentStageIndex != stage {
			continue
		}
		if !seen[s.CurrentStatusText] {
			seen[s.CurrentStatusText] = true
			out = append(out, s.CurrentStatusText)
		}
	}
	return out
}
