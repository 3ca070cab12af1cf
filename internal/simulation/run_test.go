package simulation_test

import (
	"errors"
	"testing"
	"time"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/council"
	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/simulation"
)

// TestFullRun walks the built-in roster through the full lead-in and checks
// the trace, the cues and the stored report.
func TestFullRun(t *testing.T) {
	r := simulation.NewRunner(t)
	timing := engine.FullTiming()
	roster := catalog.Default().All()
	total := simulation.RunDuration(timing, len(roster))

	result := r.Run(simulation.Scenario{
		Name:   "full-run",
		Timing: timing,
		Steps: []simulation.Step{
			simulation.Submit("scan.png").Then(total),
		},
	})

	simulation.AssertPhaseSequence(t, result,
		engine.PhaseAnalyzing, engine.PhaseInitiating, engine.PhaseProcessing, engine.PhaseComplete)
	simulation.AssertFinalPhase(t, result, engine.PhaseComplete)
	simulation.AssertMonotonicProgress(t, result)
	simulation.AssertResultsFollowRoster(t, result, roster)
	simulation.AssertStatusWhileProcessing(t, result)
	simulation.AssertReportCount(t, result, 1)

	final := result.Final()
	if len(final.CompletedResults) != len(roster) {
		t.Errorf("completed %d results, want %d", len(final.CompletedResults), len(roster))
	}
	if final.CurrentStageIndex != len(roster)-1 {
		t.Errorf("final stage index = %d, want %d", final.CurrentStageIndex, len(roster)-1)
	}

	cues := map[engine.Cue]int{
		engine.CueSuccess:  1,
		engine.CueThink:    len(roster),
		engine.CueAgent:    len(roster),
		engine.CueComplete: 1,
	}
	for cue, want := range cues {
		if got := simulation.CountCues(result, cue); got != want {
			t.Errorf("cue %s observed %d times, want %d", cue, got, want)
		}
	}

	report := result.Reports[0]
	if report.ID != "full-run-1" || report.FileName != "scan.png" {
		t.Errorf("report = %s/%s, want full-run-1/scan.png", report.ID, report.FileName)
	}
	if want := simulation.Epoch.Add(total); !report.Timestamp.Equal(want) {
		t.Errorf("report timestamp = %v, want %v", report.Timestamp, want)
	}
	if report.Summary == "" {
		t.Error("report has no summary")
	}
	if result.Current == nil || result.Current.ID != report.ID {
		t.Errorf("current report = %+v, want %s", result.Current, report.ID)
	}
}

// TestLeanRun skips the analyzing phase entirely.
func TestLeanRun(t *testing.T) {
	r := simulation.NewRunner(t)
	timing := engine.LeanTiming()
	total := simulation.RunDuration(timing, catalog.Default().Size())

	result := r.Run(simulation.Scenario{
		Name:   "lean-run",
		Timing: timing,
		Steps: []simulation.Step{
			simulation.Submit("scan.png").Then(total - time.Millisecond),
			simulation.Wait(time.Millisecond),
		},
	})

	simulation.AssertPhaseSequence(t, result,
		engine.PhaseInitiating, engine.PhaseProcessing, engine.PhaseComplete)
	if phase := result.Steps[0].Final.Phase; phase != engine.PhaseProcessing {
		t.Errorf("phase just before the end = %s, want processing", phase)
	}
	simulation.AssertFinalPhase(t, result, engine.PhaseComplete)
	simulation.AssertReportCount(t, result, 1)
}

// TestBackToBackRuns submits a second file after the first run completed.
// The finished run is cleared and both reports are kept, newest first.
func TestBackToBackRuns(t *testing.T) {
	r := simulation.NewRunner(t)
	timing := engine.FullTiming()
	total := simulation.RunDuration(timing, catalog.Default().Size())

	result := r.Run(simulation.Scenario{
		Name:   "back-to-back",
		Timing: timing,
		Steps: []simulation.Step{
			simulation.Submit("first.png").Then(total),
			simulation.Submit("second.png").Then(total),
		},
	})

	simulation.AssertPhaseSequence(t, result,
		engine.PhaseAnalyzing, engine.PhaseInitiating, engine.PhaseProcessing, engine.PhaseComplete,
		engine.PhaseIdle,
		engine.PhaseAnalyzing, engine.PhaseInitiating, engine.PhaseProcessing, engine.PhaseComplete)
	simulation.AssertMonotonicProgress(t, result)
	simulation.AssertReportCount(t, result, 2)

	if len(result.Reports) == 2 {
		if result.Reports[0].FileName != "second.png" || result.Reports[1].FileName != "first.png" {
			t.Errorf("history order = %s, %s; want second.png, first.png",
				result.Reports[0].FileName, result.Reports[1].FileName)
		}
	}
	if result.Current == nil || result.Current.FileName != "second.png" {
		t.Errorf("current report = %+v, want second.png", result.Current)
	}
}

// TestSubmitWhileActive rejects a second submission and leaves the first
// run undisturbed.
func TestSubmitWhileActive(t *testing.T) {
	r := simulation.NewRunner(t)
	timing := engine.FullTiming()
	total := simulation.RunDuration(timing, catalog.Default().Size())

	result := r.Run(simulation.Scenario{
		Name:   "while-active",
		Timing: timing,
		Steps: []simulation.Step{
			simulation.Submit("first.png").Then(6 * time.Second),
			simulation.Submit("second.png"),
			simulation.Wait(total),
		},
	})

	if err := result.Steps[1].Err; !errors.Is(err, council.ErrRunInProgress) {
		t.Errorf("second submit error = %v, want ErrRunInProgress", err)
	}
	if n := len(result.Steps[1].Snapshots); n != 0 {
		t.Errorf("rejected submit produced %d snapshots", n)
	}
	simulation.AssertPhaseSequence(t, result,
		engine.PhaseAnalyzing, engine.PhaseInitiating, engine.PhaseProcessing, engine.PhaseComplete)
	simulation.AssertReportCount(t, result, 1)
	if len(result.Reports) == 1 && result.Reports[0].FileName != "first.png" {
		t.Errorf("report file = %s, want first.png", result.Reports[0].FileName)
	}
}

// TestDisableSave completes the run without touching the store.
func TestDisableSave(t *testing.T) {
	r := simulation.NewRunner(t)
	timing := engine.LeanTiming()

	result := r.Run(simulation.Scenario{
		Name:        "ephemeral",
		Timing:      timing,
		DisableSave: true,
		Steps: []simulation.Step{
			simulation.Submit("scan.png").Then(simulation.RunDuration(timing, catalog.Default().Size())),
		},
	})

	simulation.AssertFinalPhase(t, result, engine.PhaseComplete)
	simulation.AssertReportCount(t, result, 0)
	if result.Current != nil {
		t.Errorf("current report = %+v, want nil", result.Current)
	}
}
