// Package simulation provides a scripted test harness for validating the
// council's timed behavior end to end.
//
// The simulation exercises the real council Service, Engine and
// SQLiteReportStore with no mocks. Time is driven by a virtual clock, so a
// scenario that spans minutes of council time runs instantly and
// deterministically. Scenarios are Go values listing steps: submit evidence,
// reset, or let time pass. Every snapshot and status cue is captured for
// property-based assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestResetMidStage(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:   "reset-mid-stage",
//	        Timing: engine.FullTiming(),
//	        Steps: []simulation.Step{
//	            simulation.Submit("scan.png"),
//	            simulation.Wait(7 * time.Second),
//	            simulation.Reset(),
//	            simulation.Wait(time.Minute),
//	        },
//	    })
//	    simulation.AssertFinalPhase(t, result, engine.PhaseIdle)
//	}
package simulation
