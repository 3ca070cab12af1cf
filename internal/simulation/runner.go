package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/clock"
	"github.com/nvandessel/forensic-council/internal/council"
	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/intake"
	"github.com/nvandessel/forensic-council/internal/store"
)

// snapshotBuffer is large enough that no scenario step overflows it, so
// the trace is never thinned by the slow-subscriber policy.
const snapshotBuffer = 1 << 14

// Runner orchestrates scripted council runs against a real report store.
type Runner struct {
	t     *testing.T
	dir   string
	store *store.SQLiteReportStore
}

// NewRunner creates a simulation runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteReportStore(tmpDir, nil)
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, dir: tmpDir, store: s}
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	roster := catalog.Default()
	if scenario.Agents != nil {
		var err error
		roster, err = catalog.New(scenario.Agents)
		if err != nil {
			r.t.Fatalf("%s: invalid roster: %v", scenario.Name, err)
		}
	}

	clk := clock.NewVirtual(Epoch)
	var (
		cueMu sync.Mutex
		cues  []engine.Cue
	)
	n := 0
	svc, err := council.New(council.Options{
		Catalog:   roster,
		Timing:    scenario.Timing,
		Store:     r.store,
		Validator: intake.NewValidator(),
		Scheduler: clk,
		Now:       clk.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("%s-%d", scenario.Name, n)
		},
		Rand:        rand.New(rand.NewPCG(scenario.Seed, scenario.Seed)),
		DisableSave: scenario.DisableSave,
		OnCue: func(c engine.Cue) {
			cueMu.Lock()
			cues = append(cues, c)
			cueMu.Unlock()
		},
	})
	if err != nil {
		r.t.Fatalf("%s: council.New: %v", scenario.Name, err)
	}
	defer svc.Close()

	snaps, unsubscribe := svc.Subscribe(snapshotBuffer)
	defer unsubscribe()

	steps := make([]StepResult, len(scenario.Steps))
	for i, step := range scenario.Steps {
		sr := StepResult{Index: i, Label: step.Label}

		switch step.Action {
		case ActionSubmit:
			_, sr.Err = svc.Analyze(ctx, r.writeEvidence(step.File))
		case ActionReset:
			svc.Reset()
		}
		if step.Advance > 0 {
			clk.Advance(step.Advance)
		}

		sr.Snapshots = drain(snaps)
		cueMu.Lock()
		sr.Cues, cues = cues, nil
		cueMu.Unlock()
		sr.Final = svc.Snapshot()
		steps[i] = sr
	}

	history, err := r.store.LoadHistory(ctx)
	if err != nil {
		r.t.Fatalf("%s: LoadHistory: %v", scenario.Name, err)
	}
	current, err := r.store.Current(ctx)
	if err != nil {
		r.t.Fatalf("%s: Current: %v", scenario.Name, err)
	}

	return SimulationResult{
		Steps:   steps,
		Reports: history,
		Current: current,
		Store:   r.store,
	}
}

// writeEvidence writes a minimal PNG under the runner's evidence directory.
func (r *Runner) writeEvidence(name string) string {
	r.t.Helper()
	dir := store.EvidenceDir(r.dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		r.t.Fatalf("writeEvidence: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, PNG, 0600); err != nil {
		r.t.Fatalf("writeEvidence: %v", err)
	}
	return path
}

func drain(ch <-chan engine.Snapshot) []engine.Snapshot {
	var out []engine.Snapshot
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		default:
			return out
		}
	}
}
