package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/council"
	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/models"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Submit evidence to the council and follow the run",
		Long: `Submit an image or video to the council and follow each agent as it
works through the evidence. The finished report is stored in the project
history unless --no-save is given.

Press Ctrl+C to abandon the run; nothing is stored.

Examples:
  fcouncil run photo.jpg
  fcouncil run clip.mp4 --lean --bell
  fcouncil run photo.jpg --json          # Print only the final report`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			lean, _ := cmd.Flags().GetBool("lean")
			noSave, _ := cmd.Flags().GetBool("no-save")
			bell, _ := cmd.Flags().GetBool("bell")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, true)

			s, err := openStore(root, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			timing := cfg.Simulation.Timing()
			if lean {
				timing.SkipAnalysis = true
			}

			out := cmd.OutOrStdout()
			p := newProgress(out)
			var onCue func(engine.Cue)
			if bell && !jsonOut {
				onCue = p.bell
			}

			svc, cleanup, err := newService(serviceConfig{
				root:        root,
				cfg:         cfg,
				store:       s,
				logger:      logger,
				timing:      timing,
				disableSave: noSave,
				onCue:       onCue,
			})
			if err != nil {
				return err
			}
			defer cleanup()
			p.roster = svc.Catalog()

			snaps, unsubscribe := svc.Subscribe(64)
			defer unsubscribe()

			ctx := cmd.Context()
			file, err := svc.Analyze(ctx, args[0])
			if err != nil {
				return fmt.Errorf("cannot start run: %w", err)
			}
			if !jsonOut {
				fmt.Fprintf(out, "Evidence: %s (%s, %s)\n", file.Name, file.ContentType, humanize.Bytes(uint64(file.Size)))
			}

			sig := make(chan os.Signal, 1)
			notifySignals(sig)
			defer signal.Stop(sig)

			type outcome struct {
				report *models.Report
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				r, err := svc.Wait(ctx)
				done <- outcome{r, err}
			}()

			for {
				select {
				case snap, ok := <-snaps:
					if !ok {
						snaps = nil
						continue
					}
					if !jsonOut {
						p.render(snap)
					}
				case <-sig:
					svc.Reset()
				case res := <-done:
					if !jsonOut {
						drainSnapshots(snaps, p)
					}
					return finishRun(out, p, res.report, res.err, jsonOut, noSave)
				}
			}
		},
	}

	cmd.Flags().Bool("lean", false, "Skip the analyzing lead-in")
	cmd.Flags().Bool("no-save", false, "Keep the report out of the history")
	cmd.Flags().Bool("bell", false, "Ring the terminal bell as agents finish")

	return cmd
}

func drainSnapshots(snaps <-chan engine.Snapshot, p *progress) {
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			p.render(snap)
		default:
			return
		}
	}
}

func finishRun(out io.Writer, p *progress, report *models.Report, runErr error, jsonOut, noSave bool) error {
	if report == nil {
		if errors.Is(runErr, council.ErrRunReset) {
			if !jsonOut {
				fmt.Fprintln(out, "Run abandoned.")
			}
			return errors.New("run abandoned before completion")
		}
		if errors.Is(runErr, context.Canceled) {
			return errors.New("run interrupted")
		}
		return fmt.Errorf("run failed: %w", runErr)
	}

	if jsonOut {
		if err := json.NewEncoder(out).Encode(report); err != nil {
			return err
		}
	} else {
		p.finish(*report)
		switch {
		case runErr != nil:
		case noSave:
			fmt.Fprintln(out, "Report not saved (--no-save).")
		default:
			fmt.Fprintf(out, "Report saved: %s\n", report.ID)
		}
	}

	if runErr != nil {
		return fmt.Errorf("report not stored: %w", runErr)
	}
	return nil
}

// progress prints a run as it unfolds, one line per change.
type progress struct {
	mu      sync.Mutex
	out     io.Writer
	roster  *catalog.Catalog
	phase   engine.Phase
	stage   int
	results int
	status  string
}

func newProgress(out io.Writer) *progress {
	return &progress{out: out, phase: engine.PhaseIdle, stage: -1}
}

func (p *progress) render(s engine.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Phase != p.phase {
		switch s.Phase {
		case engine.PhaseAnalyzing:
			fmt.Fprintln(p.out, "Analyzing evidence...")
		case engine.PhaseInitiating:
			fmt.Fprintln(p.out, "Convening the council...")
		case engine.PhaseIdle:
			fmt.Fprintln(p.out, "Run reset.")
			p.stage = -1
			p.results = 0
			p.status = ""
		}
		p.phase = s.Phase
	}

	p.flush(s.CompletedResults)

	if s.Phase != engine.PhaseProcessing {
		return
	}
	if s.CurrentStageIndex != p.stage && s.CurrentStageIndex >= 0 {
		p.stage = s.CurrentStageIndex
		p.status = ""
		agent := p.roster.Get(p.stage)
		fmt.Fprintf(p.out, "[%d/%d] %s (%s)\n", p.stage+1, s.TotalStages, agent.Name, agent.Role)
	}
	if s.CurrentStatusText != "" && s.CurrentStatusText != p.status {
		p.status = s.CurrentStatusText
		fmt.Fprintf(p.out, "    %s\n", p.status)
	}
}

// flush prints results not yet shown. Callers hold mu.
func (p *progress) flush(results []models.AgentResult) {
	for ; p.results < len(results); p.results++ {
		r := results[p.results]
		fmt.Fprintf(p.out, "    => %s (confidence %d%%)\n", r.Result, r.Confidence)
	}
}

func (p *progress) finish(r models.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flush(r.Agents)
	fmt.Fprintf(p.out, "\nCouncil complete: %d findings\n\n%s\n\n", len(r.Agents), r.Summary)
}

func (p *progress) bell(c engine.Cue) {
	if c != engine.CueAgent && c != engine.CueComplete {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, "\a")
}
