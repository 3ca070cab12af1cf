// Package council wires the simulation engine to evidence intake, report
// summarization and the report store. A Service runs one council at a time.
package council

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/clock"
	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/intake"
	"github.com/nvandessel/forensic-council/internal/logging"
	"github.com/nvandessel/forensic-council/internal/models"
	"github.com/nvandessel/forensic-council/internal/store"
	"github.com/nvandessel/forensic-council/internal/summarization"
)

var (
	// ErrRunInProgress is returned by Analyze while a run is active.
	ErrRunInProgress = errors.New("a council run is already in progress")

	// ErrInvalidEvidence wraps every intake rejection.
	ErrInvalidEvidence = errors.New("invalid evidence")

	// ErrRunReset is returned by Wait when the run was reset before it completed.
	ErrRunReset = errors.New("run was reset before completion")

	// ErrNoRun is returned by Wait when nothing has been submitted.
	ErrNoRun = errors.New("no run has been started")
)

// Options configures a Service. Catalog and Store are required.
type Options struct {
	Catalog   *catalog.Catalog
	Timing    engine.Timing
	Store     store.ReportStore
	Validator intake.Validator

	// Scheduler drives the engine's timers. Defaults to the wall clock.
	Scheduler clock.Scheduler

	// Now stamps reports. Defaults to time.Now.
	Now func() time.Time

	// NewID generates report ids. Defaults to random UUIDs.
	NewID func() string

	Summarizer summarization.Summarizer

	// DisableSave keeps finished reports in memory only.
	DisableSave bool

	// OnCue receives status cues for sound or bell output.
	OnCue func(engine.Cue)

	Logger *slog.Logger
	Trace  *logging.TransitionLog
	Rand   *rand.Rand
}

// run is one submitted piece of evidence and its outcome.
type run struct {
	file   intake.File
	done   chan struct{}
	report *models.Report
	err    error
}

func (r *run) finish(report *models.Report, err error) {
	select {
	case <-r.done:
		return
	default:
	}
	r.report = report
	r.err = err
	close(r.done)
}

// Service runs councils for submitted evidence and persists their reports.
type Service struct {
	eng        *engine.Engine
	catalog    *catalog.Catalog
	store      store.ReportStore
	validator  intake.Validator
	summarizer summarization.Summarizer
	now        func() time.Time
	newID      func() string
	save       bool
	onCue      func(engine.Cue)
	logger     *slog.Logger

	// control serializes Analyze and Reset. Hooks never take it.
	control sync.Mutex

	mu         sync.Mutex
	queued     []*run // submitted, waiting for the engine to leave idle
	active     *run
	latest     *run
	lastReport *models.Report
	lastErr    error
	subs       map[int]chan engine.Snapshot
	nextSub    int
}

// New creates a Service with an idle engine.
func New(opts Options) (*Service, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("council requires a catalog")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("council requires a report store")
	}

	s := &Service{
		catalog:    opts.Catalog,
		store:      opts.Store,
		validator:  opts.Validator,
		summarizer: opts.Summarizer,
		now:        opts.Now,
		newID:      opts.NewID,
		save:       !opts.DisableSave,
		onCue:      opts.OnCue,
		logger:     opts.Logger,
		subs:       make(map[int]chan engine.Snapshot),
	}
	if s.summarizer == nil {
		s.summarizer = summarization.NewRuleSummarizer(summarization.DefaultConfig())
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}

	eng, err := engine.New(engine.Options{
		Roster:    opts.Catalog,
		Timing:    opts.Timing,
		Scheduler: opts.Scheduler,
		Logger:    s.logger,
		Trace:     opts.Trace,
		Rand:      opts.Rand,
		Hooks: engine.Hooks{
			OnPhaseChange:   s.onPhaseChange,
			OnRunComplete:   s.onRunComplete,
			OnStatusCue:     s.onStatusCue,
			OnSnapshot:      s.broadcast,
			OnStageComplete: s.onStageComplete,
			OnHookError: func(hook string, err error) {
				s.setLastErr(err)
			},
		},
	})
	if err != nil {
		return nil, err
	}
	s.eng = eng
	return s, nil
}

// Catalog returns the roster the service runs.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Snapshot returns the engine's current state.
func (s *Service) Snapshot() engine.Snapshot {
	return s.eng.Snapshot()
}

// Analyze validates the file at path and starts a run for it. A finished
// run is cleared first; an active one yields ErrRunInProgress.
func (s *Service) Analyze(ctx context.Context, path string) (intake.File, error) {
	if err := ctx.Err(); err != nil {
		return intake.File{}, err
	}

	f, err := intake.Inspect(path)
	if err != nil {
		return intake.File{}, fmt.Errorf("%w: %v", ErrInvalidEvidence, err)
	}
	if res := s.validator.Validate(f); !res.Valid {
		return f, fmt.Errorf("%w: %s", ErrInvalidEvidence, res.Error)
	}

	s.control.Lock()
	defer s.control.Unlock()

	switch s.eng.Snapshot().Phase {
	case engine.PhaseIdle:
	case engine.PhaseComplete:
		s.eng.Reset()
	default:
		return f, ErrRunInProgress
	}

	r := &run{file: f, done: make(chan struct{})}
	s.mu.Lock()
	s.queued = append(s.queued, r)
	s.latest = r
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info("council run started", "file", f.Name, "type", f.ContentType, "size", f.Size)
	s.eng.Start()
	return f, nil
}

// Reset cancels the active run, if any, and returns the engine to idle.
func (s *Service) Reset() {
	s.control.Lock()
	defer s.control.Unlock()
	s.eng.Reset()
}

// Wait blocks until the most recently submitted run completes or is reset.
func (s *Service) Wait(ctx context.Context) (*models.Report, error) {
	s.mu.Lock()
	r := s.latest
	s.mu.Unlock()
	if r == nil {
		return nil, ErrNoRun
	}

	select {
	case <-r.done:
		return r.report, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LastReport returns the report of the most recently completed run.
func (s *Service) LastReport() *models.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == nil {
		return nil
	}
	cp := s.lastReport.Clone()
	return &cp
}

// LastError returns the most recent persistence or hook failure. It is
// cleared when a new run is submitted.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe returns a channel receiving a snapshot after every state
// change. A slow subscriber loses older snapshots, never the newest one.
// The returned function unsubscribes and closes the channel.
func (s *Service) Subscribe(buffer int) (<-chan engine.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan engine.Snapshot, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Close resets the engine and closes every subscription. The store is
// owned by the caller and left open.
func (s *Service) Close() {
	s.Reset()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// History returns stored reports, newest first.
func (s *Service) History(ctx context.Context) ([]models.Report, error) {
	return s.store.LoadHistory(ctx)
}

// CurrentReport returns the stored current report, or nil.
func (s *Service) CurrentReport(ctx context.Context) (*models.Report, error) {
	return s.store.Current(ctx)
}

// Report returns one stored report by id.
func (s *Service) Report(ctx context.Context, id string) (*models.Report, error) {
	return s.store.GetReport(ctx, id)
}

// DeleteReport removes a report from the history.
func (s *Service) DeleteReport(ctx context.Context, id string) error {
	return s.store.DeleteFromHistory(ctx, id)
}

// ClearHistory removes every report from the history.
func (s *Service) ClearHistory(ctx context.Context) error {
	return s.store.ClearHistory(ctx)
}

func (s *Service) onPhaseChange(from, to engine.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case from == engine.PhaseIdle && len(s.queued) > 0:
		s.active = s.queued[0]
		s.queued = s.queued[1:]
	case to == engine.PhaseIdle && s.active != nil:
		s.active.finish(nil, ErrRunReset)
		s.active = nil
	}
}

func (s *Service) onStageComplete(result models.AgentResult) {
	s.logger.Debug("agent reported", "agent", result.ID, "confidence", result.Confidence)
}

func (s *Service) onRunComplete(results []models.AgentResult) {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()
	if r == nil {
		return
	}

	report, err := summarization.BuildWith(s.summarizer, r.file.Name, results, s.now(), s.newID())
	if err != nil {
		s.logger.Error("failed to build report", "file", r.file.Name, "error", err)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.lastErr = err
		r.finish(nil, err)
		return
	}
	if s.save {
		err = s.persist(report)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Error("failed to store report", "file", r.file.Name, "error", err)
		s.lastErr = err
	} else {
		s.logger.Info("council run complete", "file", r.file.Name, "report", report.ID, "agents", len(results))
	}
	cp := report.Clone()
	s.lastReport = &cp
	r.finish(&report, err)
}

func (s *Service) persist(report models.Report) error {
	ctx := context.Background()
	if err := s.store.Save(ctx, report); err != nil {
		return fmt.Errorf("saving current report: %w", err)
	}
	if err := s.store.AppendToHistory(ctx, report); err != nil {
		return fmt.Errorf("appending report to history: %w", err)
	}
	return nil
}

func (s *Service) onStatusCue(cue engine.Cue) {
	if s.onCue != nil {
		s.onCue(cue)
	}
}

func (s *Service) broadcast(snap engine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		for {
			select {
			case ch <- snap:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (s *Service) setLastErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}
