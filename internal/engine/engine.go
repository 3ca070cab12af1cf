package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nvandessel/forensic-council/internal/clock"
	"github.com/nvandessel/forensic-council/internal/logging"
	"github.com/nvandessel/forensic-council/internal/models"
)

// Hooks are the engine's side-effect callbacks. Every field is optional.
//
// Hooks run one at a time, in the order their transitions were committed,
// and never while the engine lock is held, so a hook may call Snapshot,
// Start or Reset. A hook that panics is recovered and reported through
// OnHookError; the transition it belongs to has already been applied.
//
// A Reset discards stage, cue and snapshot deliveries still queued from
// before it, including when it is called from inside a hook. Phase changes
// and run completion are always delivered so listeners can track runs.
type Hooks struct {
	OnStageComplete func(result models.AgentResult)
	OnRunComplete   func(results []models.AgentResult)
	OnPhaseChange   func(from, to Phase)
	OnStatusCue     func(cue Cue)
	OnSnapshot      func(s Snapshot)
	OnHookError     func(hook string, err error)
}

// Options configures a new Engine. Only Roster is required.
type Options struct {
	Roster    Roster
	Timing    Timing
	Scheduler clock.Scheduler
	Hooks     Hooks
	Logger    *slog.Logger
	Trace     *logging.TransitionLog
	Rand      *rand.Rand
}

// Engine drives one run at a time through the state machine.
// Start, Reset and Snapshot are safe to call from any goroutine and
// never block on the passage of time.
type Engine struct {
	roster Roster
	timing Timing
	sched  clock.Scheduler
	hooks  Hooks
	logger *slog.Logger
	trace  *logging.TransitionLog

	mu       sync.Mutex
	rng      *rand.Rand
	state    State
	delay    *slot // the single delay-timer slot
	rotation *slot // the single rotation-timer slot

	queue      []delivery
	delivering bool
	gen        uint64 // bumped by every reset
}

// slot identifies one armed timer. A callback only acts if its slot is still
// the engine's current slot, checked under mu, which is also held whenever a
// slot is cancelled. A callback for a cancelled timer therefore cannot change
// state even if the underlying timer had already fired.
type slot struct {
	timer clock.Timer
}

type delivery struct {
	hook string
	gen  uint64
	keep bool // delivered even after a later reset
	fn   func()
}

// New creates an idle engine.
func New(opts Options) (*Engine, error) {
	if opts.Roster == nil || opts.Roster.Size() == 0 {
		return nil, fmt.Errorf("engine requires a non-empty roster")
	}
	if err := opts.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timing: %w", err)
	}

	e := &Engine{
		roster: opts.Roster,
		timing: opts.Timing,
		sched:  opts.Scheduler,
		hooks:  opts.Hooks,
		logger: opts.Logger,
		trace:  opts.Trace,
		rng:    opts.Rand,
		state:  IdleState(),
	}
	if e.sched == nil {
		e.sched = clock.Real{}
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return e, nil
}

// Start begins a run. It is a no-op unless the engine is idle.
func (e *Engine) Start() {
	e.dispatch(EventStart)
}

// Reset cancels any pending timers and returns the engine to idle.
// It is valid in every phase and idempotent.
func (e *Engine) Reset() {
	e.dispatch(EventReset)
}

// Snapshot returns a copy of the current run state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.snapshot(e.roster.Size())
}

// TotalStages returns the number of stages in a run.
func (e *Engine) TotalStages() int {
	return e.roster.Size()
}

func (e *Engine) dispatch(ev Event) {
	e.mu.Lock()
	e.apply(ev)
	e.mu.Unlock()
	e.drain()
}

func (e *Engine) onDelay(s *slot) {
	e.mu.Lock()
	if e.delay != s {
		e.mu.Unlock()
		return
	}
	e.delay = nil
	e.apply(EventDelayElapsed)
	e.mu.Unlock()
	e.drain()
}

func (e *Engine) onRotation(s *slot) {
	e.mu.Lock()
	if e.rotation != s {
		e.mu.Unlock()
		return
	}
	e.apply(EventPhraseTick)
	e.mu.Unlock()
	e.drain()
}

// apply runs one transition and its timer effects, queueing hook calls.
// Callers hold e.mu.
func (e *Engine) apply(ev Event) {
	prev := e.state
	next, effects := Transition(prev, ev, e.roster, e.timing)
	e.state = next
	if ev == EventReset {
		e.gen++
	}

	for _, eff := range effects {
		switch eff.Kind {
		case EffectCancelDelay:
			e.cancelDelay()
		case EffectCancelRotation:
			e.cancelRotation()
		case EffectScheduleDelay:
			e.scheduleDelay(eff.Delay + e.jitter(eff.Jitter))
		case EffectScheduleRotation:
			e.scheduleRotation(eff.Delay)
		case EffectStageComplete:
			if h := e.hooks.OnStageComplete; h != nil {
				result := eff.Result
				e.enqueue("on_stage_complete", false, func() { h(result) })
			}
		case EffectRunComplete:
			if h := e.hooks.OnRunComplete; h != nil {
				results := make([]models.AgentResult, len(next.Results))
				copy(results, next.Results)
				e.enqueue("on_run_complete", true, func() { h(results) })
			}
		case EffectCue:
			if h := e.hooks.OnStatusCue; h != nil {
				cue := eff.Cue
				e.enqueue("on_status_cue", false, func() { h(cue) })
			}
		case EffectPhaseChange:
			e.logger.Debug("phase change", "from", eff.From, "to", eff.To, "event", ev.String())
			e.trace.Record(logging.Transition{
				Kind:  logging.KindPhaseChange,
				Cause: ev.String(),
				From:  string(eff.From),
				To:    string(eff.To),
			})
			if h := e.hooks.OnPhaseChange; h != nil {
				from, to := eff.From, eff.To
				e.enqueue("on_phase_change", true, func() { h(from, to) })
			}
		}
	}

	if !changed(prev, next) {
		return
	}

	if ev == EventPhraseTick {
		e.logger.Log(context.Background(), logging.LevelTrace, "phrase rotated",
			"stage", next.StageIndex, "status", next.StatusText)
	} else {
		e.logger.Debug("transition", "event", ev.String(), "phase", next.Phase,
			"stage", next.StageIndex, "results", len(next.Results))
		e.trace.Record(logging.Transition{
			Kind:    logging.KindTransition,
			Cause:   ev.String(),
			Phase:   string(next.Phase),
			Stage:   next.StageIndex,
			Results: len(next.Results),
		})
	}

	if h := e.hooks.OnSnapshot; h != nil {
		snap := next.snapshot(e.roster.Size())
		e.enqueue("on_snapshot", false, func() { h(snap) })
	}
}

func changed(a, b State) bool {
	return a.Phase != b.Phase ||
		a.StageIndex != b.StageIndex ||
		len(a.Results) != len(b.Results) ||
		a.StatusText != b.StatusText
}

func (e *Engine) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(e.rng.Int64N(int64(max)))
}

func (e *Engine) scheduleDelay(d time.Duration) {
	e.cancelDelay()
	s := &slot{}
	e.delay = s
	s.timer = e.sched.AfterFunc(d, func() { e.onDelay(s) })
}

func (e *Engine) scheduleRotation(period time.Duration) {
	e.cancelRotation()
	s := &slot{}
	e.rotation = s
	s.timer = e.sched.Every(period, func() { e.onRotation(s) })
}

func (e *Engine) cancelDelay() {
	if e.delay == nil {
		return
	}
	e.delay.timer.Stop()
	e.delay = nil
}

func (e *Engine) cancelRotation() {
	if e.rotation == nil {
		return
	}
	e.rotation.timer.Stop()
	e.rotation = nil
}

// enqueue records a hook call for the current generation. Callers hold e.mu.
func (e *Engine) enqueue(hook string, keep bool, fn func()) {
	e.queue = append(e.queue, delivery{hook: hook, gen: e.gen, keep: keep, fn: fn})
}

// drain delivers queued hook calls outside the lock. Only one goroutine
// delivers at a time; a hook that triggers another transition has that
// transition's hooks appended and delivered after it returns.
func (e *Engine) drain() {
	e.mu.Lock()
	if e.delivering {
		e.mu.Unlock()
		return
	}
	e.delivering = true
	for len(e.queue) > 0 {
		d := e.queue[0]
		e.queue = e.queue[1:]
		if d.gen != e.gen && !d.keep {
			continue
		}
		e.mu.Unlock()
		e.invoke(d)
		e.mu.Lock()
	}
	e.queue = nil
	e.delivering = false
	e.mu.Unlock()
}

func (e *Engine) invoke(d delivery) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("hook %s panicked: %v", d.hook, r)
		e.logger.Error("hook failed", "hook", d.hook, "error", err)
		e.trace.Record(logging.Transition{Kind: logging.KindHookError, Hook: d.hook, Error: err.Error()})
		e.reportHookError(d.hook, err)
	}()
	d.fn()
}

func (e *Engine) reportHookError(hook string, err error) {
	h := e.hooks.OnHookError
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("hook error handler panicked", "hook", hook, "panic", r)
		}
	}()
	h(hook, err)
}
