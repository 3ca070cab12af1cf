package engine

import (
	"time"

	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/models"
)

// Roster is the read-only view of the agent catalog the engine needs.
type Roster interface {
	Get(index int) catalog.AgentDefinition
	Size() int
}

// Event is an input to the state machine.
type Event int

const (
	EventStart        Event = iota // external start()
	EventReset                     // external reset()
	EventDelayElapsed              // the single delay timer fired
	EventPhraseTick                // the rotation timer fired
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventReset:
		return "reset"
	case EventDelayElapsed:
		return "delay_elapsed"
	case EventPhraseTick:
		return "phrase_tick"
	default:
		return "unknown"
	}
}

// EffectKind identifies what an Effect asks the runner to do.
type EffectKind int

const (
	EffectCancelDelay      EffectKind = iota // stop the delay timer, if any
	EffectCancelRotation                     // stop the rotation timer, if any
	EffectScheduleDelay                      // arm the delay timer for Delay (+ Jitter)
	EffectScheduleRotation                   // arm the rotation timer every Delay
	EffectStageComplete                      // invoke the stage-complete hook with Result
	EffectRunComplete                        // invoke the run-complete hook
	EffectCue                                // invoke the status cue hook with Cue
	EffectPhaseChange                        // invoke the phase hook with From and To
)

// Effect is one side effect requested by Transition.
type Effect struct {
	Kind   EffectKind
	Delay  time.Duration
	Jitter time.Duration
	Result models.AgentResult
	Cue    Cue
	From   Phase
	To     Phase
}

// Transition is the state machine. It is pure: given the same inputs it
// returns the same state and effects, and it never touches timers or hooks.
//
// Scheduling effects are always preceded by a cancel effect for the same
// slot, so a runner that honours the list in order never holds two live
// delay timers or two live rotation timers.
func Transition(s State, ev Event, roster Roster, t Timing) (State, []Effect) {
	switch ev {
	case EventStart:
		return start(s, t)
	case EventReset:
		return reset(s)
	case EventDelayElapsed:
		return delayElapsed(s, roster, t)
	case EventPhraseTick:
		return phraseTick(s, roster)
	default:
		return s, nil
	}
}

func start(s State, t Timing) (State, []Effect) {
	if s.Phase != PhaseIdle {
		return s, nil
	}

	next := IdleState()
	next.Phase = PhaseAnalyzing
	delay := t.Analyzing
	if t.SkipAnalysis {
		next.Phase = PhaseInitiating
		delay = t.Initiating
	}

	return next, []Effect{
		{Kind: EffectCancelDelay},
		{Kind: EffectCancelRotation},
		{Kind: EffectPhaseChange, From: s.Phase, To: next.Phase},
		{Kind: EffectCue, Cue: CueSuccess},
		{Kind: EffectScheduleDelay, Delay: delay},
	}
}

func reset(s State) (State, []Effect) {
	effects := []Effect{
		{Kind: EffectCancelDelay},
		{Kind: EffectCancelRotation},
	}
	if s.Phase != PhaseIdle {
		effects = append(effects, Effect{Kind: EffectPhaseChange, From: s.Phase, To: PhaseIdle})
	}
	return IdleState(), effects
}

func delayElapsed(s State, roster Roster, t Timing) (State, []Effect) {
	switch s.Phase {
	case PhaseAnalyzing:
		next := s
		next.Phase = PhaseInitiating
		return next, []Effect{
			{Kind: EffectPhaseChange, From: PhaseAnalyzing, To: PhaseInitiating},
			{Kind: EffectCancelDelay},
			{Kind: EffectScheduleDelay, Delay: t.Initiating},
		}

	case PhaseInitiating:
		next := s
		next.Phase = PhaseProcessing
		effects := []Effect{{Kind: EffectPhaseChange, From: PhaseInitiating, To: PhaseProcessing}}
		return beginStage(next, 0, roster, t, effects)

	case PhaseProcessing:
		return completeStage(s, roster, t)

	default:
		// idle and complete have no delay timer; a stray fire is ignored.
		return s, nil
	}
}

// beginStage enters stage index: shows the primary thinking label and arms
// the stage's delay and rotation timers.
func beginStage(s State, index int, roster Roster, t Timing, effects []Effect) (State, []Effect) {
	def := roster.Get(index)

	s.StageIndex = index
	s.StatusText = def.Outcome.ThinkingLabel
	s.phrase = 0

	effects = append(effects,
		Effect{Kind: EffectCancelDelay},
		Effect{Kind: EffectScheduleDelay, Delay: t.Stage, Jitter: t.StageJitter},
		Effect{Kind: EffectCancelRotation},
	)
	if t.PhraseInterval > 0 && len(def.Outcome.ThinkingPhrases) > 0 {
		effects = append(effects, Effect{Kind: EffectScheduleRotation, Delay: t.PhraseInterval})
	}
	effects = append(effects, Effect{Kind: EffectCue, Cue: CueThink})
	return s, effects
}

func completeStage(s State, roster Roster, t Timing) (State, []Effect) {
	def := roster.Get(s.StageIndex)
	result := models.AgentResult{
		ID:         def.ID,
		Name:       def.Name,
		Role:       def.Role,
		Result:     def.Outcome.ResultText,
		Confidence: def.Outcome.Confidence,
	}

	next := s
	// Full slice expression forces append to copy, so earlier states and
	// snapshots never share a backing array with this one.
	next.Results = append(s.Results[:len(s.Results):len(s.Results)], result)
	next.StatusText = ""
	next.phrase = 0

	effects := []Effect{
		{Kind: EffectCancelRotation},
		{Kind: EffectStageComplete, Result: result},
		{Kind: EffectCue, Cue: CueAgent},
	}

	if s.StageIndex+1 < roster.Size() {
		return beginStage(next, s.StageIndex+1, roster, t, effects)
	}

	next.Phase = PhaseComplete
	effects = append(effects,
		Effect{Kind: EffectCancelDelay},
		Effect{Kind: EffectPhaseChange, From: PhaseProcessing, To: PhaseComplete},
		Effect{Kind: EffectRunComplete},
		Effect{Kind: EffectCue, Cue: CueComplete},
	)
	return next, effects
}

func phraseTick(s State, roster Roster) (State, []Effect) {
	if s.Phase != PhaseProcessing || s.StageIndex < 0 {
		return s, nil
	}
	phrases := roster.Get(s.StageIndex).Outcome.ThinkingPhrases
	if len(phrases) == 0 {
		return s, nil
	}

	next := s
	next.StatusText = phrases[s.phrase%len(phrases)]
	next.phrase = (s.phrase + 1) % len(phrases)
	return next, nil
}
