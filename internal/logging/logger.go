// Package logging sets up the leveled stderr logger and the optional JSONL
// trace of engine transitions (.fcouncil/transitions.jsonl).
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug. At this level every phrase rotation is
// logged as well as phase and stage changes.
const LevelTrace = slog.LevelDebug - 4

// TraceFileName is the name of the JSONL transition trace.
const TraceFileName = "transitions.jsonl"

var levels = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a level name to a slog.Level, ignoring case. Unknown names
// mean info.
func ParseLevel(s string) slog.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// NewLogger returns a text logger writing to w at the named level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: labelTrace,
	}))
}

func labelTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Transition is one line of the trace file.
type Transition struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Cause   string    `json:"cause,omitempty"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Phase   string    `json:"phase,omitempty"`
	Stage   int       `json:"stage"`
	Results int       `json:"results"`
	Hook    string    `json:"hook,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Trace kinds.
const (
	KindPhaseChange = "phase_change"
	KindTransition  = "transition"
	KindHookError   = "hook_error"
)

// TransitionLog appends Transitions to a JSONL file. A nil *TransitionLog
// discards everything, so callers never need to check.
type TransitionLog struct {
	mu  sync.Mutex
	enc *json.Encoder
	f   *os.File
	now func() time.Time
}

// NewTransitionLog opens dir/transitions.jsonl for append when level is
// debug or more verbose. Otherwise, or when the file cannot be opened, it
// returns nil.
func NewTransitionLog(dir, level string) *TransitionLog {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, TraceFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &TransitionLog{enc: json.NewEncoder(f), f: f, now: time.Now}
}

// Record stamps t with the current time and appends it.
func (tl *TransitionLog) Record(t Transition) {
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.f == nil {
		return
	}
	t.Time = tl.now().UTC()
	_ = tl.enc.Encode(t)
}

// Close closes the file. Later Records are dropped.
func (tl *TransitionLog) Close() {
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.f != nil {
		tl.f.Close()
		tl.f = nil
	}
}
