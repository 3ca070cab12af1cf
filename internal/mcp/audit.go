package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/forensic-council/internal/store"
)

// AuditScope picks the audit log an entry goes to.
type AuditScope string

const (
	// ScopeLocal entries go to <root>/.fcouncil/audit.jsonl.
	ScopeLocal AuditScope = "local"
	// ScopeGlobal entries go to ~/.fcouncil/audit.jsonl. Backup and restore
	// work on the home directory and are logged there.
	ScopeGlobal AuditScope = "global"
)

// AuditEntry records one MCP tool invocation. Evidence paths and report
// contents never appear in it.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	Scope      AuditScope        `json:"scope"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

const auditFileName = "audit.jsonl"

// auditSink is one open audit file.
type auditSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func openAuditSink(root string, logger *slog.Logger) *auditSink {
	dir := store.LocalPath(root)
	if err := os.MkdirAll(dir, 0700); err != nil {
		logger.Warn("audit log disabled", "dir", dir, "error", err)
		return nil
	}
	path := filepath.Join(dir, auditFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		logger.Warn("audit log disabled", "path", path, "error", err)
		return nil
	}
	return &auditSink{f: f, enc: json.NewEncoder(f)}
}

func (s *auditSink) write(e AuditEntry) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(e)
}

func (s *auditSink) close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// AuditLogger appends entries to the local or global audit log according
// to their scope. A nil AuditLogger drops everything.
type AuditLogger struct {
	sinks map[AuditScope]*auditSink
}

// NewAuditLogger opens the audit logs under localRoot and globalRoot, which
// may be the same directory. A log that cannot be opened is skipped with a
// warning; if neither opens the result is nil.
func NewAuditLogger(localRoot, globalRoot string, logger *slog.Logger) *AuditLogger {
	local := openAuditSink(localRoot, logger)
	global := local
	if filepath.Clean(globalRoot) != filepath.Clean(localRoot) {
		global = openAuditSink(globalRoot, logger)
	}
	if local == nil && global == nil {
		return nil
	}
	return &AuditLogger{sinks: map[AuditScope]*auditSink{ScopeLocal: local, ScopeGlobal: global}}
}

// Log writes e to the log for its scope. An empty scope means local.
func (a *AuditLogger) Log(e AuditEntry) {
	if a == nil {
		return
	}
	if e.Scope != ScopeGlobal {
		e.Scope = ScopeLocal
	}
	a.sinks[e.Scope].write(e)
}

// Close closes the log files.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	local, global := a.sinks[ScopeLocal], a.sinks[ScopeGlobal]
	err := local.close()
	if global != local {
		err = errors.Join(err, global.close())
	}
	return err
}

// auditedParams lists the tool arguments that may appear in the audit log.
// Masked ones are recorded only as "(set)" because their values name files
// or reports.
var auditedParams = map[string]bool{
	"mode":        false,
	"limit":       false,
	"wait":        false,
	"path":        true,
	"id":          true,
	"input_path":  true,
	"output_path": true,
}

// auditParams reduces tool arguments to loggable metadata. Unlisted params
// are dropped; "_param_count" records how many were passed.
func auditParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}
	out := map[string]string{"_param_count": strconv.Itoa(len(params))}
	for k, v := range params {
		masked, ok := auditedParams[k]
		switch {
		case !ok:
		case masked:
			out[k] = "(set)"
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]string, scope AuditScope) {
	e := AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		Scope:      scope,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		Params:     params,
	}
	if err != nil {
		e.Status = "error"
		e.Error = err.Error()
	}
	s.auditLogger.Log(e)
}
