// Package mcp provides an MCP (Model Context Protocol) server for the council.
package mcp

import (
	"time"

	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/intake"
	"github.com/nvandessel/forensic-council/internal/models"
)

// CouncilAnalyzeInput defines the input for council_analyze tool.
type CouncilAnalyzeInput struct {
	Path string `json:"path" jsonschema:"Evidence file path, absolute or relative to the project root"`
	Wait bool   `json:"wait,omitempty" jsonschema:"Block until the council finishes and return the report (default: false)"`
}

// CouncilAnalyzeOutput defines the output for council_analyze tool.
type CouncilAnalyzeOutput struct {
	File     intake.File     `json:"file" jsonschema:"The accepted evidence file"`
	Snapshot engine.Snapshot `json:"snapshot" jsonschema:"Council state right after submission, or at completion when waiting"`
	Report   *models.Report  `json:"report,omitempty" jsonschema:"The finished report (only when wait is set)"`
	Message  string          `json:"message" jsonschema:"Human-readable result message"`
}

// CouncilStatusInput defines the input for council_status tool.
type CouncilStatusInput struct{}

// CouncilStatusOutput defines the output for council_status tool.
type CouncilStatusOutput struct {
	Snapshot   engine.Snapshot `json:"snapshot" jsonschema:"Current council state"`
	LastReport *models.Report  `json:"last_report,omitempty" jsonschema:"Report of the most recent completed run"`
	LastError  string          `json:"last_error,omitempty" jsonschema:"Most recent persistence failure"`
}

// CouncilResetInput defines the input for council_reset tool.
type CouncilResetInput struct{}

// CouncilResetOutput defines the output for council_reset tool.
type CouncilResetOutput struct {
	Snapshot engine.Snapshot `json:"snapshot" jsonschema:"Council state after the reset"`
	Message  string          `json:"message" jsonschema:"Human-readable result message"`
}

// CouncilCatalogInput defines the input for council_catalog tool.
type CouncilCatalogInput struct{}

// CouncilCatalogOutput defines the output for council_catalog tool.
type CouncilCatalogOutput struct {
	Agents []AgentSummary `json:"agents" jsonschema:"Council members in stage order"`
	Count  int            `json:"count" jsonschema:"Number of agents"`
}

// AgentSummary provides a simplified view of an agent.
type AgentSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
}

// CouncilHistoryInput defines the input for council_history tool.
type CouncilHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of reports to return (default: 20, 0 uses the default)"`
}

// CouncilHistoryOutput defines the output for council_history tool.
type CouncilHistoryOutput struct {
	Reports []ReportListItem `json:"reports" jsonschema:"Stored reports, newest first"`
	Count   int              `json:"count" jsonschema:"Number of reports returned"`
	Total   int              `json:"total" jsonschema:"Number of reports in the history"`
}

// ReportListItem provides a list view of a report.
type ReportListItem struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	Agents    int       `json:"agents"`
}

// CouncilReportInput defines the input for council_report tool.
type CouncilReportInput struct {
	ID string `json:"id,omitempty" jsonschema:"Report ID; empty returns the current report"`
}

// CouncilReportOutput defines the output for council_report tool.
type CouncilReportOutput struct {
	Report models.Report `json:"report" jsonschema:"The full report"`
}

// CouncilDeleteInput defines the input for council_delete tool.
type CouncilDeleteInput struct {
	ID string `json:"id" jsonschema:"ID of the report to remove from the history"`
}

// CouncilDeleteOutput defines the output for council_delete tool.
type CouncilDeleteOutput struct {
	ID      string `json:"id" jsonschema:"ID of the removed report"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// CouncilClearInput defines the input for council_clear tool.
type CouncilClearInput struct{}

// CouncilClearOutput defines the output for council_clear tool.
type CouncilClearOutput struct {
	Cleared int    `json:"cleared" jsonschema:"Number of reports removed"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// CouncilBackupInput defines the input for council_backup tool.
type CouncilBackupInput struct {
	OutputPath string `json:"output_path,omitempty" jsonschema:"Backup file path (default: ~/.fcouncil/backups/fcouncil-backup-<timestamp>.json.gz)"`
}

// CouncilBackupOutput defines the output for council_backup tool.
type CouncilBackupOutput struct {
	Path        string `json:"path" jsonschema:"Path of the written backup"`
	ReportCount int    `json:"report_count" jsonschema:"Number of history reports in the backup"`
	HasCurrent  bool   `json:"has_current" jsonschema:"Whether the current report was included"`
	Version     int    `json:"version" jsonschema:"Backup format version"`
	SizeBytes   int64  `json:"size_bytes" jsonschema:"Size of the backup file in bytes"`
	Size        string `json:"size" jsonschema:"Human-readable size of the backup file"`
	Message     string `json:"message" jsonschema:"Human-readable result message"`
}

// CouncilRestoreInput defines the input for council_restore tool.
type CouncilRestoreInput struct {
	InputPath string `json:"input_path" jsonschema:"Backup file to restore from"`
	Mode      string `json:"mode,omitempty" jsonschema:"Restore mode: 'merge' keeps existing reports, 'replace' clears them first (default: merge)"`
}

// CouncilRestoreOutput defines the output for council_restore tool.
type CouncilRestoreOutput struct {
	ReportsRestored int    `json:"reports_restored" jsonschema:"Number of reports restored"`
	ReportsSkipped  int    `json:"reports_skipped" jsonschema:"Number of reports skipped"`
	CurrentRestored bool   `json:"current_restored" jsonschema:"Whether the current report was restored"`
	Message         string `json:"message" jsonschema:"Human-readable result message"`
}
