package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/forensic-council/internal/backup"
	"github.com/nvandessel/forensic-council/internal/constants"
	"github.com/nvandessel/forensic-council/internal/pathutil"
	"github.com/nvandessel/forensic-council/internal/ratelimit"
	"github.com/nvandessel/forensic-council/internal/store"
	"github.com/nvandessel/forensic-council/internal/summarization"
)

const (
	currentReportURI  = "council://reports/current"
	reportURIPrefix   = "council://reports/"
	reportURITemplate = "council://reports/{id}"
)

// registerTools registers all council MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_analyze",
		Description: "Submit an evidence file to the forensic council. The agents analyze it one after another and a report is stored when they finish",
	}, s.handleCouncilAnalyze)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_status",
		Description: "Get the council's current phase, the findings completed so far and the live status text",
	}, s.handleCouncilStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_reset",
		Description: "Abandon the current run and return the council to idle. Nothing is stored for an abandoned run",
	}, s.handleCouncilReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_catalog",
		Description: "List the council's agents in the order they analyze evidence",
	}, s.handleCouncilCatalog)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_history",
		Description: "List stored council reports, newest first",
	}, s.handleCouncilHistory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_report",
		Description: "Get one stored report in full, or the current report when no ID is given",
	}, s.handleCouncilReport)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_delete",
		Description: "Remove one report from the history",
	}, s.handleCouncilDelete)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_clear",
		Description: "Remove every report from the history",
	}, s.handleCouncilClear)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_backup",
		Description: "Write the report history and current report to a compressed backup file",
	}, s.handleCouncilBackup)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "council_restore",
		Description: "Import reports from a backup file (merge or replace)",
	}, s.handleCouncilRestore)

	return nil
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         currentReportURI,
		Name:        "council-current-report",
		Description: "The most recent council report for this project.",
		MIMEType:    "text/markdown",
	}, s.handleCurrentReportResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: reportURITemplate,
		Name:        "council-report",
		Description: "A stored council report by ID.",
		MIMEType:    "text/markdown",
	}, s.handleReportResource)

	return nil
}

func (s *Server) handleCurrentReportResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	r, err := s.svc.CurrentReport(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current report: %w", err)
	}

	text := "No council report yet. Submit evidence with the council_analyze tool.\n"
	if r != nil {
		text = summarization.Markdown(*r)
	}
	return markdownResult(req.Params.URI, text), nil
}

func (s *Server) handleReportResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, reportURIPrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, reportURIPrefix)
	if id == "" {
		return nil, fmt.Errorf("report ID is required")
	}

	r, err := s.svc.Report(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, sdk.ResourceNotFoundError(uri)
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return markdownResult(uri, summarization.Markdown(*r)), nil
}

func markdownResult(uri, text string) *sdk.ReadResourceResult {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     text,
			},
		},
	}
}

// handleCouncilAnalyze validates the evidence path and starts a run.
func (s *Server) handleCouncilAnalyze(ctx context.Context, req *sdk.CallToolRequest, args CouncilAnalyzeInput) (_ *sdk.CallToolResult, _ CouncilAnalyzeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_analyze", start, retErr, auditParams(map[string]any{
			"path": args.Path,
			"wait": args.Wait,
		}), ScopeLocal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_analyze"); err != nil {
		return nil, CouncilAnalyzeOutput{}, err
	}

	if strings.TrimSpace(args.Path) == "" {
		return nil, CouncilAnalyzeOutput{}, fmt.Errorf("'path' parameter is required")
	}

	path := args.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	if err := pathutil.ValidatePath(path, pathutil.AllowedEvidenceDirs(s.root)); err != nil {
		return nil, CouncilAnalyzeOutput{}, fmt.Errorf("evidence path rejected: %w", err)
	}

	f, err := s.svc.Analyze(ctx, path)
	if err != nil {
		return nil, CouncilAnalyzeOutput{}, err
	}

	out := CouncilAnalyzeOutput{
		File:     f,
		Snapshot: s.svc.Snapshot(),
		Message: fmt.Sprintf("Council convened for %s (%s); %d agents will report",
			f.Name, humanize.IBytes(uint64(f.Size)), s.svc.Catalog().Size()),
	}
	if !args.Wait {
		return nil, out, nil
	}

	report, err := s.svc.Wait(ctx)
	if err != nil && report == nil {
		return nil, CouncilAnalyzeOutput{}, fmt.Errorf("council run did not finish: %w", err)
	}
	out.Snapshot = s.svc.Snapshot()
	out.Report = report
	out.Message = fmt.Sprintf("Council finished %s: %s", f.Name, report.Summary)
	if err != nil {
		out.Message += fmt.Sprintf(" (report not stored: %v)", err)
	}
	return nil, out, nil
}

func (s *Server) handleCouncilStatus(ctx context.Context, req *sdk.CallToolRequest, args CouncilStatusInput) (_ *sdk.CallToolResult, _ CouncilStatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_status", start, retErr, nil, ScopeLocal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_status"); err != nil {
		return nil, CouncilStatusOutput{}, err
	}

	out := CouncilStatusOutput{
		Snapshot:   s.svc.Snapshot(),
		LastReport: s.svc.LastReport(),
	}
	if err := s.svc.LastError(); err != nil {
		out.LastError = err.Error()
	}
	return nil, out, nil
}

func (s *Server) handleCouncilReset(ctx context.Context, req *sdk.CallToolRequest, args CouncilResetInput) (_ *sdk.CallToolResult, _ CouncilResetOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_reset", start, retErr, nil, ScopeLocal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_reset"); err != nil {
		return nil, CouncilResetOutput{}, err
	}

	before := s.svc.Snapshot().Phase
	s.svc.Reset()
	return nil, CouncilResetOutput{
		Snapshot: s.svc.Snapshot(),
		Message:  fmt.Sprintf("Council reset from %s to idle", before),
	}, nil
}

func (s *Server) handleCouncilCatalog(ctx context.Context, req *sdk.CallToolRequest, args CouncilCatalogInput) (_ *sdk.CallToolResult, _ CouncilCatalogOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_catalog", start, retErr, nil, ScopeLocal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_catalog"); err != nil {
		return nil, CouncilCatalogOutput{}, err
	}

	defs := s.svc.Catalog().All()
	agents := make([]AgentSummary, len(defs))
	for i, d := range defs {
		agents[i] = AgentSummary{ID: d.ID, Name: d.Name, Role: d.Role, Description: d.Description}
	}
	return nil, CouncilCatalogOutput{Agents: agents, Count: len(agents)}, nil
}

func (s *Server) handleCouncilHistory(ctx context.Context, req *sdk.CallToolRequest, args CouncilHistoryInput) (_ *sdk.CallToolResult, _ CouncilHistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_history", start, retErr, auditParams(map[string]any{
			"limit": args.Limit,
		}), ScopeLocal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_history"); err != nil {
		return nil, CouncilHistoryOutput{}, err
	}
	if args.Limit < 0 {
		return nil, CouncilHistoryOutput{}, fmt.Errorf("limit must not be negative")
	}

	reports, err := s.svc.History(ctx)
	if err != nil {
		return nil, CouncilHistoryOutput{}, fmt.Errorf("failed to load history: %w", err)
	}

	limit := args.Limit
	if limit == 0 {
		limit = constants.DefaultHistoryPageSize
	}
	total := len(reports)
	if len(reports) > limit {
		reports = reports[:limit]
	}

	items := make([]ReportListItem, len(reports))
	for i, r := range reports {
		items[i] = ReportListItem{
			ID:        r.ID,
			FileName:  r.FileName,
			Timestamp: r.Timestamp,
			Summary:   r.Summary,
			Agents:    len(r.Agents),
		}
	}
	return nil, CouncilHistoryOutput{Reports: items, Count: len(items), Total: total}, nil
}

func (s *Server) handleCouncilReport(ctx context.Context, req *sdk.CallToolRequest, args CouncilReportInput) (_ *sdk.CallToolResult, _ CouncilReportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_report", start, retErr, auditParams(map[string]any{
			"id": args.ID,
		}), ScopeLocal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_report"); err != nil {
		return nil, CouncilReportOutput{}, err
	}

	if args.ID == "" {
		r, err := s.svc.CurrentReport(ctx)
		if err != nil {
			return nil, CouncilReportOutput{}, fmt.Errorf("failed to load current report: %w", err)
		}
		if r == nil {
			return nil, CouncilReportOutput{}, fmt.Errorf("no current report")
		}
		return nil, CouncilReportOutput{Report: *r}, nil
	}

	r, err := s.svc.Report(ctx, args.ID)
	if err != nil {
		return nil, CouncilReportOutput{}, fmt.Errorf("failed to load report %s: %w", args.ID, err)
	}
	return nil, CouncilReportOutput{Report: *r}, nil
}

func (s *Server) handleCouncilDelete(ctx context.Context, req *sdk.CallToolRequest, args CouncilDeleteInput) (_ *sdk.CallToolResult, _ CouncilDeleteOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_delete", start, retErr, auditParams(map[string]any{
			"id": args.ID,
		}), ScopeLocal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_delete"); err != nil {
		return nil, CouncilDeleteOutput{}, err
	}
	if args.ID == "" {
		return nil, CouncilDeleteOutput{}, fmt.Errorf("'id' parameter is required")
	}

	if err := s.svc.DeleteReport(ctx, args.ID); err != nil {
		return nil, CouncilDeleteOutput{}, fmt.Errorf("failed to delete report %s: %w", args.ID, err)
	}
	return nil, CouncilDeleteOutput{
		ID:      args.ID,
		Message: fmt.Sprintf("Report %s removed from history", args.ID),
	}, nil
}

func (s *Server) handleCouncilClear(ctx context.Context, req *sdk.CallToolRequest, args CouncilClearInput) (_ *sdk.CallToolResult, _ CouncilClearOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_clear", start, retErr, nil, ScopeLocal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_clear"); err != nil {
		return nil, CouncilClearOutput{}, err
	}

	reports, err := s.svc.History(ctx)
	if err != nil {
		return nil, CouncilClearOutput{}, fmt.Errorf("failed to load history: %w", err)
	}
	if err := s.svc.ClearHistory(ctx); err != nil {
		return nil, CouncilClearOutput{}, fmt.Errorf("failed to clear history: %w", err)
	}
	return nil, CouncilClearOutput{
		Cleared: len(reports),
		Message: fmt.Sprintf("Cleared %d reports", len(reports)),
	}, nil
}

func (s *Server) handleCouncilBackup(ctx context.Context, req *sdk.CallToolRequest, args CouncilBackupInput) (_ *sdk.CallToolResult, _ CouncilBackupOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_backup", start, retErr, auditParams(map[string]any{
			"output_path": args.OutputPath,
		}), ScopeGlobal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_backup"); err != nil {
		return nil, CouncilBackupOutput{}, err
	}

	outputPath := args.OutputPath
	if outputPath == "" {
		// Default path -- controlled by us, no validation needed
		backupDir, err := backup.DefaultBackupDir()
		if err != nil {
			return nil, CouncilBackupOutput{}, fmt.Errorf("failed to get backup directory: %w", err)
		}
		outputPath = backup.GenerateBackupPath(backupDir)
	} else {
		allowedDirs, err := pathutil.DefaultAllowedBackupDirsWithProjectRoot(s.root)
		if err != nil {
			return nil, CouncilBackupOutput{}, fmt.Errorf("failed to determine allowed backup dirs: %w", err)
		}
		if err := pathutil.ValidatePath(outputPath, allowedDirs); err != nil {
			return nil, CouncilBackupOutput{}, fmt.Errorf("backup path rejected: %w", err)
		}
	}

	result, err := backup.Backup(ctx, s.store, outputPath)
	if err != nil {
		return nil, CouncilBackupOutput{}, fmt.Errorf("backup failed: %w", err)
	}

	if _, err := s.retention.Prune(filepath.Dir(outputPath)); err != nil {
		s.logger.Warn("failed to apply backup retention", "error", err)
	}

	var sizeBytes int64
	if info, err := os.Stat(outputPath); err == nil {
		sizeBytes = info.Size()
	}

	return nil, CouncilBackupOutput{
		Path:        outputPath,
		ReportCount: len(result.Reports),
		HasCurrent:  result.Current != nil,
		Version:     result.Version,
		SizeBytes:   sizeBytes,
		Size:        humanize.Bytes(uint64(sizeBytes)),
		Message:     fmt.Sprintf("Backup created: %d reports → %s", len(result.Reports), outputPath),
	}, nil
}

func (s *Server) handleCouncilRestore(ctx context.Context, req *sdk.CallToolRequest, args CouncilRestoreInput) (_ *sdk.CallToolResult, _ CouncilRestoreOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("council_restore", start, retErr, auditParams(map[string]any{
			"input_path": args.InputPath,
			"mode":       args.Mode,
		}), ScopeGlobal)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "council_restore"); err != nil {
		return nil, CouncilRestoreOutput{}, err
	}
	if args.InputPath == "" {
		return nil, CouncilRestoreOutput{}, fmt.Errorf("'input_path' parameter is required")
	}

	mode, err := backup.ParseRestoreMode(args.Mode)
	if err != nil {
		return nil, CouncilRestoreOutput{}, err
	}

	allowedDirs, err := pathutil.DefaultAllowedBackupDirsWithProjectRoot(s.root)
	if err != nil {
		return nil, CouncilRestoreOutput{}, fmt.Errorf("failed to determine allowed backup dirs: %w", err)
	}

	result, err := backup.Restore(ctx, s.store, args.InputPath, mode, allowedDirs...)
	if err != nil {
		return nil, CouncilRestoreOutput{}, fmt.Errorf("restore failed: %w", err)
	}

	return nil, CouncilRestoreOutput{
		ReportsRestored: result.ReportsRestored,
		ReportsSkipped:  result.ReportsSkipped,
		CurrentRestored: result.CurrentRestored,
		Message: fmt.Sprintf("Restored %d reports (%d skipped) using %s mode",
			result.ReportsRestored, result.ReportsSkipped, mode),
	}, nil
}
