package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/nvandessel/forensic-council/internal/logging"
	"github.com/nvandessel/forensic-council/internal/models"
)

// maxLineLength bounds a single JSONL record.
const maxLineLength = 1024 * 1024

// ExportJSONL writes the history, newest first, as one JSON report per line.
// It returns the number of reports written.
func ExportJSONL(ctx context.Context, s ReportStore, w io.Writer) (int, error) {
	reports, err := s.LoadHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load history: %w", err)
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return 0, fmt.Errorf("failed to encode report %s: %w", r.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}
	return len(reports), nil
}

// ReadJSONL decodes reports written by ExportJSONL, preserving their order.
// Lines that fail to parse or validate are logged and skipped; the number
// skipped is returned alongside the reports.
func ReadJSONL(r io.Reader, logger *slog.Logger) ([]models.Report, int, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var (
		reports []models.Report
		skipped int
		lineNum int
	)
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rep models.Report
		if err := json.Unmarshal(line, &rep); err != nil {
			logger.Warn("skipping malformed report line", "line", lineNum, "error", err)
			skipped++
			continue
		}
		if err := rep.Validate(); err != nil {
			logger.Warn("skipping invalid report line", "line", lineNum, "error", err)
			skipped++
			continue
		}
		reports = append(reports, rep)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to read reports: %w", err)
	}
	return reports, skipped, nil
}

// ImportJSONL reads reports from r and appends them to the history so that
// the first line of the input ends up newest. Reports already in the history
// are moved rather than duplicated.
func ImportJSONL(ctx context.Context, s ReportStore, r io.Reader, logger *slog.Logger) (imported, skipped int, err error) {
	reports, skipped, err := ReadJSONL(r, logger)
	if err != nil {
		return 0, skipped, err
	}
	for i := len(reports) - 1; i >= 0; i-- {
		if err := s.AppendToHistory(ctx, reports[i]); err != nil {
			return imported, skipped, fmt.Errorf("failed to import report %s: %w", reports[i].ID, err)
		}
		imported++
	}
	return imported, skipped, nil
}
