package store

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestExportImportJSONL(t *testing.T) {
	ctx := context.Background()
	src := NewInMemoryReportStore()
	for i, id := range []string{"a", "b", "c"} {
		if err := src.AppendToHistory(ctx, testReport(id, i)); err != nil {
			t.Fatalf("AppendToHistory() error = %v", err)
		}
	}

	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, src, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL() error = %v", err)
	}
	if n != 3 {
		t.Errorf("exported = %d, want 3", n)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Errorf("lines = %d, want 3", lines)
	}

	dst := NewInMemoryReportStore()
	imported, skipped, err := ImportJSONL(ctx, dst, &buf, nil)
	if err != nil {
		t.Fatalf("ImportJSONL() error = %v", err)
	}
	if imported != 3 || skipped != 0 {
		t.Errorf("imported, skipped = %d, %d; want 3, 0", imported, skipped)
	}
	if got := strings.Join(historyIDs(t, dst), ","); got != "c,b,a" {
		t.Errorf("history = %s, want c,b,a", got)
	}
}

func TestReadJSONL_SkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"a","fileName":"a.jpg","timestamp":"2026-05-01T12:00:00Z","summary":"","agents":[]}`,
		`not json`,
		``,
		`{"id":"","fileName":"b.jpg","timestamp":"2026-05-01T12:00:00Z"}`,
		`{"id":"c","fileName":"c.jpg","timestamp":"2026-05-01T12:00:00Z","agents":[{"id":"x","name":"X","confidence":101}]}`,
	}, "\n")

	reports, skipped, err := ReadJSONL(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("ReadJSONL() error = %v", err)
	}
	if len(reports) != 1 || reports[0].ID != "a" {
		t.Errorf("reports = %+v, want only a", reports)
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
}
