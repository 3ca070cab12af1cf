package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/forensic-council/internal/models"
	"github.com/nvandessel/forensic-council/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteReportStore {
	t.Helper()
	s, err := store.NewSQLiteReportStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewSQLiteReportStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// addTestData appends a, b, c (c newest) and makes c current.
func addTestData(t *testing.T, s store.ReportStore) {
	t.Helper()
	ctx := context.Background()

	for _, id := range []string{"report-a", "report-b", "report-c"} {
		if err := s.AppendToHistory(ctx, sampleReport(id)); err != nil {
			t.Fatalf("AppendToHistory(%s) error = %v", id, err)
		}
	}
	if err := s.Save(ctx, sampleReport("report-c")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func historyIDs(t *testing.T, s store.ReportStore) string {
	t.Helper()
	reports, err := s.LoadHistory(context.Background())
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	ids := make([]string, len(reports))
	for i, r := range reports {
		ids[i] = r.ID
	}
	return strings.Join(ids, ",")
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	srcStore := createTestStore(t)
	addTestData(t, srcStore)

	ctx := context.Background()
	backupPath := filepath.Join(t.TempDir(), "test-backup.json.gz")

	backup, err := Backup(ctx, srcStore, backupPath)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if backup.Version != FormatV2 {
		t.Errorf("Version = %d, want %d", backup.Version, FormatV2)
	}
	if len(backup.Reports) != 3 {
		t.Errorf("Reports = %d, want 3", len(backup.Reports))
	}
	if backup.Current == nil || backup.Current.ID != "report-c" {
		t.Errorf("Current = %v, want report-c", backup.Current)
	}

	dstStore := createTestStore(t)
	result, err := Restore(ctx, dstStore, backupPath, RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.ReportsRestored != 3 || result.ReportsSkipped != 0 {
		t.Errorf("result = %+v, want 3 restored", result)
	}
	if !result.CurrentRestored {
		t.Error("CurrentRestored = false, want true for an empty store")
	}

	if got := historyIDs(t, dstStore); got != "report-c,report-b,report-a" {
		t.Errorf("history = %s, want original order", got)
	}
	cur, err := dstStore.Current(ctx)
	if err != nil || cur == nil || cur.ID != "report-c" {
		t.Errorf("Current() = %v, %v", cur, err)
	}
}

func TestRestore_MergeMode(t *testing.T) {
	srcStore := createTestStore(t)
	addTestData(t, srcStore)

	ctx := context.Background()
	backupPath := filepath.Join(t.TempDir(), "test-backup.json.gz")
	if _, err := Backup(ctx, srcStore, backupPath); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	dstStore := createTestStore(t)
	existing := sampleReport("report-a")
	existing.Summary = "existing summary"
	if err := dstStore.AppendToHistory(ctx, existing); err != nil {
		t.Fatalf("AppendToHistory() error = %v", err)
	}
	if err := dstStore.Save(ctx, sampleReport("mine")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	result, err := Restore(ctx, dstStore, backupPath, RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.ReportsSkipped != 1 || result.ReportsRestored != 2 {
		t.Errorf("result = %+v, want 2 restored and 1 skipped", result)
	}
	if result.CurrentRestored {
		t.Error("merge replaced an existing current report")
	}

	got, _ := dstStore.GetReport(ctx, "report-a")
	if got == nil || got.Summary != "existing summary" {
		t.Errorf("existing report was overwritten in merge mode: %+v", got)
	}
	if cur, _ := dstStore.Current(ctx); cur == nil || cur.ID != "mine" {
		t.Errorf("Current() = %v, want mine", cur)
	}
}

func TestRestore_ReplaceMode(t *testing.T) {
	srcStore := createTestStore(t)
	addTestData(t, srcStore)

	ctx := context.Background()
	backupPath := filepath.Join(t.TempDir(), "test-backup.json.gz")
	if _, err := Backup(ctx, srcStore, backupPath); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	dstStore := createTestStore(t)
	if err := dstStore.AppendToHistory(ctx, sampleReport("stale")); err != nil {
		t.Fatalf("AppendToHistory() error = %v", err)
	}
	if err := dstStore.Save(ctx, sampleReport("stale")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	result, err := Restore(ctx, dstStore, backupPath, RestoreReplace)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.ReportsRestored != 3 || !result.CurrentRestored {
		t.Errorf("result = %+v", result)
	}
	if got := historyIDs(t, dstStore); got != "report-c,report-b,report-a" {
		t.Errorf("history = %s, want only restored reports", got)
	}
	if cur, _ := dstStore.Current(ctx); cur == nil || cur.ID != "report-c" {
		t.Errorf("Current() = %v, want report-c", cur)
	}
}

func TestRestore_V1File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.json")
	v1 := BackupFormat{
		Version:   FormatV1,
		CreatedAt: time.Now(),
		Reports:   []models.Report{sampleReport("old-1"), sampleReport("old-0")},
	}
	data, _ := json.Marshal(v1)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	dst := store.NewInMemoryReportStore()
	result, err := Restore(ctx, dst, path, RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.ReportsRestored != 2 {
		t.Errorf("ReportsRestored = %d, want 2", result.ReportsRestored)
	}
	if got := historyIDs(t, dst); got != "old-1,old-0" {
		t.Errorf("history = %s, want old-1,old-0", got)
	}
}

func TestRestore_SkipsInvalidReports(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "partial.json.gz")
	bad := sampleReport("bad")
	bad.FileName = ""
	if err := WriteV2(path, &BackupFormat{
		Version:   FormatV2,
		CreatedAt: time.Now(),
		Reports:   []models.Report{sampleReport("good"), bad},
	}); err != nil {
		t.Fatal(err)
	}

	dst := store.NewInMemoryReportStore()
	result, err := Restore(ctx, dst, path, RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.ReportsRestored != 1 || result.ReportsSkipped != 1 {
		t.Errorf("result = %+v, want 1 restored and 1 skipped", result)
	}
}

func TestBackup_PathValidation(t *testing.T) {
	srcStore := createTestStore(t)
	addTestData(t, srcStore)

	ctx := context.Background()
	allowedDir := t.TempDir()
	outsideDir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{
			name:    "valid path inside allowed dir",
			path:    filepath.Join(allowedDir, "backup.json.gz"),
			wantErr: false,
		},
		{
			name:    "path outside allowed dir is rejected",
			path:    filepath.Join(outsideDir, "backup.json.gz"),
			wantErr: true,
		},
		{
			name:    "path traversal is rejected",
			path:    filepath.Join(allowedDir, "..", "escape.json.gz"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Backup(ctx, srcStore, tt.path, allowedDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("Backup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != nil && !strings.Contains(err.Error(), "path rejected") {
				t.Errorf("Backup() error = %v, want 'path rejected' in message", err)
			}
		})
	}
}

func TestRestore_PathValidation(t *testing.T) {
	srcStore := createTestStore(t)
	addTestData(t, srcStore)

	ctx := context.Background()
	allowedDir := t.TempDir()
	backupPath := filepath.Join(allowedDir, "backup.json.gz")
	if _, err := Backup(ctx, srcStore, backupPath); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	outsideBackup := filepath.Join(t.TempDir(), "backup.json.gz")
	data, _ := os.ReadFile(backupPath)
	os.WriteFile(outsideBackup, data, 0600)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "valid path inside allowed dir", path: backupPath},
		{name: "path outside allowed dir is rejected", path: outsideBackup, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Restore(ctx, store.NewInMemoryReportStore(), tt.path, RestoreMerge, allowedDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("Restore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != nil && !strings.Contains(err.Error(), "path rejected") {
				t.Errorf("Restore() error = %v, want 'path rejected' in message", err)
			}
		})
	}
}

func TestBackup_FilePermissions(t *testing.T) {
	srcStore := createTestStore(t)
	addTestData(t, srcStore)

	ctx := context.Background()
	backupDir := filepath.Join(t.TempDir(), "newdir", "backups")
	backupPath := filepath.Join(backupDir, "backup.json.gz")

	if _, err := Backup(ctx, srcStore, backupPath); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	dirInfo, err := os.Stat(backupDir)
	if err != nil {
		t.Fatalf("Stat(backupDir) error = %v", err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0700 {
		t.Errorf("backup dir permissions = %o, want 0700", perm)
	}

	fileInfo, err := os.Stat(backupPath)
	if err != nil {
		t.Fatalf("Stat(backupPath) error = %v", err)
	}
	if perm := fileInfo.Mode().Perm(); perm != 0600 {
		t.Errorf("backup file permissions = %o, want 0600", perm)
	}
}

func TestRestore_OversizedFile(t *testing.T) {
	oversizedPath := filepath.Join(t.TempDir(), "oversized-backup.json")
	f, err := os.Create(oversizedPath)
	if err != nil {
		t.Fatalf("Failed to create oversized file: %v", err)
	}
	if err := f.Truncate(MaxRestoreFileSize + 1); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	f.Close()

	_, err = Restore(context.Background(), store.NewInMemoryReportStore(), oversizedPath, RestoreMerge)
	if err == nil {
		t.Error("expected error for oversized backup file")
	}
}

func TestParseRestoreMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RestoreMode
		wantErr bool
	}{
		{"", RestoreMerge, false},
		{"merge", RestoreMerge, false},
		{"REPLACE", RestoreReplace, false},
		{"overwrite", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRestoreMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRestoreMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestGenerateBackupPath(t *testing.T) {
	dir := "/tmp/backups"
	path := GenerateBackupPath(dir)

	if filepath.Dir(path) != dir {
		t.Errorf("dir = %s, want %s", filepath.Dir(path), dir)
	}
	if !strings.HasSuffix(path, ".json.gz") {
		t.Errorf("path = %s, want .json.gz suffix", path)
	}
	if !isBackupFile(filepath.Base(path)) {
		t.Errorf("generated name %s is not recognized as a backup", filepath.Base(path))
	}
}
