package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBackupAndRestoreCmds(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	seedHistory(t, tmpDir, testReport("r2", 2), testReport("r1", 1))

	backupPath := filepath.Join(tmpDir, ".fcouncil", "backups", "test.json.gz")
	out, err := execute(t, "backup", "--output", backupPath, "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("backup failed: %v\n%s", err, out)
	}
	var result struct {
		Path        string `json:"path"`
		ReportCount int    `json:"report_count"`
		HasCurrent  bool   `json:"has_current"`
		Version     int    `json:"version"`
		SizeBytes   int64  `json:"size_bytes"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding: %v\n%s", err, out)
	}
	if result.ReportCount != 2 || !result.HasCurrent || result.Version != 2 || result.SizeBytes == 0 {
		t.Errorf("backup result = %+v", result)
	}

	out, err = execute(t, "backup", "verify", backupPath)
	if err != nil {
		t.Fatalf("backup verify failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "OK: checksum verified") {
		t.Errorf("unexpected verify output:\n%s", out)
	}

	if _, err := execute(t, "history", "clear", "--yes", "--root", tmpDir); err != nil {
		t.Fatalf("history clear failed: %v", err)
	}

	out, err = execute(t, "restore", backupPath, "--mode", "replace", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("restore failed: %v\n%s", err, out)
	}
	var restored struct {
		ReportsRestored int  `json:"reports_restored"`
		CurrentRestored bool `json:"current_restored"`
	}
	if err := json.Unmarshal([]byte(out), &restored); err != nil {
		t.Fatalf("decoding: %v\n%s", err, out)
	}
	if restored.ReportsRestored != 2 || !restored.CurrentRestored {
		t.Errorf("restore result = %+v, want 2 reports and the current report", restored)
	}

	out, err = execute(t, "history", "list", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(out, `"total":2`) {
		t.Errorf("history after restore:\n%s", out)
	}
}

func TestBackupCmd_DefaultLocation(t *testing.T) {
	tmpDir := t.TempDir()
	home := isolateHome(t, tmpDir)
	seedHistory(t, tmpDir, testReport("r1", 1))

	if _, err := execute(t, "backup", "--root", tmpDir); err != nil {
		t.Fatalf("backup failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(home, ".fcouncil", "backups"))
	if err != nil {
		t.Fatalf("reading backup dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "fcouncil-backup-") {
		t.Errorf("backup dir = %v, want one fcouncil-backup-* file", entries)
	}

	out, err := execute(t, "backup", "list", "--json")
	if err != nil {
		t.Fatalf("backup list failed: %v", err)
	}
	var list struct {
		TotalCount int `json:"total_count"`
		Backups    []struct {
			ReportCount int `json:"report_count"`
		} `json:"backups"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decoding: %v\n%s", err, out)
	}
	if list.TotalCount != 1 || list.Backups[0].ReportCount != 1 {
		t.Errorf("backup list = %+v", list)
	}
}

func TestBackupCmd_Retention(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	seedHistory(t, tmpDir, testReport("r1", 1))

	if _, err := execute(t, "config", "set", "storage.backup_max_count", "2"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}

	dir := filepath.Join(tmpDir, ".fcouncil", "backups")
	for _, name := range []string{"fcouncil-backup-20260101-000000.000.json.gz", "fcouncil-backup-20260102-000000.000.json.gz", "fcouncil-backup-20260103-000000.000.json.gz"} {
		if _, err := execute(t, "backup", "--output", filepath.Join(dir, name), "--root", tmpDir); err != nil {
			t.Fatalf("backup %s failed: %v", name, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading backup dir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("kept %d backups, want 2", len(entries))
	}
}

func TestBackupAndRestoreCmds_Rejections(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	seedHistory(t, tmpDir, testReport("r1", 1))

	outside := filepath.Join(tmpDir, "elsewhere", "backup.json.gz")
	if _, err := execute(t, "backup", "--output", outside, "--root", tmpDir); err == nil || !strings.Contains(err.Error(), "backup path rejected") {
		t.Errorf("backup outside allowed dirs: err = %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(outside), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(outside, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "restore", outside, "--root", tmpDir); err == nil || !strings.Contains(err.Error(), "restore path rejected") {
		t.Errorf("restore outside allowed dirs: err = %v", err)
	}

	if _, err := execute(t, "restore", outside, "--mode", "overwrite", "--root", tmpDir); err == nil {
		t.Error("restore with an unknown mode should fail")
	}
}
