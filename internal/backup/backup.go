// Package backup provides backup and restore of the council report history.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/forensic-council/internal/models"
	"github.com/nvandessel/forensic-council/internal/pathutil"
	"github.com/nvandessel/forensic-council/internal/store"
)

// MaxRestoreFileSize is the largest backup file Restore will read (50MB).
const MaxRestoreFileSize = 50 * 1024 * 1024

// filePrefix starts the name of every backup file.
const filePrefix = "fcouncil-backup-"

// BackupFormat is the JSON payload of a backup file.
type BackupFormat struct {
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Current   *models.Report  `json:"current,omitempty"`
	Reports   []models.Report `json:"reports"` // newest first
}

// DefaultBackupDir returns the default backup directory (~/.fcouncil/backups/).
func DefaultBackupDir() (string, error) {
	global, err := store.GlobalPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(global, "backups"), nil
}

// Backup writes the history and the current report to outputPath in the V2
// format. When allowedDirs are given, outputPath must lie inside one of them.
func Backup(ctx context.Context, s store.ReportStore, outputPath string, allowedDirs ...string) (*BackupFormat, error) {
	if len(allowedDirs) > 0 {
		if err := pathutil.ValidatePath(outputPath, allowedDirs); err != nil {
			return nil, fmt.Errorf("backup path rejected: %w", err)
		}
	}

	reports, err := s.LoadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	current, err := s.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current report: %w", err)
	}

	backup := &BackupFormat{
		Version:   FormatV2,
		CreatedAt: time.Now().UTC(),
		Current:   current,
		Reports:   reports,
	}

	if err := WriteV2(outputPath, backup); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	return backup, nil
}

// RestoreMode controls how restore handles existing data.
type RestoreMode string

const (
	// RestoreMerge skips reports that are already in the history (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace clears the history before restoring.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode accepts "merge" or "replace"; empty means merge.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return RestoreReplace, nil
	default:
		return "", fmt.Errorf("invalid restore mode %q (expected merge or replace)", s)
	}
}

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	ReportsRestored int  `json:"reports_restored"`
	ReportsSkipped  int  `json:"reports_skipped"`
	CurrentRestored bool `json:"current_restored"`
}

// Restore imports reports from a backup file into the store. Restored
// reports go to the front of the history in their original order. The
// backed-up current report is restored in replace mode, or in merge mode
// when the store has no current report.
func Restore(ctx context.Context, s store.ReportStore, inputPath string, mode RestoreMode, allowedDirs ...string) (*RestoreResult, error) {
	if len(allowedDirs) > 0 {
		if err := pathutil.ValidatePath(inputPath, allowedDirs); err != nil {
			return nil, fmt.Errorf("restore path rejected: %w", err)
		}
	}

	backup, err := readBackup(inputPath)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	switch mode {
	case RestoreReplace:
		if err := s.ClearHistory(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear history: %w", err)
		}
	default:
		history, err := s.LoadHistory(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		for _, r := range history {
			existing[r.ID] = true
		}
	}

	result := &RestoreResult{}
	for i := len(backup.Reports) - 1; i >= 0; i-- {
		r := backup.Reports[i]
		if existing[r.ID] {
			result.ReportsSkipped++
			continue
		}
		if err := r.Validate(); err != nil {
			result.ReportsSkipped++
			continue
		}
		if err := s.AppendToHistory(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to restore report %s: %w", r.ID, err)
		}
		result.ReportsRestored++
	}

	if backup.Current != nil && backup.Current.Validate() == nil {
		restore := mode == RestoreReplace
		if !restore {
			cur, err := s.Current(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to load current report: %w", err)
			}
			restore = cur == nil
		}
		if restore {
			if err := s.Save(ctx, *backup.Current); err != nil {
				return nil, fmt.Errorf("failed to restore current report: %w", err)
			}
			result.CurrentRestored = true
		}
	}

	return result, nil
}

// readBackup loads a V1 (plain JSON) or V2 backup file.
func readBackup(path string) (*BackupFormat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	if info.Size() > MaxRestoreFileSize {
		return nil, fmt.Errorf("backup file is %d bytes, exceeding the %d byte limit", info.Size(), MaxRestoreFileSize)
	}

	version, err := DetectFormat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect backup format: %w", err)
	}

	var backup *BackupFormat
	switch version {
	case FormatV2:
		backup, err = ReadV2(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read backup: %w", err)
		}
	case FormatV1:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open backup file: %w", err)
		}
		defer f.Close()

		backup = &BackupFormat{}
		if err := json.NewDecoder(io.LimitReader(f, MaxRestoreFileSize)).Decode(backup); err != nil {
			return nil, fmt.Errorf("failed to decode backup: %w", err)
		}
		if backup.Version != FormatV1 {
			return nil, fmt.Errorf("unsupported backup version: %d", backup.Version)
		}
	}
	return backup, nil
}

// GenerateBackupPath creates a timestamped backup filename in the given directory.
func GenerateBackupPath(dir string) string {
	ts := time.Now().Format("20060102-150405.000")
	return filepath.Join(dir, filePrefix+ts+".json.gz")
}

func isBackupFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) &&
		(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz"))
}
