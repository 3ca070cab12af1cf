package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDirName is the per-user and per-project state directory.
const StateDirName = ".fcouncil"

// DefaultAllowedBackupDirs returns ~/.fcouncil/backups.
func DefaultAllowedBackupDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{filepath.Join(home, StateDirName, "backups")}, nil
}

// DefaultAllowedBackupDirsWithProjectRoot also allows the project's own
// backup directory.
func DefaultAllowedBackupDirsWithProjectRoot(projectRoot string) ([]string, error) {
	dirs, err := DefaultAllowedBackupDirs()
	if err != nil {
		return nil, err
	}
	return append(dirs, filepath.Join(projectRoot, StateDirName, "backups")), nil
}

// AllowedEvidenceDirs returns where evidence named by path may be read from:
// the project root, the upload directory and any extra directories.
func AllowedEvidenceDirs(projectRoot string, extra ...string) []string {
	dirs := []string{projectRoot, filepath.Join(projectRoot, StateDirName, "evidence")}
	return append(dirs, extra...)
}
