package store

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the name of the state directory, both global and per project.
	DirName = ".fcouncil"

	// DBFileName is the SQLite database inside the state directory.
	DBFileName = "fcouncil.db"

	// EvidenceDirName holds uploaded evidence inside the state directory.
	EvidenceDirName = "evidence"
)

// GlobalPath returns the per-user state directory, ~/.fcouncil.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// LocalPath returns the path to the .fcouncil directory for the given
// project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}

// DefaultDBPath returns the database path for the given project root.
func DefaultDBPath(projectRoot string) string {
	return filepath.Join(LocalPath(projectRoot), DBFileName)
}

// EvidenceDir returns where uploaded evidence is kept for the project root.
func EvidenceDir(projectRoot string) string {
	return filepath.Join(LocalPath(projectRoot), EvidenceDirName)
}
