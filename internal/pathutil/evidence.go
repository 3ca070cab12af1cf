package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxCollisionSuffix bounds the search for a free file name.
const maxCollisionSuffix = 1000

// SafeJoin joins name onto dir and rejects names that would leave dir.
// name must be a single path element.
func SafeJoin(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("file name %q must not contain separators", name)
	}
	return filepath.Join(dir, name), nil
}

// CreateUnique creates a new file for name inside dir, appending " (n)"
// before the extension when the name is taken. The directory is created
// with 0700 permissions if needed. The caller closes the returned file.
func CreateUnique(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", RedactPath(dir), err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; i <= maxCollisionSuffix; i++ {
		path, err := SafeJoin(dir, candidate)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create %s: %w", RedactPath(path), err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	return nil, fmt.Errorf("no free name for %q in %s", name, RedactPath(dir))
}
