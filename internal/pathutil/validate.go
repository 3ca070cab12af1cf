// Package pathutil confines file operations to known directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowed is wrapped by every rejection of a path that lands
// outside the allow list.
var ErrOutsideAllowed = errors.New("outside allowed directories")

// AllowList is a set of directories that file paths must stay within.
// Symlinks are resolved on both sides before comparing, so a link inside
// an allowed directory that points elsewhere does not count as inside.
type AllowList struct {
	roots []string
}

// NewAllowList resolves dirs once. Directories that cannot be made absolute
// are ignored.
func NewAllowList(dirs ...string) *AllowList {
	a := &AllowList{}
	for _, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		resolved, err := resolve(abs)
		if err != nil {
			continue
		}
		a.roots = append(a.roots, resolved)
	}
	return a
}

// Check returns nil when path is one of the allowed directories or lies
// beneath one. The file itself does not need to exist.
func (a *AllowList) Check(path string) error {
	switch {
	case path == "":
		return errors.New("path validation failed: path is empty")
	case strings.ContainsRune(path, 0):
		return errors.New("path validation failed: path contains null byte")
	case len(a.roots) == 0:
		return errors.New("path validation failed: no allowed directories configured")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	parent, err := resolve(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	target := filepath.Join(parent, filepath.Base(abs))

	for _, root := range a.roots {
		if within(root, target) {
			return nil
		}
	}
	return fmt.Errorf("path validation failed: %q is %w", RedactPath(abs), ErrOutsideAllowed)
}

// ValidatePath checks path against allowedDirs.
func ValidatePath(path string, allowedDirs []string) error {
	return NewAllowList(allowedDirs...).Check(path)
}

// resolve evaluates symlinks on the longest existing prefix of dir and
// appends whatever does not exist yet.
func resolve(dir string) (string, error) {
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		up := filepath.Dir(dir)
		if up == dir {
			return "", fmt.Errorf("cannot resolve %s", RedactPath(dir))
		}
		missing = append(missing, filepath.Base(dir))
		dir = up
	}
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// RedactPath shortens path to its last two elements for log lines and error
// messages, e.g. ".../.fcouncil/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	clean := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(clean))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(clean)
	}
	return ".../" + parent + "/" + filepath.Base(clean)
}
