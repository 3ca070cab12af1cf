package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nvandessel/forensic-council/internal/constants"
)

// BackupInfo describes one backup file on disk.
type BackupInfo struct {
	Path      string
	Size      int64
	CreatedAt time.Time
	Version   int

	// Header is set for V2 files whose header could be read.
	Header *BackupHeader
}

// Retention limits how many backups stay in a directory. Each non-zero
// limit prunes independently; a backup survives only if every limit keeps
// it. The newest backup is never pruned for size.
type Retention struct {
	MaxCount int
	MaxAge   time.Duration
	MaxBytes int64

	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

// DefaultRetention keeps the newest constants.MaxBackupRotation backups.
func DefaultRetention() Retention {
	return Retention{MaxCount: constants.MaxBackupRotation}
}

// RetentionFromConfig builds a Retention from the storage settings. maxAge
// accepts Go durations plus "d" and "w" suffixes; maxSize accepts anything
// humanize understands ("100MB", "1 GiB"). With nothing set it returns
// DefaultRetention.
func RetentionFromConfig(maxCount int, maxAge, maxSize string) (Retention, error) {
	var r Retention
	if maxCount < 0 {
		return r, fmt.Errorf("backup count must be non-negative, got %d", maxCount)
	}
	r.MaxCount = maxCount
	if maxAge != "" {
		d, err := ParseDuration(maxAge)
		if err != nil {
			return r, err
		}
		r.MaxAge = d
	}
	if maxSize != "" {
		n, err := humanize.ParseBytes(maxSize)
		if err != nil {
			return r, fmt.Errorf("invalid backup size %q: %w", maxSize, err)
		}
		r.MaxBytes = int64(n)
	}
	if r.MaxCount == 0 && r.MaxAge == 0 && r.MaxBytes == 0 {
		return DefaultRetention(), nil
	}
	return r, nil
}

// Keep filters backups, which must be sorted newest first, down to the
// ones the limits allow.
func (r Retention) Keep(backups []BackupInfo) []BackupInfo {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	cutoff := now().Add(-r.MaxAge)

	var keep []BackupInfo
	var total int64
	for i, b := range backups {
		if r.MaxCount > 0 && i >= r.MaxCount {
			break
		}
		if r.MaxAge > 0 && !b.CreatedAt.After(cutoff) {
			continue
		}
		if r.MaxBytes > 0 && len(keep) > 0 && total+b.Size > r.MaxBytes {
			break
		}
		keep = append(keep, b)
		total += b.Size
	}
	return keep
}

// Prune deletes the backups in dir that Keep rejects and returns their
// paths. Deletion stops at the first failure.
func (r Retention) Prune(dir string) ([]string, error) {
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]struct{}, len(backups))
	for _, b := range r.Keep(backups) {
		kept[b.Path] = struct{}{}
	}

	var deleted []string
	for _, b := range backups {
		if _, ok := kept[b.Path]; ok {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(b.Path), err)
		}
		deleted = append(deleted, b.Path)
	}
	return deleted, nil
}

// ListBackups returns the backups in dir, newest first by file name. A
// missing directory has no backups. CreatedAt comes from the V2 header when
// there is one and from the modification time otherwise.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !isBackupFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}

		b := BackupInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if v, err := DetectFormat(b.Path); err == nil {
			b.Version = v
		}
		if b.Version == FormatV2 {
			if h, err := ReadV2Header(b.Path); err == nil {
				b.Header = h
				if !h.CreatedAt.IsZero() {
					b.CreatedAt = h.CreatedAt
				}
			}
		}
		backups = append(backups, b)
	}

	slices.SortFunc(backups, func(a, b BackupInfo) int {
		return strings.Compare(filepath.Base(b.Path), filepath.Base(a.Path))
	})
	return backups, nil
}

// ParseDuration parses a Go duration or a whole number of days ("30d") or
// weeks ("2w").
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[s[len(s)-1]]
	if unit == 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	return time.Duration(n) * unit, nil
}
