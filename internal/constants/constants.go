// Package constants provides named constants used throughout the forensic-council codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Evidence intake limits
const (
	// DefaultMaxEvidenceBytes is the largest evidence file accepted by default (100 MiB).
	DefaultMaxEvidenceBytes int64 = 100 << 20

	// SniffLength is how many leading bytes are read to detect a content type.
	SniffLength = 512
)

// DefaultAllowedTypePrefixes are the MIME type prefixes accepted as evidence.
// Mirrors an upload control restricted to images and videos.
var DefaultAllowedTypePrefixes = []string{"image/", "video/"}

// Report summary constants
const (
	// DefaultSummaryMaxLength is the maximum length of a generated report summary.
	DefaultSummaryMaxLength = 280

	// DefaultReviewThreshold is the confidence below which a finding is flagged
	// for human review in the summary.
	DefaultReviewThreshold = 75
)

// Backup rotation controls how many backup files are retained.
const (
	// MaxBackupRotation is the default maximum number of backup files to keep.
	MaxBackupRotation = 10
)

// Server defaults
const (
	// DefaultServerAddr is the listen address for `fcouncil serve`.
	// Loopback only; the server has no authentication.
	DefaultServerAddr = "127.0.0.1:7411"

	// DefaultHistoryPageSize is the number of reports listed when no limit is given.
	DefaultHistoryPageSize = 20
)

// Lead-in modes select the timing preset for a run.
const (
	LeadInFull = "full" // analyzing, then initiating
	LeadInLean = "lean" // initiating only
)
