// Package summarization condenses the results of a council run into the
// short verdict stored with each report.
package summarization

import (
	"github.com/nvandessel/forensic-council/internal/constants"
	"github.com/nvandessel/forensic-council/internal/models"
)

// Summarizer generates a verdict for a set of agent results
type Summarizer interface {
	// Summarize generates a short summary for one completed run.
	// An empty result set yields an empty summary.
	Summarize(results []models.AgentResult) (string, error)
}

// SummarizerConfig holds configuration for summarizers
type SummarizerConfig struct {
	// MaxLength is the maximum length for summaries (default: 280)
	MaxLength int

	// ReviewThreshold is the confidence below which a finding is flagged
	// for human review (default: 75)
	ReviewThreshold int
}

// DefaultConfig returns the default summarizer configuration
func DefaultConfig() SummarizerConfig {
	return SummarizerConfig{
		MaxLength:       constants.DefaultSummaryMaxLength,
		ReviewThreshold: constants.DefaultReviewThreshold,
	}
}

// NewRuleSummarizer creates a new rule-based summarizer
func NewRuleSummarizer(config SummarizerConfig) *RuleSummarizer {
	if config.MaxLength <= 0 {
		config.MaxLength = constants.DefaultSummaryMaxLength
	}
	if config.ReviewThreshold <= 0 {
		config.ReviewThreshold = constants.DefaultReviewThreshold
	}
	return &RuleSummarizer{config: config}
}
