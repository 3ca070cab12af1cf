package summarization

import (
	"fmt"
	"time"

	"github.com/nvandessel/forensic-council/internal/models"
)

var defaultSummarizer = NewRuleSummarizer(DefaultConfig())

// Build assembles the durable report for a completed run using the default
// rule summarizer. The results are copied.
func Build(fileName string, results []models.AgentResult, now time.Time, id string) models.Report {
	return models.Report{
		ID:        id,
		FileName:  fileName,
		Timestamp: now.UTC(),
		Summary:   defaultSummarizer.summarize(results),
		Agents:    copyResults(results),
	}
}

// BuildWith is Build with a caller-supplied summarizer.
func BuildWith(s Summarizer, fileName string, results []models.AgentResult, now time.Time, id string) (models.Report, error) {
	summary, err := s.Summarize(results)
	if err != nil {
		return models.Report{}, fmt.Errorf("summarizing %d results: %w", len(results), err)
	}
	return models.Report{
		ID:        id,
		FileName:  fileName,
		Timestamp: now.UTC(),
		Summary:   summary,
		Agents:    copyResults(results),
	}, nil
}

func copyResults(results []models.AgentResult) []models.AgentResult {
	out := make([]models.AgentResult, len(results))
	copy(out, results)
	return out
}
