package summarization

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/nvandessel/forensic-council/internal/models"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// RuleSummarizer implements Summarizer with fixed sentence templates
type RuleSummarizer struct {
	config SummarizerConfig
}

// Summarize reports the agent count, the mean confidence, and the weakest
// finding. Findings under the review threshold are named.
func (s *RuleSummarizer) Summarize(results []models.AgentResult) (string, error) {
	return s.summarize(results), nil
}

func (s *RuleSummarizer) summarize(results []models.AgentResult) string {
	if len(results) == 0 {
		return ""
	}

	sum := 0
	lowest := results[0]
	var flagged []string
	for _, r := range results {
		sum += r.Confidence
		if r.Confidence < lowest.Confidence {
			lowest = r
		}
		if r.Confidence < s.config.ReviewThreshold {
			flagged = append(flagged, r.Name)
		}
	}
	mean := int(math.Round(float64(sum) / float64(len(results))))

	noun := "agents"
	if len(results) == 1 {
		noun = "agent"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d %s reported with a mean confidence of %d%%.", len(results), noun, mean)
	if len(flagged) > 0 {
		fmt.Fprintf(&b, " Flagged for review: %s.", strings.Join(flagged, ", "))
	} else {
		b.WriteString(" All findings are consistent with authentic evidence.")
	}
	fmt.Fprintf(&b, " Lowest confidence: %s (%d%%): %s", lowest.Name, lowest.Confidence, firstSentence(lowest.Result))

	return s.truncate(cleanWhitespace(b.String()))
}

// firstSentence returns text up to and including its first full stop.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, ". "); idx >= 0 {
		return text[:idx+1]
	}
	if text != "" && !strings.HasSuffix(text, ".") {
		text += "."
	}
	return text
}

func cleanWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// truncate shortens text to max length with ellipsis
func (s *RuleSummarizer) truncate(text string) string {
	if len(text) <= s.config.MaxLength {
		return text
	}

	// Try to truncate at word boundary
	truncated := text[:s.config.MaxLength-3]
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > s.config.MaxLength/2 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}
