package summarization

import (
	"fmt"
	"strings"
	"time"

	"github.com/nvandessel/forensic-council/internal/models"
)

// Markdown renders a report as a markdown document: a heading, the summary
// and one section per agent finding, in stage order.
func Markdown(r models.Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Council Report: %s\n\n", r.FileName))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", r.ID))
	sb.WriteString(fmt.Sprintf("**Analyzed:** %s\n\n", r.Timestamp.UTC().Format(time.RFC3339)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString(r.Summary)
	sb.WriteString("\n")

	if len(r.Agents) == 0 {
		return sb.String()
	}

	sb.WriteString("\n## Findings\n")
	for _, a := range r.Agents {
		sb.WriteString(fmt.Sprintf("\n### %s (%s)\n\n", a.Name, a.Role))
		sb.WriteString(fmt.Sprintf("**Confidence:** %d%%\n\n", a.Confidence))
		sb.WriteString(a.Result)
		sb.WriteString("\n")
	}
	return sb.String()
}
