// Package render turns a completed debugging brief into a Markdown document.
// It knows nothing about the pipeline; structured data in, document out.
package render

import (
	"fmt"
	"strings"
	"time"

	"debrief/internal/analysis"
)

const barWidth = 10

var severityBadges = map[analysis.Severity]string{
	analysis.SeverityCritical: "🔴 CRITICAL",
	analysis.SeverityHigh:     "🟠 HIGH",
	analysis.SeverityMedium:   "🟡 MEDIUM",
	analysis.SeverityLow:      "🟢 LOW",
}

// Markdown renders the brief as a self-contained document.
func Markdown(b *analysis.Brief) string {
	var sb strings.Builder

	sb.WriteString("# Debugging Brief\n\n")
	fmt.Fprintf(&sb, "**Severity:** %s  \n", severityBadge(b.Classification.Severity))
	fmt.Fprintf(&sb, "**Overall confidence:** %s %.0f%%\n\n", confidenceBar(b.OverallConfidence), b.OverallConfidence*100)

	sb.WriteString("## Failure\n\n")
	sb.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Error type | `%s` |\n", b.Classification.ErrorType)
	fmt.Fprintf(&sb, "| Category | `%s` |\n", b.Classification.Category)
	fmt.Fprintf(&sb, "| Message | %s |\n", b.Classification.Message)
	if len(b.Classification.AffectedResources) > 0 {
		fmt.Fprintf(&sb, "| Affected | %s |\n", strings.Join(b.Classification.AffectedResources, ", "))
	}
	sb.WriteString("\n")

	sb.WriteString("## Summary\n\n")
	sb.WriteString(b.Summary)
	sb.WriteString("\n\n")

	if b.NoFixesFound {
		sb.WriteString("## Fixes\n\n_No fix candidates could be identified._\n\n")
	} else {
		sb.WriteString("## Ranked fixes\n\n")
		for i, c := range b.FixCandidates {
			fmt.Fprintf(&sb, "### %d. %s\n\n", i+1, c.Title)
			fmt.Fprintf(&sb, "Confidence: %s %.0f%%\n\n", confidenceBar(c.Confidence), c.Confidence*100)
			if c.Rationale != "" {
				fmt.Fprintf(&sb, "%s\n\n", c.Rationale)
			}
			for _, step := range c.Steps {
				fmt.Fprintf(&sb, "- %s\n", step)
			}
			if len(c.Steps) > 0 {
				sb.WriteString("\n")
			}
			if c.CodeExample != "" {
				fmt.Fprintf(&sb, "```\n%s\n```\n\n", c.CodeExample)
			}
			if c.Source != "" {
				fmt.Fprintf(&sb, "Source: <%s>\n\n", c.Source)
			}
		}
	}

	if len(b.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range b.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "---\n_Analysis %s generated %s, completed in %s._\n",
		b.AnalysisID, b.GeneratedAt.UTC().Format(time.RFC3339), b.Elapsed.Round(time.Millisecond))
	return sb.String()
}

func severityBadge(s analysis.Severity) string {
	if badge, ok := severityBadges[s]; ok {
		return badge
	}
	return severityBadges[analysis.SeverityMedium]
}

// confidenceBar renders a filled/empty block bar for a [0,1] confidence.
func confidenceBar(v float64) string {
	filled := int(analysis.ClampConfidence(v)*barWidth + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}
