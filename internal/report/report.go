// Package report renders a completed research run into the structured
// output record and a human-readable markdown document.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sells-group/deep-research/internal/classifier"
	"github.com/sells-group/deep-research/internal/model"
)

// Report is the structured output record for one research run, shaped for
// storage and downstream consumption.
type Report struct {
	RunID                string               `json:"run_id"`
	Query                string               `json:"query"`
	Workflow             model.Workflow       `json:"workflow"`
	WorkflowDescription  string               `json:"workflow_description"`
	QueryType            model.QueryType      `json:"query_type"`
	QueryTypeDescription string               `json:"query_type_description"`
	DurationSeconds      float64              `json:"duration_seconds"`
	SourceCount          int                  `json:"source_count"`
	SuccessfulSources    int                  `json:"successful_sources"`
	FindingsSummary      string               `json:"findings_summary"`
	Synthesis            string               `json:"synthesis,omitempty"`
	SourceContent        []model.SourceResult `json:"source_content"`
	URLsDiscovered       []string             `json:"urls_discovered"`
	Fee                  float64              `json:"fee"`
	Timestamp            string               `json:"timestamp"`
	Success              bool                 `json:"success"`
}

// Build assembles the structured report for a run. SourceContent carries
// only the successful results; failures are reflected in the counts.
func Build(run *model.ResearchRun, fee float64) Report {
	content := make([]model.SourceResult, 0, len(run.Sources))
	for _, s := range run.Sources {
		if s.Success {
			content = append(content, s)
		}
	}

	return Report{
		RunID:                run.ID,
		Query:                run.Query,
		Workflow:             run.Workflow,
		WorkflowDescription:  classifier.WorkflowDescription(run.Workflow),
		QueryType:            run.QueryType,
		QueryTypeDescription: classifier.QueryTypeDescription(run.QueryType),
		DurationSeconds:      math.Round(run.Duration().Seconds()*100) / 100,
		SourceCount:          run.SourceCount,
		SuccessfulSources:    run.SuccessfulSources,
		FindingsSummary:      run.FindingsSummary,
		Synthesis:            run.Synthesis,
		SourceContent:        content,
		URLsDiscovered:       run.URLsDiscovered,
		Fee:                  fee,
		Timestamp:            run.CompletedAt.UTC().Format(time.RFC3339),
		Success:              run.Success,
	}
}

// Markdown renders the run as a human-readable markdown report: metadata
// block, synthesis when present, per-source findings, sources consulted.
func Markdown(run *model.ResearchRun, fee float64) string {
	var b strings.Builder

	b.WriteString("# Deep Research Report\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", run.Query)

	b.WriteString("## Metadata\n\n")
	fmt.Fprintf(&b, "- **Workflow:** %s (%s)\n", run.Workflow, classifier.WorkflowDescription(run.Workflow))
	fmt.Fprintf(&b, "- **Query Type:** %s (%s)\n", run.QueryType, classifier.QueryTypeDescription(run.QueryType))
	fmt.Fprintf(&b, "- **Duration:** %.1f seconds\n", run.Duration().Seconds())
	fmt.Fprintf(&b, "- **Sources Consulted:** %d\n", run.SourceCount)
	fmt.Fprintf(&b, "- **Successful Sources:** %d\n", run.SuccessfulSources)
	fmt.Fprintf(&b, "- **Fee:** $%.2f\n", fee)
	fmt.Fprintf(&b, "- **Timestamp:** %s\n\n", run.CompletedAt.UTC().Format(time.RFC3339))

	if run.Synthesis != "" {
		b.WriteString("## Synthesis\n\n")
		b.WriteString(run.Synthesis)
		b.WriteString("\n\n")
	}

	b.WriteString("## Key Findings\n\n")
	for i, s := range run.Sources {
		fmt.Fprintf(&b, "### Source %d: %s (%s)\n\n", i+1, s.Source, s.Type)
		b.WriteString(findingBody(s))
		b.WriteString("\n\n")
	}

	if len(run.URLsDiscovered) > 0 {
		b.WriteString("## Sources Consulted\n\n")
		for _, u := range run.URLsDiscovered {
			fmt.Fprintf(&b, "- %s\n", u)
		}
		b.WriteString("\n")
	}

	return b.String()
}

const findingSnippetChars = 500

func findingBody(s model.SourceResult) string {
	if !s.Success {
		if s.Error != "" {
			return fmt.Sprintf("Failed: %s", s.Error)
		}
		return "Failed."
	}

	var parts []string
	if s.Title != "" {
		parts = append(parts, fmt.Sprintf("**%s**", s.Title))
	}
	if s.Content != "" {
		snippet := s.Content
		if len(snippet) > findingSnippetChars {
			snippet = truncate(snippet, findingSnippetChars) + "..."
		}
		parts = append(parts, snippet)
	}
	if len(parts) == 0 {
		if s.URL != "" {
			return s.URL
		}
		return "No content extracted."
	}
	return strings.Join(parts, "\n\n")
}

// truncate cuts s to at most max bytes, backing up to a rune boundary so
// the cut never leaves invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
