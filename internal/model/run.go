// Package model defines the core types for research runs.
package model

import "time"

// QueryType classifies query intent for source routing.
type QueryType string

const (
	QueryTypeDocumentation QueryType = "documentation"
	QueryTypeCode          QueryType = "code"
	QueryTypeAcademic      QueryType = "academic"
	QueryTypeGeneral       QueryType = "general"
)

// Workflow is one of the three fixed orchestration recipes.
type Workflow string

const (
	WorkflowDirect      Workflow = "direct"
	WorkflowExploratory Workflow = "exploratory"
	WorkflowSynthesis   Workflow = "synthesis"
)

// WorkflowAuto is the input-side sentinel requesting automatic selection.
// It is never stored on a ResearchRun.
const WorkflowAuto = "auto"

// Relevance is a qualitative ranking assigned per source.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// Content caps applied when shaping provider output.
const (
	// MaxReadContentChars caps content extracted from a single URL read.
	MaxReadContentChars = 8000
	// MaxSnippetChars caps a single search-result snippet.
	MaxSnippetChars = 4000
)

// SourceResult is one provider's contribution to a run. Created once at
// call completion and never mutated afterward.
type SourceResult struct {
	Source    string    `json:"source"`
	Type      string    `json:"type"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	Relevance Relevance `json:"relevance,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// ResearchRun is the aggregate root for one query execution. It is built
// incrementally by the executor and sealed once aggregation finishes.
type ResearchRun struct {
	ID                string         `json:"id"`
	Query             string         `json:"query"`
	Workflow          Workflow       `json:"workflow"`
	QueryType         QueryType      `json:"query_type"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       time.Time      `json:"completed_at"`
	Sources           []SourceResult `json:"sources"`
	SourceCount       int            `json:"source_count"`
	SuccessfulSources int            `json:"successful_sources"`
	FindingsSummary   string         `json:"findings_summary"`
	Synthesis         string         `json:"synthesis,omitempty"`
	URLsDiscovered    []string       `json:"urls_discovered"`
	Success           bool           `json:"success"`
}

// Duration returns the wall-clock duration of the run.
func (r *ResearchRun) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
