// Package store persists research runs and their rendered reports, with
// SQLite and Postgres backends behind a common interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/model"
)

// ErrNotFound is returned when a run or report does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Workflow model.Workflow `json:"workflow,omitempty"`
	Success  *bool          `json:"success,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for research runs.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *model.ResearchRun) error
	GetRun(ctx context.Context, runID string) (*model.ResearchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ResearchRun, error)

	// Reports
	SaveReport(ctx context.Context, runID string, markdown string) error
	GetReport(ctx context.Context, runID string) (string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
