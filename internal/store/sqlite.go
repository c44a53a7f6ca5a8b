package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/deep-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	workflow     TEXT NOT NULL,
	query_type   TEXT NOT NULL,
	success      INTEGER NOT NULL DEFAULT 0,
	run          TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	run_id     TEXT PRIMARY KEY REFERENCES runs(id),
	markdown   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow);
CREATE INDEX IF NOT EXISTS idx_runs_success ON runs(success);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.ResearchRun) error {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, workflow, query_type, success, run, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			query = excluded.query,
			workflow = excluded.workflow,
			query_type = excluded.query_type,
			success = excluded.success,
			run = excluded.run,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		run.ID, run.Query, string(run.Workflow), string(run.QueryType),
		boolToInt(run.Success), string(runJSON),
		run.StartedAt.UTC(), run.CompletedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	var runJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT run FROM runs WHERE id = ?`, runID,
	).Scan(&runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	var run model.ResearchRun
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run")
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ResearchRun, error) {
	query := `SELECT run FROM runs WHERE 1=1`
	var args []any

	if filter.Workflow != "" {
		query += ` AND workflow = ?`
		args = append(args, string(filter.Workflow))
	}
	if filter.Success != nil {
		query += ` AND success = ?`
		args = append(args, boolToInt(*filter.Success))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.ResearchRun
	for rows.Next() {
		var runJSON string
		if err := rows.Scan(&runJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var run model.ResearchRun
		if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveReport(ctx context.Context, runID string, markdown string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (run_id, markdown, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET markdown = excluded.markdown, created_at = excluded.created_at`,
		runID, markdown, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save report %s", runID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (string, error) {
	var markdown string
	err := s.db.QueryRowContext(ctx,
		`SELECT markdown FROM reports WHERE run_id = ?`, runID,
	).Scan(&markdown)
	if errors.Is(err, sql.ErrNoRows) {
		return "", eris.Wrapf(ErrNotFound, "sqlite: report %s", runID)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get report %s", runID)
	}
	return markdown, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
