package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deep-research/internal/db"
	"github.com/sells-group/deep-research/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_run":    `SELECT run FROM runs WHERE id = $1`,
	"get_report": `SELECT markdown FROM reports WHERE run_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	workflow     TEXT NOT NULL,
	query_type   TEXT NOT NULL,
	success      BOOLEAN NOT NULL DEFAULT false,
	run          JSONB NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS run_sources (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	source    TEXT NOT NULL,
	type      TEXT NOT NULL,
	url       TEXT,
	title     TEXT,
	relevance TEXT,
	success   BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS reports (
	run_id     TEXT PRIMARY KEY REFERENCES runs(id),
	markdown   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow);
CREATE INDEX IF NOT EXISTS idx_runs_success ON runs(success);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_sources_run_id ON run_sources(run_id);
CREATE INDEX IF NOT EXISTS idx_run_sources_url ON run_sources(url);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.ResearchRun) error {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, query, workflow, query_type, success, run, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			query = EXCLUDED.query,
			workflow = EXCLUDED.workflow,
			query_type = EXCLUDED.query_type,
			success = EXCLUDED.success,
			run = EXCLUDED.run,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`,
		run.ID, run.Query, string(run.Workflow), string(run.QueryType),
		run.Success, runJSON, run.StartedAt.UTC(), run.CompletedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save run %s", run.ID)
	}

	// Refresh the queryable per-source rows via COPY.
	if _, err := s.pool.Exec(ctx, `DELETE FROM run_sources WHERE run_id = $1`, run.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear run sources %s", run.ID)
	}

	rows := make([][]any, 0, len(run.Sources))
	for _, src := range run.Sources {
		rows = append(rows, []any{
			run.ID, src.Source, src.Type, src.URL, src.Title, string(src.Relevance), src.Success,
		})
	}
	columns := []string{"run_id", "source", "type", "url", "title", "relevance", "success"}
	if _, err := db.CopyFrom(ctx, s.pool, "run_sources", columns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy run sources %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	var runJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT run FROM runs WHERE id = $1`, runID).Scan(&runJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	var run model.ResearchRun
	if err := json.Unmarshal(runJSON, &run); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run")
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ResearchRun, error) {
	query := `SELECT run FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Workflow != "" {
		query += fmt.Sprintf(` AND workflow = $%d`, argIdx)
		args = append(args, string(filter.Workflow))
		argIdx++
	}
	if filter.Success != nil {
		query += fmt.Sprintf(` AND success = $%d`, argIdx)
		args = append(args, *filter.Success)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ResearchRun
	for rows.Next() {
		var runJSON []byte
		if err := rows.Scan(&runJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var run model.ResearchRun
		if err := json.Unmarshal(runJSON, &run); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveReport(ctx context.Context, runID string, markdown string) error {
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reports",
		Columns:      []string{"run_id", "markdown", "created_at"},
		ConflictKeys: []string{"run_id"},
	}, [][]any{{runID, markdown, time.Now().UTC()}})
	return eris.Wrapf(err, "postgres: save report %s", runID)
}

func (s *PostgresStore) GetReport(ctx context.Context, runID string) (string, error) {
	var markdown string
	err := s.pool.QueryRow(ctx, `SELECT markdown FROM reports WHERE run_id = $1`, runID).Scan(&markdown)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", eris.Wrapf(ErrNotFound, "postgres: report %s", runID)
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get report %s", runID)
	}
	return markdown, nil
}
