package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deep-research/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT run FROM runs WHERE id = \$1`).
		WithArgs("missing-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "missing-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	run := testRun("run-1", model.WorkflowSynthesis, true)
	runJSON, err := json.Marshal(run)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT run FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"run"}).AddRow(runJSON))

	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Query, got.Query)
	assert.Equal(t, model.WorkflowSynthesis, got.Workflow)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	run := testRun("run-1", model.WorkflowDirect, true)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM run_sources WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"run_sources"},
		[]string{"run_id", "source", "type", "url", "title", "relevance", "success"}).
		WillReturnResult(1)

	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	run := testRun("run-1", model.WorkflowSynthesis, false)
	runJSON, err := json.Marshal(run)
	require.NoError(t, err)

	failed := false
	mock.ExpectQuery(`SELECT run FROM runs WHERE true AND workflow = \$1 AND success = \$2 ORDER BY started_at DESC LIMIT \$3`).
		WithArgs("synthesis", false, 100).
		WillReturnRows(pgxmock.NewRows([]string{"run"}).AddRow(runJSON))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Workflow: model.WorkflowSynthesis,
		Success:  &failed,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT markdown FROM reports WHERE run_id = \$1`).
		WithArgs("missing-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetReport(context.Background(), "missing-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT markdown FROM reports WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"markdown"}).AddRow("# Deep Research Report"))

	md, err := s.GetReport(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "# Deep Research Report", md)
	assert.NoError(t, mock.ExpectationsWereMet())
}
