package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/store"
)

type memStore struct {
	runs    map[string]*model.ResearchRun
	reports map[string]string

	lastFilter store.RunFilter
}

func newMemStore() *memStore {
	return &memStore{
		runs:    make(map[string]*model.ResearchRun),
		reports: make(map[string]string),
	}
}

func (s *memStore) SaveRun(_ context.Context, run *model.ResearchRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *memStore) GetRun(_ context.Context, runID string) (*model.ResearchRun, error) {
	run, ok := s.runs[runID]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "run %s", runID)
	}
	return run, nil
}

func (s *memStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.ResearchRun, error) {
	s.lastFilter = filter
	var out []model.ResearchRun
	for _, r := range s.runs {
		if filter.Workflow != "" && r.Workflow != filter.Workflow {
			continue
		}
		if filter.Success != nil && r.Success != *filter.Success {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *memStore) SaveReport(_ context.Context, runID, markdown string) error {
	s.reports[runID] = markdown
	return nil
}

func (s *memStore) GetReport(_ context.Context, runID string) (string, error) {
	md, ok := s.reports[runID]
	if !ok {
		return "", eris.Wrapf(store.ErrNotFound, "report %s", runID)
	}
	return md, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

type fakeResearcher struct {
	lastInput model.Input
	run       *model.ResearchRun
	err       error
}

func (f *fakeResearcher) Run(_ context.Context, input model.Input) (*model.ResearchRun, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func serverRun(id string, workflow model.Workflow, success bool) *model.ResearchRun {
	started := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return &model.ResearchRun{
		ID:                id,
		Query:             "kubernetes operator patterns",
		QueryType:         model.QueryTypeGeneral,
		Workflow:          workflow,
		StartedAt:         started,
		CompletedAt:       started.Add(4 * time.Second),
		SourceCount:       2,
		SuccessfulSources: 1,
		Success:           success,
		Sources: []model.SourceResult{
			{Source: "jina", Type: "web_search", URL: "https://example.com/a", Title: "A", Success: true},
		},
		URLsDiscovered: []string{"https://example.com/a"},
	}
}

func testServer(t *testing.T, st store.Store, exec researcher) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newRouter(st, exec, cost.NewCalculator(cost.DefaultRates()), 10))
	t.Cleanup(srv.Close)
	return srv
}

func TestServeHealth(t *testing.T) {
	t.Parallel()

	srv := testServer(t, newMemStore(), &fakeResearcher{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestServeResearch(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	exec := &fakeResearcher{run: serverRun("run-1", model.WorkflowDirect, true)}
	srv := testServer(t, st, exec)

	body := `{"query":"kubernetes operator patterns","tier":"pro"}`
	resp, err := http.Post(srv.URL+"/research", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "run-1", out["run_id"])
	assert.InDelta(t, 0.08, out["fee"], 0.0001)

	// omitted max_sources falls back to the server default
	assert.Equal(t, 10, exec.lastInput.MaxSources)

	// run and report were persisted
	_, ok := st.runs["run-1"]
	assert.True(t, ok)
	assert.Contains(t, st.reports["run-1"], "# Deep Research Report")
}

func TestServeResearch_MissingQuery(t *testing.T) {
	t.Parallel()

	srv := testServer(t, newMemStore(), &fakeResearcher{})

	resp, err := http.Post(srv.URL+"/research", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeResearch_ExecutorError(t *testing.T) {
	t.Parallel()

	srv := testServer(t, newMemStore(), &fakeResearcher{err: eris.New("boom")})

	body := `{"query":"anything"}`
	resp, err := http.Post(srv.URL+"/research", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestServeResearch_NoSave(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	exec := &fakeResearcher{run: serverRun("run-2", model.WorkflowSynthesis, true)}
	srv := testServer(t, st, exec)

	body := `{"query":"anything","no_save":true}`
	resp, err := http.Post(srv.URL+"/research", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, st.runs)
	assert.Empty(t, st.reports)
}

func TestServeRunsList(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	require.NoError(t, st.SaveRun(context.Background(), serverRun("run-a", model.WorkflowDirect, true)))
	require.NoError(t, st.SaveRun(context.Background(), serverRun("run-b", model.WorkflowSynthesis, false)))
	srv := testServer(t, st, &fakeResearcher{})

	resp, err := http.Get(srv.URL + "/runs?workflow=direct&success=true&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Runs  []model.ResearchRun `json:"runs"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Count)
	require.Len(t, out.Runs, 1)
	assert.Equal(t, "run-a", out.Runs[0].ID)

	assert.Equal(t, model.WorkflowDirect, st.lastFilter.Workflow)
	require.NotNil(t, st.lastFilter.Success)
	assert.True(t, *st.lastFilter.Success)
	assert.Equal(t, 5, st.lastFilter.Limit)
}

func TestServeRunGet(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	require.NoError(t, st.SaveRun(context.Background(), serverRun("run-a", model.WorkflowDirect, true)))
	srv := testServer(t, st, &fakeResearcher{})

	resp, err := http.Get(srv.URL + "/runs/run-a")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run model.ResearchRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, "run-a", run.ID)

	resp2, err := http.Get(srv.URL + "/runs/missing")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestServeRunReport(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	require.NoError(t, st.SaveReport(context.Background(), "run-a", "# Deep Research Report\n\nbody"))
	srv := testServer(t, st, &fakeResearcher{})

	resp, err := http.Get(srv.URL + "/runs/run-a/report")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")

	resp2, err := http.Get(srv.URL + "/runs/missing/report")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
