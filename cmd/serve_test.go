package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// serveStore implements store.Store for router tests.
type serveStore struct {
	mu sync.Mutex

	runs    []model.Run
	run     *model.Run
	pingErr error
	getErr  error

	created    []model.Company
	failedRuns []string
}

func (s *serveStore) CreateRun(_ context.Context, company model.Company) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, company)
	return &model.Run{
		ID:        "run-1",
		Company:   company,
		Status:    model.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *serveStore) FailRun(_ context.Context, runID string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedRuns = append(s.failedRuns, runID)
	return nil
}

func (s *serveStore) GetRun(context.Context, string) (*model.Run, error) {
	return s.run, s.getErr
}

func (s *serveStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return s.runs, nil
}

func (s *serveStore) Ping(context.Context) error { return s.pingErr }

func (s *serveStore) failedRunIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failedRuns...)
}

// Unused store methods — satisfy the interface.
func (s *serveStore) UpdateRunStatus(context.Context, string, model.RunStatus) error { return nil }
func (s *serveStore) UpdateRunRecord(context.Context, string, *model.ReconciledRecord) error {
	return nil
}
func (s *serveStore) SaveRecord(context.Context, *model.ReconciledRecord) error { return nil }
func (s *serveStore) SaveRecords(context.Context, []*model.ReconciledRecord) (int64, error) {
	return 0, nil
}
func (s *serveStore) GetLatestRecord(context.Context, string) (*model.ReconciledRecord, error) {
	return nil, nil
}
func (s *serveStore) RecordStats(context.Context) (*store.RecordStats, error) {
	return &store.RecordStats{}, nil
}
func (s *serveStore) EnqueueDLQ(context.Context, resilience.DLQEntry) error { return nil }
func (s *serveStore) DequeueDLQ(context.Context, resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	return nil, nil
}
func (s *serveStore) IncrementDLQRetry(context.Context, string, time.Time, string) error { return nil }
func (s *serveStore) RemoveDLQ(context.Context, string) error                            { return nil }
func (s *serveStore) CountDLQ(context.Context) (int, error)                              { return 0, nil }
func (s *serveStore) Migrate(context.Context) error                                      { return nil }
func (s *serveStore) Close() error                                                       { return nil }

func newTestRouter(st *serveStore) http.Handler {
	// Nil reconciler: async runs fail gracefully and mark the run failed.
	return buildRouter(context.Background(), &reconcileEnv{Store: st}, 24)
}

func TestRouter_Health(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&serveStore{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_HealthDegraded(t *testing.T) {
	rr := httptest.NewRecorder()
	st := &serveStore{pingErr: assert.AnError}
	newTestRouter(st).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "degraded")
}

func TestRouter_Reconcile_Accepted(t *testing.T) {
	st := &serveStore{}
	router := newTestRouter(st)

	payload := []byte(`{"domain":"https://www.acme.com/about","name":"Acme Corp"}`)
	req := httptest.NewRequest(http.MethodPost, "/reconcile", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp["run_id"])
	assert.Equal(t, "queued", resp["status"])
	// The URL collapses to the canonical domain before the run is created.
	assert.Equal(t, "acme.com", resp["domain"])

	require.Len(t, st.created, 1)
	assert.Equal(t, "acme.com", st.created[0].Domain)
	assert.Equal(t, "Acme Corp", st.created[0].Name)

	// The async run fails against the nil reconciler and marks the run.
	assert.Eventually(t, func() bool {
		ids := st.failedRunIDs()
		return len(ids) == 1 && ids[0] == "run-1"
	}, time.Second, 10*time.Millisecond)
}

func TestRouter_Reconcile_MissingDomain(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reconcile", bytes.NewReader([]byte(`{"name":"Acme"}`)))
	newTestRouter(&serveStore{}).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "domain is required")
}

func TestRouter_Reconcile_InvalidJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reconcile", bytes.NewReader([]byte("not json")))
	newTestRouter(&serveStore{}).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestRouter_ListRuns(t *testing.T) {
	st := &serveStore{runs: []model.Run{
		{ID: "a", Status: model.RunStatusComplete},
		{ID: "b", Status: model.RunStatusFailed},
	}}

	rr := httptest.NewRecorder()
	newTestRouter(st).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs?limit=10", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)
}

func TestRouter_ListRuns_Empty(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&serveStore{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestRouter_GetRun(t *testing.T) {
	st := &serveStore{run: &model.Run{ID: "run-42", Status: model.RunStatusComplete}}

	rr := httptest.NewRecorder()
	newTestRouter(st).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/run-42", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, "run-42", run.ID)
}

func TestRouter_GetRun_NotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&serveStore{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/nope", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestRouter_Metrics(t *testing.T) {
	st := &serveStore{runs: []model.Run{
		{Status: model.RunStatusComplete, CreatedAt: time.Now().UTC()},
	}}

	rr := httptest.NewRecorder()
	newTestRouter(st).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.EqualValues(t, 1, snap["runs_total"])
	assert.EqualValues(t, 24, snap["lookback_hours"])
}
