package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/internal/document"
	"github.com/docuflow/docuflow/internal/ingest"
	"github.com/docuflow/docuflow/pkg/health"
)

// noopWorker accepts every dispatch so handler tests drive transitions
// through the webhook instead of timers.
type noopWorker struct{}

func (noopWorker) Dispatch(ctx context.Context, req ingest.DispatchRequest) error { return nil }
func (noopWorker) Cancel(jobID string)                                            {}

type testEnv struct {
	handler http.Handler
	svc     *ingest.Service
	docs    *document.MemStore
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	docs := document.NewMemStore()
	jobs := ingest.NewMemStore(docs)
	svc := ingest.NewService(ingest.ServiceConfig{}, jobs, docs, noopWorker{}, nil, nil)

	h := New(cfg, svc, docs, nil)
	router := NewRouter(h, RouterConfig{Checker: health.NewChecker()})
	return &testEnv{handler: router, svc: svc, docs: docs}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createDocument(t *testing.T, ownerID string) *document.Document {
	t.Helper()
	doc := &document.Document{
		OwnerID:  ownerID,
		Title:    "contract.pdf",
		FilePath: "/uploads/contract.pdf",
		FileType: "pdf",
	}
	require.NoError(t, e.docs.Create(context.Background(), doc))
	return doc
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) ingest.Job {
	t.Helper()
	var job ingest.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	return job
}

func TestTriggerEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})
	doc := env.createDocument(t, "dev-user")

	rec := env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": doc.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	job := decodeJob(t, rec)
	assert.Equal(t, doc.ID, job.DocumentID)
	assert.Equal(t, ingest.StatusProcessing, job.Status)

	// Duplicate trigger conflicts while the first job is active.
	rec = env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": doc.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerEndpointValidation(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})

	rec := env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})
	doc := env.createDocument(t, "dev-user")
	created := env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": doc.ID})
	job := decodeJob(t, created)

	rec := env.do(t, http.MethodGet, "/api/v1/ingestion/status/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, job.ID, decodeJob(t, rec).ID)

	rec = env.do(t, http.MethodGet, "/api/v1/ingestion/status/unknown-job", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})
	doc := env.createDocument(t, "dev-user")
	created := env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": doc.ID})
	job := decodeJob(t, created)

	rec := env.do(t, http.MethodDelete, "/api/v1/ingestion/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingest.StatusCancelled, decodeJob(t, rec).Status)

	// Terminal jobs cannot be cancelled again.
	rec = env.do(t, http.MethodDelete, "/api/v1/ingestion/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRequiredFields(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})

	rec := env.do(t, http.MethodPost, "/api/v1/ingestion/webhook/status-update",
		map[string]string{"status": "processing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/ingestion/webhook/status-update",
		map[string]string{"job_id": "job-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookSecretEnforcedInRemoteMode(t *testing.T) {
	env := newTestEnv(t, Config{WebhookSecret: "s3cret"})
	doc := env.createDocument(t, "dev-user")
	created := env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": doc.ID})
	job := decodeJob(t, created)

	rec := env.do(t, http.MethodPost, "/api/v1/ingestion/webhook/status-update", map[string]any{
		"job_id": job.ID, "status": "completed", "api_key": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/ingestion/webhook/status-update", map[string]any{
		"job_id": job.ID, "status": "completed", "api_key": "s3cret",
		"progress": map[string]any{"step": "completed", "percentage": 100},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeJob(t, rec)
	assert.Equal(t, ingest.StatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
}

func TestWebhookSkipsSecretInSimulatedMode(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})
	doc := env.createDocument(t, "dev-user")
	created := env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": doc.ID})
	job := decodeJob(t, created)

	rec := env.do(t, http.MethodPost, "/api/v1/ingestion/webhook/status-update", map[string]any{
		"job_id": job.ID, "status": "failed", "error_message": "ocr crashed",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingest.StatusFailed, decodeJob(t, rec).Status)
}

func TestWebhookErrorMapping(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})

	// Invalid status is the caller's fault.
	rec := env.do(t, http.MethodPost, "/api/v1/ingestion/webhook/status-update", map[string]any{
		"job_id": "job-1", "status": "exploded",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Everything else, including an unknown job, is reported generically.
	rec = env.do(t, http.MethodPost, "/api/v1/ingestion/webhook/status-update", map[string]any{
		"job_id": "no-such-job", "status": "completed",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "status update failed", body["error"])
}

func TestRetryEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})
	doc := env.createDocument(t, "dev-user")
	created := env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": doc.ID})
	job := decodeJob(t, created)

	// Retry before failure is rejected.
	rec := env.do(t, http.MethodPost, "/api/v1/ingestion/jobs/"+job.ID+"/retry", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.do(t, http.MethodPost, "/api/v1/ingestion/webhook/status-update", map[string]any{
		"job_id": job.ID, "status": "failed", "error_message": "boom",
	})

	rec = env.do(t, http.MethodPost, "/api/v1/ingestion/jobs/"+job.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	retried := decodeJob(t, rec)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, ingest.StatusProcessing, retried.Status)
}

func TestListEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})
	for i := 0; i < 3; i++ {
		doc := env.createDocument(t, "dev-user")
		env.do(t, http.MethodPost, "/api/v1/ingestion/trigger", map[string]string{"document_id": doc.ID})
	}

	rec := env.do(t, http.MethodGet, "/api/v1/ingestion/jobs?page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page ingest.JobPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Jobs, 2)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	rec = env.do(t, http.MethodGet, "/api/v1/ingestion/jobs/all?status=processing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 3, page.Pagination.Total)

	rec = env.do(t, http.MethodGet, "/api/v1/ingestion/jobs/all?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})

	rec := env.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentEndpoints(t *testing.T) {
	env := newTestEnv(t, Config{SimulatedMode: true})
	doc := env.createDocument(t, "dev-user")

	rec := env.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Documents  []document.Document `json:"documents"`
		Pagination ingest.Pagination   `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Documents, 1)

	rec = env.do(t, http.MethodGet, "/api/v1/documents/not-there", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
