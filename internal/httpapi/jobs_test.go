package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/registry/internal/queue"
)

func newTestServer() (*Server, *queue.MemoryStore) {
	store := queue.NewMemoryStore(3)
	server := &Server{
		store:  store,
		logger: zerolog.Nop(),
	}
	return server, store
}

func postJSON(t *testing.T, handler echo.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestHandleCreateJob(t *testing.T) {
	t.Parallel()

	server, store := newTestServer()

	rec := postJSON(t, server.handleCreateJob, "/api/v1/jobs",
		`{"step_name": "entity_resolution", "target_type": "corpus", "params": {"dry_run": true}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status string  `json:"status"`
		Data   jobItem `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("expected success envelope, got %q", resp.Status)
	}
	if resp.Data.Status != string(queue.StatusQueued) {
		t.Fatalf("expected queued job, got %s", resp.Data.Status)
	}
	if resp.Data.RunID == "" {
		t.Fatal("expected a generated run id")
	}

	stored, err := store.Get(context.Background(), resp.Data.JobID)
	if err != nil {
		t.Fatalf("stored job missing: %v", err)
	}
	if stored.StepName != queue.StepEntityResolution {
		t.Fatalf("unexpected step: %s", stored.StepName)
	}
}

func TestHandleCreateJob_RejectsUnknownStep(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer()
	rec := postJSON(t, server.handleCreateJob, "/api/v1/jobs",
		`{"step_name": "mystery", "target_type": "corpus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleCreateJob_RejectsBadParams(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer()
	rec := postJSON(t, server.handleCreateJob, "/api/v1/jobs",
		`{"step_name": "entity_resolution", "target_type": "corpus", "params": {"similarity_threshold": 2}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleCancelJob(t *testing.T) {
	t.Parallel()

	server, store := newTestServer()

	created, err := store.Create(context.Background(), queue.NewJob{StepName: queue.StepMentionBackfill, TargetType: "corpus"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/1/cancel", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("job_id")
	c.SetParamValues("1")

	if err := server.handleCancelJob(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	job, err := store.Get(context.Background(), created.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", job.Status)
	}
}

func TestHandleListJobs_FiltersByStatus(t *testing.T) {
	t.Parallel()

	server, store := newTestServer()

	if _, err := store.Create(context.Background(), queue.NewJob{StepName: queue.StepEntityResolution, TargetType: "corpus"}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	cancelled, err := store.Create(context.Background(), queue.NewJob{StepName: queue.StepMentionBackfill, TargetType: "corpus"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := store.Cancel(context.Background(), cancelled.JobID); err != nil {
		t.Fatalf("cancel job: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=queued", nil)
	rec := httptest.NewRecorder()
	if err := server.handleListJobs(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Items []jobItem `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.Items) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(resp.Data.Items))
	}
	if resp.Data.Items[0].Status != string(queue.StatusQueued) {
		t.Fatalf("unexpected status: %s", resp.Data.Items[0].Status)
	}
}
