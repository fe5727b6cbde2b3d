package job

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medvertical/records-sub011/internal/fhir"
)

func newTestServer(t *testing.T, src *fakeSource) (*echo.Echo, *Manager) {
	t.Helper()
	m := newTestManager(src, nil, Options{ServerID: 1})
	e := echo.New()
	NewHandler(m, zerolog.Nop()).RegisterRoutes(e.Group("/api/v1"))
	return e, m
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_StartAccepted(t *testing.T) {
	src := &fakeSource{data: map[string][]fhir.Resource{"Patient": makePatients(30)}, delay: 10 * time.Millisecond}
	e, m := newTestServer(t, src)
	defer m.Stop(context.Background())

	rec := doJSON(e, http.MethodPost, "/api/v1/validation/jobs/start",
		`{"resourceTypes":["Patient"],"config":{"batchSize":5}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var res StartResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.JobID == "" || res.Status != StatusRunning {
		t.Errorf("unexpected body: %+v", res)
	}

	// Duplicate start reports the existing job with 200.
	rec = doJSON(e, http.MethodPost, "/api/v1/validation/jobs/start", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate start status = %d, want 200", rec.Code)
	}
	var dup StartResult
	json.Unmarshal(rec.Body.Bytes(), &dup)
	if dup.JobID != res.JobID {
		t.Errorf("duplicate start returned %s, want %s", dup.JobID, res.JobID)
	}
}

func TestHandler_StartInvalidPayload(t *testing.T) {
	e, _ := newTestServer(t, &fakeSource{data: map[string][]fhir.Resource{}})

	rec := doJSON(e, http.MethodPost, "/api/v1/validation/jobs/start",
		`{"resourceTypes":[""],"validationAspects":{"bogus":true},"config":{"batchSize":-2}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "INVALID_PAYLOAD" {
		t.Errorf("error code = %s, want INVALID_PAYLOAD", env.Error.Code)
	}
	if len(env.Error.Fields) != 3 {
		t.Errorf("expected 3 field errors, got %v", env.Error.Fields)
	}
}

func TestHandler_PauseWithoutJob(t *testing.T) {
	e, _ := newTestServer(t, &fakeSource{data: map[string][]fhir.Resource{}})

	rec := doJSON(e, http.MethodPost, "/api/v1/validation/jobs/pause", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var env errorEnvelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.Code != "NO_ACTIVE_JOB" {
		t.Errorf("error code = %s, want NO_ACTIVE_JOB", env.Error.Code)
	}
}

func TestHandler_PauseResumeStopFlow(t *testing.T) {
	src := &fakeSource{data: map[string][]fhir.Resource{"Patient": makePatients(40)}, delay: 10 * time.Millisecond}
	e, _ := newTestServer(t, src)

	if rec := doJSON(e, http.MethodPost, "/api/v1/validation/jobs/start", `{"resourceTypes":["Patient"],"config":{"batchSize":2}}`); rec.Code != http.StatusAccepted {
		t.Fatalf("start: %d", rec.Code)
	}

	rec := doJSON(e, http.MethodPost, "/api/v1/validation/jobs/pause", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("pause status = %d, want 202", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"paused"`) {
		t.Errorf("pause body = %s", rec.Body.String())
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/validation/jobs/resume", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("resume status = %d, want 202", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/validation/jobs/stop", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("stop status = %d, want 202", rec.Code)
	}
	var stop StopResult
	if err := json.Unmarshal(rec.Body.Bytes(), &stop); err != nil {
		t.Fatalf("decode stop: %v", err)
	}
	if stop.Status != StatusStopped || stop.FinalStats == nil {
		t.Errorf("stop body = %+v", stop)
	}

	// Stopping again is idempotent and reports idle with 200.
	rec = doJSON(e, http.MethodPost, "/api/v1/validation/jobs/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second stop status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"idle"`) {
		t.Errorf("second stop body = %s", rec.Body.String())
	}
}

func TestHandler_Progress(t *testing.T) {
	e, _ := newTestServer(t, &fakeSource{data: map[string][]fhir.Resource{}})

	rec := doJSON(e, http.MethodGet, "/api/v1/validation/jobs/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap ProgressSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != StatusIdle {
		t.Errorf("status = %s, want idle", snap.Status)
	}
}

func TestHandler_RestoreActiveNotFound(t *testing.T) {
	e, _ := newTestServer(t, &fakeSource{data: map[string][]fhir.Resource{}})

	rec := doJSON(e, http.MethodGet, "/api/v1/validation/jobs/restore-active", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
