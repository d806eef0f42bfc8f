package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parallon-labs/distjob-scheduler/internal/registry"
	"github.com/parallon-labs/distjob-scheduler/internal/scheduler"
	"github.com/parallon-labs/distjob-scheduler/internal/store/memstore"
	"github.com/parallon-labs/distjob-scheduler/internal/transport/http/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	st := memstore.New()
	reg := registry.New(time.Minute, 5, 1, nil)
	reg.Define("noop", registry.Options{}, func(context.Context, registry.Invocation) error { return nil })
	sched := scheduler.New(reg, st, nil, scheduler.Config{Concurrency: 1, QueueDepth: 1}, testLogger())

	h := handler.NewJobHandler(sched, testLogger())
	r := gin.New()
	jobs := r.Group("/jobs")
	jobs.POST("", h.Schedule)
	jobs.GET("/:id", h.GetByID)
	jobs.DELETE("/:id", h.Delete)
	return r
}

func TestSchedule_ValidBody_Returns201(t *testing.T) {
	r := newEngine(t)
	body := `{"id":"ext-1","type":"noop"}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("expected a non-empty job id")
	}
}

func TestSchedule_MissingRequiredField_Returns400(t *testing.T) {
	r := newEngine(t)
	body := `{"type":"noop"}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestGetByID_Found_Returns200(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	postReq := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"id":"ext-2","type":"noop"}`))
	postReq.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, postReq)

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	w2 := httptest.NewRecorder()
	getReq := httptest.NewRequest(http.MethodGet, "/jobs/"+created.ID, nil)
	r.ServeHTTP(w2, getReq)

	if w2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w2.Code, w2.Body.String())
	}
}

func TestGetByID_NotFound_Returns404(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDelete_RemovesJob(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	postReq := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"id":"ext-3","type":"noop"}`))
	postReq.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, postReq)

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	w2 := httptest.NewRecorder()
	delReq := httptest.NewRequest(http.MethodDelete, "/jobs/"+created.ID+"?type=noop", nil)
	r.ServeHTTP(w2, delReq)
	if w2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w2.Code, w2.Body.String())
	}

	w3 := httptest.NewRecorder()
	getReq := httptest.NewRequest(http.MethodGet, "/jobs/"+created.ID, nil)
	r.ServeHTTP(w3, getReq)
	if w3.Code != http.StatusNotFound {
		t.Fatalf("expected job removed, status = %d", w3.Code)
	}
}

func TestDelete_NotFound_Returns404(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/jobs/missing?type=noop", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
