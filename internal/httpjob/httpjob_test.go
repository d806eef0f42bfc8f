package httpjob_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/parallon-labs/distjob-scheduler/internal/httpjob"
	"github.com/parallon-labs/distjob-scheduler/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func invocationFor(t *testing.T, payload httpjob.Payload) registry.Invocation {
	t.Helper()
	raw, err := bson.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return registry.Invocation{ID: "job-1", Type: httpjob.TypeName, Data: raw, WorkerID: "worker-1"}
}

func TestHandle_SuccessfulGET(t *testing.T) {
	var gotMethod, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := httpjob.New(testLogger())
	job := invocationFor(t, httpjob.Payload{URL: srv.URL, Method: http.MethodGet})

	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Fatalf("expected GET, got %s", gotMethod)
	}
	if gotHeader == "" {
		t.Fatal("expected a request id header to be set")
	}
}

func TestHandle_MissingURL_ReturnsError(t *testing.T) {
	h := httpjob.New(testLogger())
	job := invocationFor(t, httpjob.Payload{Method: http.MethodGet})

	if err := h.Handle(context.Background(), job); err == nil {
		t.Fatal("expected an error for a payload with no url")
	}
}

func TestHandle_DefaultsToPOST(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := httpjob.New(testLogger())
	job := invocationFor(t, httpjob.Payload{URL: srv.URL})

	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected default method POST, got %s", gotMethod)
	}
}

func TestHandle_ServerErrorStatus_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := httpjob.New(testLogger())
	job := invocationFor(t, httpjob.Payload{URL: srv.URL, Method: http.MethodGet})

	if err := h.Handle(context.Background(), job); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestHandle_CustomHeadersAndBody(t *testing.T) {
	var gotHeader string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Custom")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := httpjob.New(testLogger())
	job := invocationFor(t, httpjob.Payload{
		URL:     srv.URL,
		Method:  http.MethodPost,
		Headers: map[string]string{"X-Custom": "value"},
		Body:    "hello",
	})

	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotHeader != "value" {
		t.Fatalf("expected custom header to be forwarded, got %q", gotHeader)
	}
	if string(gotBody) != "hello" {
		t.Fatalf("expected body to be forwarded, got %q", gotBody)
	}
}
