// Package httpjob provides the built-in "httpjob" handler type: a direct
// generalization of the teacher repo's webhook executor, now just one of
// possibly many types a node can register through the Type Registry
// instead of the only kind of job there is.
package httpjob

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/parallon-labs/distjob-scheduler/internal/registry"
	"github.com/parallon-labs/distjob-scheduler/internal/requestid"
)

// TypeName is the type string registered by New's caller.
const TypeName = "httpjob"

// Payload is the expected shape of job.data for jobs of type TypeName.
type Payload struct {
	URL            string            `bson:"url"`
	Method         string            `bson:"method"`
	Headers        map[string]string `bson:"headers,omitempty"`
	Body           string            `bson:"body,omitempty"`
	TimeoutSeconds int               `bson:"timeout_seconds,omitempty"`
}

const defaultTimeout = 30 * time.Second

// Handler dispatches an HTTP request per invocation, reusing a single
// tuned client across all calls.
type Handler struct {
	client *http.Client
	logger *slog.Logger
}

func New(logger *slog.Logger) *Handler {
	return &Handler{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With("component", "httpjob"),
	}
}

// Handle implements registry.Handler.
func (h *Handler) Handle(ctx context.Context, job registry.Invocation) error {
	start := time.Now()

	var payload Payload
	if len(job.Data) > 0 {
		if err := bson.Unmarshal(job.Data, &payload); err != nil {
			return fmt.Errorf("httpjob: decode payload: %w", err)
		}
	}
	if payload.URL == "" {
		return fmt.Errorf("httpjob: job %s is missing a url", job.ID)
	}
	if payload.Method == "" {
		payload.Method = http.MethodPost
	}
	timeout := defaultTimeout
	if payload.TimeoutSeconds > 0 {
		timeout = time.Duration(payload.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload.Body != "" {
		body = strings.NewReader(payload.Body)
	}

	req, err := http.NewRequestWithContext(ctx, payload.Method, payload.URL, body)
	if err != nil {
		return fmt.Errorf("httpjob: build request: %w", err)
	}
	for k, v := range payload.Headers {
		req.Header.Set(k, v)
	}

	reqID := requestid.New()
	req.Header.Set("X-Request-ID", reqID)
	ctx = requestid.WithRequestID(ctx, reqID)
	ctx = requestid.WithWorkerID(ctx, job.WorkerID)

	h.logger.InfoContext(ctx, "sending request",
		"job_id", job.ID, "method", payload.Method, "url", payload.URL)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.ErrorContext(ctx, "request failed",
			"job_id", job.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("httpjob: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	duration := time.Since(start)
	h.logger.InfoContext(ctx, "received response",
		"job_id", job.ID, "status", resp.StatusCode, "duration", duration)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("httpjob: %s %s returned status %d", payload.Method, payload.URL, resp.StatusCode)
	}
	return nil
}
