package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
	"github.com/parallon-labs/distjob-scheduler/internal/metrics"
)

// ScanRequest is one reason to run a claim session: an initial kick at
// startup, a rearm after an idle session found nothing, or a targeted
// request naming a specific job that just became due.
type ScanRequest struct {
	Kind      string // "initial", "rearm", "targeted"
	JobID     string // only set for "targeted"
	NotBefore time.Time
}

const (
	KindInitial  = "initial"
	KindRearm    = "rearm"
	KindTargeted = "targeted"
)

// Scanner owns the ScanRequest channel and a pool of consumers, each
// running claim sessions drawn from it.
type Scanner struct {
	engine      *Engine
	requests    chan ScanRequest
	concurrency int
	idleTime    time.Duration
	logger      *slog.Logger
}

// NewScanner creates a Scanner with the given consumer concurrency, request
// channel depth, and idle-rearm delay: how long a consumer waits before
// re-arming itself after a session finds no candidate at all, so an empty
// collection does not spin a tight loop.
func NewScanner(engine *Engine, concurrency, queueDepth int, idleTime time.Duration, logger *slog.Logger) *Scanner {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueDepth < 1 {
		queueDepth = concurrency
	}
	if idleTime <= 0 {
		idleTime = 5 * time.Second
	}
	return &Scanner{
		engine:      engine,
		requests:    make(chan ScanRequest, queueDepth),
		concurrency: concurrency,
		idleTime:    idleTime,
		logger:      logger,
	}
}

// Run starts concurrency consumers and blocks until ctx is canceled. Each
// consumer pulls one ScanRequest, runs a session, and if that session
// found a candidate (claimed or not), immediately re-enqueues its own
// rearm so the node keeps draining backlog without waiting on the next
// external trigger. An empty session rearms after idleTime.
func (s *Scanner) Run(ctx context.Context) {
	done := make(chan struct{}, s.concurrency)
	for i := 0; i < s.concurrency; i++ {
		go func() {
			s.consume(ctx)
			done <- struct{}{}
		}()
	}
	for i := 0; i < s.concurrency; i++ {
		<-done
	}
}

func (s *Scanner) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			s.handle(ctx, req)
		}
	}
}

func (s *Scanner) handle(ctx context.Context, req ScanRequest) {
	if !req.NotBefore.IsZero() {
		if d := time.Until(req.NotBefore); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return
			}
		}
	}

	metrics.ScanRequestsTotal.WithLabelValues(req.Kind).Inc()
	start := time.Now()
	found, err := s.engine.RunSession(ctx, req.JobID)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, domain.ErrJobNotFound) {
			s.logger.ErrorContext(ctx, "claim session failed", "kind", req.Kind, "error", err)
		}
		s.rearmAfter(s.idleTime)
		return
	}

	if found {
		// A candidate existed; there may be more backlog behind it.
		s.Enqueue(ScanRequest{Kind: KindRearm})
		return
	}
	s.rearmAfter(s.idleTime)
}

func (s *Scanner) rearmAfter(d time.Duration) {
	go func() {
		time.Sleep(d)
		s.Enqueue(ScanRequest{Kind: KindRearm})
	}()
}

// Enqueue submits a scan request without blocking the caller. If the
// channel is full (the node is already saturated with pending work) the
// request is dropped; the next rearm after any in-flight session will
// cover the same ground.
func (s *Scanner) Enqueue(req ScanRequest) {
	select {
	case s.requests <- req:
	default:
	}
}

// Kick enqueues a targeted scan request for a single job id, used when
// Schedule wants an already-due job picked up without waiting for the next
// idle rearm.
func (s *Scanner) Kick(jobID string, notBefore time.Time) {
	s.Enqueue(ScanRequest{Kind: KindTargeted, JobID: jobID, NotBefore: notBefore})
}
