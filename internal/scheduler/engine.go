// Package scheduler implements the Claim Engine and Scan Scheduler: the
// worker-side loop that turns one scan event into zero or more claimed,
// executed, and rescheduled jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
	"github.com/parallon-labs/distjob-scheduler/internal/metrics"
	"github.com/parallon-labs/distjob-scheduler/internal/notify"
	"github.com/parallon-labs/distjob-scheduler/internal/registry"
	"github.com/parallon-labs/distjob-scheduler/internal/schedcalc"
	"github.com/parallon-labs/distjob-scheduler/internal/store"
	"github.com/parallon-labs/distjob-scheduler/internal/workerid"
)

// Engine runs one worker identity's claim sessions against a Store and a
// Registry. It holds no state of its own across sessions beyond its id.
type Engine struct {
	id       string
	store    store.Store
	registry *registry.Registry
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine returns an Engine with a freshly generated worker id. notifier
// may be nil, in which case job-removal-after-failure is only logged.
func NewEngine(st store.Store, reg *registry.Registry, notifier notify.Notifier, logger *slog.Logger) *Engine {
	id := workerid.New()
	return &Engine{
		id:       id,
		store:    st,
		registry: reg,
		notifier: notifier,
		logger:   logger.With("worker_id", id),
		now:      time.Now,
	}
}

// ID returns this engine's worker identity.
func (e *Engine) ID() string { return e.id }

// RunSession executes one full A-E session: it looks for a single
// candidate (optionally restricted to onlyID by a targeted scan), claims
// it, invokes its handler, reschedules or removes it, and releases the
// permit. It returns true if a candidate was found (claimed or not),
// which the Scan Scheduler uses to decide whether to keep scanning without
// idling.
func (e *Engine) RunSession(ctx context.Context, onlyID string) (found bool, err error) {
	now := e.now().UTC()
	types := e.registry.Types()
	if len(types) == 0 {
		return false, nil
	}

	// Step A: candidate selection. Idle candidates (permits != 0) take
	// priority over expired-lease reclaims, mirroring the order a fresh
	// job would naturally be picked up in before any lease ever lapses.
	rec, err := e.store.FindIdleCandidate(ctx, types, now, onlyID, e.id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		clauses := e.expiredClauses(now)
		rec, err = e.store.FindExpiredCandidate(ctx, clauses, now, onlyID, e.id)
		if err != nil {
			return false, err
		}
		if rec != nil {
			metrics.ExpiredReclaimsTotal.Inc()
		}
	}
	if rec == nil {
		if onlyID != "" {
			return false, domain.ErrJobNotFound
		}
		return false, nil
	}

	won, err := e.claim(ctx, rec, now)
	if err != nil {
		return true, err
	}
	if !won {
		metrics.ClaimsTotal.WithLabelValues("lost").Inc()
		return true, nil
	}
	metrics.ClaimsTotal.WithLabelValues("won").Inc()

	e.execute(ctx, rec, now)
	return true, nil
}

// expiredClauses builds one OR-branch per registered type: a worker id at
// or before typeName's lock duration ago counts as an expired lease.
func (e *Engine) expiredClauses(now time.Time) []store.ExpiredClause {
	types := e.registry.Types()
	clauses := make([]store.ExpiredClause, 0, len(types))
	for _, t := range types {
		threshold := now.Add(-e.registry.LockDuration(t))
		clauses = append(clauses, store.ExpiredClause{
			Type:      t,
			Threshold: workerid.EncodeExpiredThreshold(threshold),
		})
	}
	return clauses
}

// claim performs Step B: prune any workers whose lease has lapsed for this
// job's type, append this worker's id, and attempt the conditional update
// guarded by the exact prior permits/workers pair.
func (e *Engine) claim(ctx context.Context, rec *domain.Record, now time.Time) (bool, error) {
	threshold := workerid.EncodeExpiredThreshold(now.Add(-e.registry.LockDuration(rec.Job.Type)))

	prevWorkers := rec.Workers
	pruned := make([]string, 0, len(prevWorkers))
	for _, w := range prevWorkers {
		if w > threshold {
			pruned = append(pruned, w)
		}
	}
	newWorkers := append(pruned, e.id)

	newPermits := rec.Permits
	if !rec.Unlimited() {
		newPermits = rec.Permits + (len(prevWorkers) - len(pruned)) - 1
	}

	return e.store.Claim(ctx, rec.ID, rec.Permits, prevWorkers, newPermits, newWorkers)
}

// execute runs Step C, then Steps D and E unconditionally, even when the
// handler errors: a failed run still consumes its scheduled slot and must
// still release its permit.
func (e *Engine) execute(ctx context.Context, rec *domain.Record, now time.Time) {
	metrics.PermitsInFlight.Inc()
	defer metrics.PermitsInFlight.Dec()

	start := time.Now()
	handlerErr := e.registry.Invoke(ctx, *rec, e.id)
	duration := time.Since(start)

	outcome := "ok"
	if handlerErr != nil {
		outcome = "error"
		e.logger.ErrorContext(ctx, "handler failed",
			"job_id", rec.Job.ID, "job_type", rec.Job.Type, "error", handlerErr)
	}
	metrics.HandlerDuration.WithLabelValues(rec.Job.Type, outcome).Observe(duration.Seconds())

	e.reschedule(ctx, rec, now, handlerErr)
	if err := e.store.Release(ctx, rec.ID, rec.Job.Type, e.id, rec.Unlimited()); err != nil {
		e.logger.ErrorContext(ctx, "release failed",
			"job_id", rec.Job.ID, "job_type", rec.Job.Type, "error", err)
	}
}

// reschedule performs Step D: compute the next due instant and persist it,
// or remove the record if there is no next run. handlerErr is the error (if
// any) Step C just returned; when a job is removed on the back of a failed
// final run, the notifier fires.
func (e *Engine) reschedule(ctx context.Context, rec *domain.Record, now time.Time, handlerErr error) {
	due, newSchedule, err := schedcalc.Next(rec.Job.Schedule, now, true)
	if err != nil {
		e.logger.ErrorContext(ctx, "schedule computation failed",
			"job_id", rec.Job.ID, "job_type", rec.Job.Type, "error", err)
		return
	}

	if due == nil {
		if err := e.store.Remove(ctx, rec.ID, rec.Job.Type); err != nil {
			e.logger.ErrorContext(ctx, "remove after final run failed",
				"job_id", rec.Job.ID, "job_type", rec.Job.Type, "error", err)
			return
		}
		metrics.RescheduleTotal.WithLabelValues("removed").Inc()
		if handlerErr != nil && e.notifier != nil {
			if err := e.notifier.JobFailed(ctx, rec.Job.Type, rec.Job.ID, handlerErr); err != nil {
				e.logger.ErrorContext(ctx, "failure notification failed",
					"job_id", rec.Job.ID, "job_type", rec.Job.Type, "error", err)
			}
		}
		return
	}

	ok, err := e.store.Reschedule(ctx, rec.ID, rec.Job.Type, *due, newSchedule, now)
	if err != nil {
		e.logger.ErrorContext(ctx, "reschedule failed",
			"job_id", rec.Job.ID, "job_type", rec.Job.Type, "error", err)
		return
	}
	if !ok {
		// A concurrent session already advanced due past *due; this
		// session's reschedule is stale and must not regress it.
		metrics.RescheduleTotal.WithLabelValues("stale").Inc()
		return
	}
	metrics.RescheduleTotal.WithLabelValues("rescheduled").Inc()
}
