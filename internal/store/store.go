// Package store defines the Persistence Contract: the abstract interface
// between the Claim Engine and the document store. It requires conditional,
// single-document updates whose predicate includes the full prior value of
// permits and workers, atomic insert with duplicate detection, and the
// index set needed to serve Step A candidate queries.
package store

import (
	"context"
	"time"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
)

// ExpiredClause is one OR-branch of the expired-candidate query: a
// registered type paired with the lexical threshold below which a worker
// id in that type's workers array counts as expired.
type ExpiredClause struct {
	Type      string
	Threshold string
}

// Selector identifies records for deletion. At least one field must be
// non-empty.
type Selector struct {
	ID   string
	Type string
}

// Store is the Persistence Contract required by the Claim Engine and the
// Scheduler's public operations. No multi-document transaction is
// required; every mutation is a single-document conditional update.
type Store interface {
	// EnsureIndexes creates the indexes this contract requires. It is
	// idempotent and safe to call on every process start.
	EnsureIndexes(ctx context.Context) error

	// Insert atomically inserts rec. Returns domain.ErrDuplicateJob if a
	// record with the same id (or the same job.type/job.id pair) already
	// exists.
	Insert(ctx context.Context, rec *domain.Record) error

	// Get returns the record with the given hashed id, or
	// domain.ErrJobNotFound.
	Get(ctx context.Context, id string) (*domain.Record, error)

	// Delete removes every record matching sel, returning the count
	// removed.
	Delete(ctx context.Context, sel Selector) (int64, error)

	// FindIdleCandidate implements Step A's idle-candidate query: among
	// types, the highest-priority record with due <= now, permits != 0,
	// and excludeWorker not already present in workers. If onlyID is
	// non-empty the search is restricted to that record.
	FindIdleCandidate(ctx context.Context, types []string, now time.Time, onlyID, excludeWorker string) (*domain.Record, error)

	// FindExpiredCandidate implements Step A's expired-candidate query:
	// among clauses (one per registered type, each with its own expiry
	// threshold), the highest-priority record with due <= now, at least
	// one worker id at or before that type's threshold, and excludeWorker
	// not already present in workers.
	FindExpiredCandidate(ctx context.Context, clauses []ExpiredClause, now time.Time, onlyID, excludeWorker string) (*domain.Record, error)

	// Claim performs Step B's conditional update: it sets workers and
	// permits to newWorkers/newPermits only if the record's current
	// permits and workers still equal prevPermits/prevWorkers exactly
	// (including array order). Returns false, nil if another session won
	// the race.
	Claim(ctx context.Context, id string, prevPermits int, prevWorkers []string, newPermits int, newWorkers []string) (bool, error)

	// Reschedule performs Step D's conditional update: it sets
	// job.schedule, due, completed, and meta.updated, guarded by
	// due <= dueNew so a more recent claim's reschedule is never
	// overwritten. Returns false, nil if the guard did not hold.
	Reschedule(ctx context.Context, id, jobType string, dueNew time.Time, newSchedule string, now time.Time) (bool, error)

	// Remove deletes the record matching id and jobType, used when
	// rescheduling yields "do not reschedule".
	Remove(ctx context.Context, id, jobType string) error

	// Release performs Step E: pulls workerID from workers and, unless
	// unlimited, increments permits by one. A no-op (no error) if
	// workerID is no longer present.
	Release(ctx context.Context, id, jobType, workerID string, unlimited bool) error
}
