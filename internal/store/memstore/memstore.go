// Package memstore is an in-memory store.Store used to unit test the
// Claim Engine and Schedule Calculator without a real document store. It
// reproduces the exact predicate semantics the Persistence Contract
// requires: array-order equality for claims, lexical threshold comparison
// for expiry, and priority-then-id ordering for candidate selection.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
	"github.com/parallon-labs/distjob-scheduler/internal/store"
)

type Store struct {
	mu      sync.Mutex
	records map[string]*domain.Record
	byTypeID map[string]string // "type\x00id" -> record id
}

func New() *Store {
	return &Store{
		records:  make(map[string]*domain.Record),
		byTypeID: make(map[string]string),
	}
}

func (s *Store) EnsureIndexes(context.Context) error { return nil }

func (s *Store) Insert(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return domain.ErrDuplicateJob
	}
	key := typeIDKey(rec.Job.Type, rec.Job.ID)
	if _, ok := s.byTypeID[key]; ok {
		return domain.ErrDuplicateJob
	}

	cp := *rec
	cp.Workers = slices.Clone(rec.Workers)
	s.records[rec.ID] = &cp
	s.byTypeID[key] = rec.ID
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) Delete(_ context.Context, sel store.Selector) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sel.ID == "" && sel.Type == "" {
		return 0, domain.ErrInvalidArguments
	}

	var n int64
	for id, rec := range s.records {
		if sel.ID != "" && rec.ID != sel.ID {
			continue
		}
		if sel.Type != "" && rec.Job.Type != sel.Type {
			continue
		}
		delete(s.records, id)
		delete(s.byTypeID, typeIDKey(rec.Job.Type, rec.Job.ID))
		n++
	}
	return n, nil
}

func (s *Store) FindIdleCandidate(_ context.Context, types []string, now time.Time, onlyID, excludeWorker string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	typeSet := toSet(types)
	var candidates []*domain.Record
	for _, rec := range s.records {
		if onlyID != "" && rec.ID != onlyID {
			continue
		}
		if !typeSet[rec.Job.Type] {
			continue
		}
		if rec.Due == nil || rec.Due.After(now) {
			continue
		}
		if rec.Permits == 0 {
			continue
		}
		if rec.HasWorker(excludeWorker) {
			continue
		}
		candidates = append(candidates, rec)
	}
	return firstByPriority(candidates), nil
}

func (s *Store) FindExpiredCandidate(_ context.Context, clauses []store.ExpiredClause, now time.Time, onlyID, excludeWorker string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thresholds := make(map[string]string, len(clauses))
	for _, c := range clauses {
		thresholds[c.Type] = c.Threshold
	}

	var candidates []*domain.Record
	for _, rec := range s.records {
		if onlyID != "" && rec.ID != onlyID {
			continue
		}
		threshold, ok := thresholds[rec.Job.Type]
		if !ok {
			continue
		}
		if rec.Due == nil || rec.Due.After(now) {
			continue
		}
		if rec.HasWorker(excludeWorker) {
			continue
		}
		hasExpired := false
		for _, w := range rec.Workers {
			if w <= threshold {
				hasExpired = true
				break
			}
		}
		if !hasExpired {
			continue
		}
		candidates = append(candidates, rec)
	}
	return firstByPriority(candidates), nil
}

func (s *Store) Claim(_ context.Context, id string, prevPermits int, prevWorkers []string, newPermits int, newWorkers []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	if rec.Permits != prevPermits || !slices.Equal(rec.Workers, prevWorkers) {
		return false, nil
	}

	rec.Permits = newPermits
	rec.Workers = slices.Clone(newWorkers)
	rec.Meta.Updated = time.Now().UTC()
	return true, nil
}

func (s *Store) Reschedule(_ context.Context, id, jobType string, dueNew time.Time, newSchedule string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Job.Type != jobType {
		return false, nil
	}
	if rec.Due != nil && rec.Due.After(dueNew) {
		return false, nil
	}

	rec.Job.Schedule = newSchedule
	d := dueNew
	rec.Due = &d
	c := now
	rec.Completed = &c
	rec.Meta.Updated = time.Now().UTC()
	return true, nil
}

func (s *Store) Remove(_ context.Context, id, jobType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Job.Type != jobType {
		return nil
	}
	delete(s.records, id)
	delete(s.byTypeID, typeIDKey(rec.Job.Type, rec.Job.ID))
	return nil
}

func (s *Store) Release(_ context.Context, id, jobType, workerID string, unlimited bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Job.Type != jobType {
		return nil
	}
	if !rec.HasWorker(workerID) {
		return nil
	}

	rec.Workers = slices.DeleteFunc(slices.Clone(rec.Workers), func(w string) bool { return w == workerID })
	if !unlimited {
		rec.Permits++
	}
	rec.Meta.Updated = time.Now().UTC()
	return nil
}

// Snapshot returns a deep copy of id's record, for test assertions.
func (s *Store) Snapshot(id string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("memstore: no record %q", id)
	}
	return cloneRecord(rec), nil
}

func typeIDKey(jobType, jobID string) string {
	return jobType + "\x00" + jobID
}

func toSet(vs []string) map[string]bool {
	m := make(map[string]bool, len(vs))
	for _, v := range vs {
		m[v] = true
	}
	return m
}

func firstByPriority(candidates []*domain.Record) *domain.Record {
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Job.Priority != candidates[j].Job.Priority {
			return candidates[i].Job.Priority < candidates[j].Job.Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	return cloneRecord(candidates[0])
}

func cloneRecord(rec *domain.Record) *domain.Record {
	cp := *rec
	cp.Workers = slices.Clone(rec.Workers)
	return &cp
}
