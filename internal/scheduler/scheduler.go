package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
	"github.com/parallon-labs/distjob-scheduler/internal/idgen"
	"github.com/parallon-labs/distjob-scheduler/internal/notify"
	"github.com/parallon-labs/distjob-scheduler/internal/registry"
	"github.com/parallon-labs/distjob-scheduler/internal/schedcalc"
	"github.com/parallon-labs/distjob-scheduler/internal/store"
)

// Scheduler is the public entry point for defining job types and
// scheduling, unscheduling, and inspecting jobs. It wires together the
// Type Registry, the Persistence Contract, and one node's Claim Engine and
// Scan Scheduler.
type Scheduler struct {
	registry *registry.Registry
	store    store.Store
	engine   *Engine
	scanner  *Scanner
	idgen    idgen.Generator
	cfg      Config
	logger   *slog.Logger
}

// Config bundles the tunables a node's Claim Engine and Scan Scheduler
// need beyond the registry and store.
type Config struct {
	Concurrency int
	QueueDepth  int
	IdleTime    time.Duration
}

// New wires a Scheduler from a registry and store. Call Define on the
// returned Scheduler's Registry (or Define before calling New) for every
// job type this node can execute, then Start. notifier may be nil.
func New(reg *registry.Registry, st store.Store, notifier notify.Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	engine := NewEngine(st, reg, notifier, logger)
	scanner := NewScanner(engine, cfg.Concurrency, cfg.QueueDepth, cfg.IdleTime, logger)
	return &Scheduler{
		registry: reg,
		store:    st,
		engine:   engine,
		scanner:  scanner,
		idgen:    idgen.UUID(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Registry exposes the underlying Type Registry so callers can Define
// types before Start.
func (s *Scheduler) Registry() *registry.Registry { return s.registry }

// WorkerID returns this node's claim-session identity.
func (s *Scheduler) WorkerID() string { return s.engine.ID() }

// Start runs the Scan Scheduler's consumer pool until ctx is canceled, and
// seeds an initial burst of scans equal to the configured concurrency so a
// node with existing due work does not wait for an external trigger and
// every consumer in the pool has a scan to start on.
func (s *Scheduler) Start(ctx context.Context) {
	concurrency := s.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		s.scanner.Enqueue(ScanRequest{Kind: KindInitial})
	}
	s.scanner.Run(ctx)
}

// GenerateJobID derives the stable primary-key hash of an external id: the
// same external id always hashes to the same _id, making Schedule
// idempotent under retries.
func GenerateJobID(externalID string) string {
	return idgen.HashID(externalID)
}

// ScheduleInput describes a job to create. ExternalID may be left
// empty, in which case the Scheduler's id generator mints one.
type ScheduleInput struct {
	ExternalID  string
	Type        string
	Schedule    string
	Priority    *int
	Concurrency *int
	Data        map[string]any
	// Immediate requests a targeted scan event for this job the moment it
	// is scheduled, if its computed due instant is already <= now. It has
	// no effect on a job whose due instant is in the future.
	Immediate bool
}

// Schedule creates a new job record, or - if a record with the same
// (type, externalID) already exists - leaves it untouched and returns its
// existing id. Priority, Concurrency, and Data fall back to the type's
// registered defaults, then the registry's global defaults.
func (s *Scheduler) Schedule(ctx context.Context, in ScheduleInput) (string, error) {
	if in.Type == "" {
		return "", domain.ErrInvalidJob
	}
	externalID := in.ExternalID
	if externalID == "" {
		externalID = s.idgen.New()
	}

	defPriority, defConcurrency, defData := s.registry.Defaults(in.Type)
	priority, concurrency := defPriority, defConcurrency
	if in.Priority != nil {
		priority = *in.Priority
	}
	if in.Concurrency != nil {
		concurrency = *in.Concurrency
	}

	data := make(map[string]any, len(defData)+len(in.Data))
	for k, v := range defData {
		data[k] = v
	}
	for k, v := range in.Data {
		data[k] = v
	}
	raw, err := bson.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("scheduler: marshal job data: %w", err)
	}

	id := GenerateJobID(externalID)
	now := time.Now().UTC()

	due, storedSchedule, err := schedcalc.Next(in.Schedule, now, false)
	if err != nil {
		return "", err
	}

	rec := &domain.Record{
		ID: id,
		Job: domain.Fields{
			ID:          externalID,
			Type:        in.Type,
			Schedule:    storedSchedule,
			Priority:    priority,
			Concurrency: concurrency,
			Data:        bson.Raw(raw),
		},
		Due:     due,
		Permits: concurrency,
		Workers: []string{},
		Meta:    domain.Meta{Created: now, Updated: now},
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateJob) {
			return id, nil
		}
		return "", err
	}

	if in.Immediate && due != nil && !due.After(now) {
		s.scanner.Kick(id, *due)
	}
	return id, nil
}

// Unschedule removes every job matching sel.
func (s *Scheduler) Unschedule(ctx context.Context, sel store.Selector) (int64, error) {
	return s.store.Delete(ctx, sel)
}

// GetJob returns the job record with the given hashed id.
func (s *Scheduler) GetJob(ctx context.Context, id string) (*domain.Record, error) {
	return s.store.Get(ctx, id)
}
