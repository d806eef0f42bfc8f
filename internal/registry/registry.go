// Package registry implements the process-local Type Registry: the
// mapping from job type name to its handler, lock duration, and defaults.
// It never touches the store and is not safe for concurrent Define calls
// racing Claim Engine reads — callers must register every type before the
// first scan event.
package registry

import (
	"context"
	"time"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
)

// Invocation is the payload handed to a Handler: the claimed job plus the
// worker id that now holds the permit.
type Invocation struct {
	ID          string
	Type        string
	Priority    int
	Data        []byte
	WorkerID    string
	ScheduledAt time.Time
}

// Handler executes one claimed job. Its error is logged by the Claim
// Engine but never aborts rescheduling.
type Handler func(ctx context.Context, job Invocation) error

// Options configures a type registration.
type Options struct {
	// LockDuration overrides the registry-wide default for this type. Zero
	// means "use the global default".
	LockDuration time.Duration
	// Priority and Concurrency, if non-nil, seed job.priority /
	// job.concurrency for schedule() calls of this type that omit them,
	// overriding the global defaults.
	Priority    *int
	Concurrency *int
	// Defaults shallow-merges over the registry's global defaults when
	// resolving job.data for schedule() calls that omit fields.
	Defaults map[string]any
}

type entry struct {
	handler      Handler
	lockDuration time.Duration
	priority     *int
	concurrency  *int
	defaults     map[string]any
}

// Registry is the process-local Type Registry.
type Registry struct {
	entries            map[string]entry
	globalLockDuration time.Duration
	globalPriority     int
	globalConcurrency  int
	globalDefaults     map[string]any
}

// New creates a Registry. globalLockDuration, globalPriority, and
// globalConcurrency back any type that does not override them.
func New(globalLockDuration time.Duration, globalPriority, globalConcurrency int, globalDefaults map[string]any) *Registry {
	return &Registry{
		entries:            make(map[string]entry),
		globalLockDuration: globalLockDuration,
		globalPriority:     globalPriority,
		globalConcurrency:  globalConcurrency,
		globalDefaults:     globalDefaults,
	}
}

// Define registers handler for typeName. A later Define for the same type
// wins over any earlier registration.
func (r *Registry) Define(typeName string, opts Options, handler Handler) {
	lockDuration := opts.LockDuration
	if lockDuration <= 0 {
		lockDuration = r.globalLockDuration
	}

	merged := make(map[string]any, len(r.globalDefaults)+len(opts.Defaults))
	for k, v := range r.globalDefaults {
		merged[k] = v
	}
	for k, v := range opts.Defaults {
		merged[k] = v
	}

	r.entries[typeName] = entry{
		handler:      handler,
		lockDuration: lockDuration,
		priority:     opts.Priority,
		concurrency:  opts.Concurrency,
		defaults:     merged,
	}
}

// Registered reports whether typeName has a handler on this node.
func (r *Registry) Registered(typeName string) bool {
	_, ok := r.entries[typeName]
	return ok
}

// Types returns every registered type name. Order is unspecified.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	return out
}

// LockDuration returns the effective lock duration for typeName, falling
// back to the global default if the type is unregistered.
func (r *Registry) LockDuration(typeName string) time.Duration {
	if e, ok := r.entries[typeName]; ok {
		return e.lockDuration
	}
	return r.globalLockDuration
}

// Handler returns the registered handler for typeName, if any.
func (r *Registry) Handler(typeName string) (Handler, bool) {
	e, ok := r.entries[typeName]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Defaults resolves job.priority, job.concurrency, and job.data defaults
// for typeName, layering global defaults under the type's own.
func (r *Registry) Defaults(typeName string) (priority, concurrency int, data map[string]any) {
	priority, concurrency = r.globalPriority, r.globalConcurrency
	data = make(map[string]any, len(r.globalDefaults))
	for k, v := range r.globalDefaults {
		data[k] = v
	}

	e, ok := r.entries[typeName]
	if !ok {
		return priority, concurrency, data
	}
	if e.priority != nil {
		priority = *e.priority
	}
	if e.concurrency != nil {
		concurrency = *e.concurrency
	}
	for k, v := range e.defaults {
		data[k] = v
	}
	return priority, concurrency, data
}

// Invoke runs the handler registered for job.Type, recovering a panic into
// an error so a broken handler never escapes the claim loop.
func (r *Registry) Invoke(ctx context.Context, job domain.Record, workerID string) (err error) {
	handler, ok := r.Handler(job.Job.Type)
	if !ok {
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			err = panicError{value: p}
		}
	}()

	var scheduledAt time.Time
	if job.Due != nil {
		scheduledAt = *job.Due
	}

	return handler(ctx, Invocation{
		ID:          job.Job.ID,
		Type:        job.Job.Type,
		Priority:    job.Job.Priority,
		Data:        []byte(job.Job.Data),
		WorkerID:    workerID,
		ScheduledAt: scheduledAt,
	})
}

type panicError struct{ value any }

func (e panicError) Error() string {
	return "handler panicked: " + formatPanic(e.value)
}

func formatPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic value"
}
