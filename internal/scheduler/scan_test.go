package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
	"github.com/parallon-labs/distjob-scheduler/internal/registry"
	"github.com/parallon-labs/distjob-scheduler/internal/scheduler"
	"github.com/parallon-labs/distjob-scheduler/internal/store/memstore"
)

func TestScanner_DrainsBacklogThenStaysIdle(t *testing.T) {
	st := memstore.New()
	reg := registry.New(time.Minute, 10, 1, nil)

	var invocations int64
	reg.Define("noop", registry.Options{}, func(context.Context, registry.Invocation) error {
		atomic.AddInt64(&invocations, 1)
		return nil
	})

	for i := 0; i < 3; i++ {
		insertOneShot(t, st, string(rune('a'+i)), "noop", time.Now().Add(-time.Second), 1)
	}

	engine := scheduler.NewEngine(st, reg, nil, testLogger())
	scanner := scheduler.NewScanner(engine, 2, 8, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		scanner.Run(ctx)
		close(done)
	}()

	scanner.Enqueue(scheduler.ScanRequest{Kind: scheduler.KindInitial})

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("scanner did not stop after context cancellation")
	}

	if got := atomic.LoadInt64(&invocations); got != 3 {
		t.Fatalf("expected all 3 backlog jobs to run, got %d", got)
	}
}

func TestScanner_Kick_RunsTargetedJobImmediately(t *testing.T) {
	st := memstore.New()
	reg := registry.New(time.Minute, 10, 1, nil)

	done := make(chan struct{}, 1)
	reg.Define("noop", registry.Options{}, func(context.Context, registry.Invocation) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})

	insertOneShot(t, st, "targeted", "noop", time.Now().Add(-time.Second), 1)
	// A second, higher-priority job should not block the targeted scan
	// from finding the one it was asked for.
	rec := &domain.Record{
		ID:      "other",
		Job:     domain.Fields{ID: "other", Type: "noop", Priority: 0, Concurrency: 1},
		Due:     ptrTime(time.Now().Add(-time.Second)),
		Permits: 1,
		Workers: []string{},
	}
	if err := st.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	engine := scheduler.NewEngine(st, reg, nil, testLogger())
	scanner := scheduler.NewScanner(engine, 1, 4, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go scanner.Run(ctx)

	scanner.Kick("targeted", time.Time{})

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("targeted job was not claimed")
	}

	if _, err := st.Snapshot("targeted"); err == nil {
		t.Fatal("expected targeted one-shot job to be removed after its only run")
	}
}
