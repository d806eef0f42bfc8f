// seed inserts a batch of httpjob-type jobs into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/parallon-labs/distjob-scheduler/config"
	"github.com/parallon-labs/distjob-scheduler/internal/httpjob"
	"github.com/parallon-labs/distjob-scheduler/internal/registry"
	"github.com/parallon-labs/distjob-scheduler/internal/scheduler"
	"github.com/parallon-labs/distjob-scheduler/internal/store/mongostore"
)

type jobSpec struct {
	key      string
	url      string
	method   string
	schedule string
}

var jobs = []jobSpec{
	// One-shot, due immediately (an empty schedule runs once, now)
	{"seed-001", "https://httpbin.org/post", "POST", ""},
	{"seed-002", "https://httpbin.org/get", "GET", ""},

	// Repeat 5 and 3 times, every 30 seconds
	{"seed-003", "https://httpbin.org/post", "POST", "R5/PT30S"},
	{"seed-004", "https://httpbin.org/status/500", "POST", "R3/PT30S"},

	// Repeat forever, every minute
	{"seed-005", "https://httpbin.org/get", "GET", "R/PT1M"},
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.Default()

	client, st, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, "jobs")
	if err != nil {
		log.Fatalf("mongo: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	if err := st.EnsureIndexes(ctx); err != nil {
		log.Fatalf("ensure indexes: %v", err)
	}

	reg := registry.New(cfg.LockDuration(), cfg.DefaultPriority, cfg.DefaultConcurrency, nil)
	reg.Define(httpjob.TypeName, registry.Options{}, httpjob.New(logger).Handle)

	sched := scheduler.New(reg, st, nil, scheduler.Config{Concurrency: 1, QueueDepth: 1}, logger)

	var inserted int
	var jobIDs []string
	for _, spec := range jobs {
		id, err := sched.Schedule(ctx, scheduler.ScheduleInput{
			ExternalID: spec.key,
			Type:       httpjob.TypeName,
			Schedule:   spec.schedule,
			Data: map[string]any{
				"url":             spec.url,
				"method":          spec.method,
				"timeout_seconds": 30,
			},
			Immediate: true,
		})
		if err != nil {
			log.Fatalf("schedule job %s: %v", spec.key, err)
		}
		jobIDs = append(jobIDs, id)
		inserted++
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Jobs scheduled: %d\n", inserted)
	fmt.Println()
	fmt.Println("  Job IDs:")
	for _, id := range jobIDs {
		fmt.Printf("    %s\n", id)
	}
	fmt.Println()
	fmt.Println("  Query one with:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/jobs/JOB_ID")
}
