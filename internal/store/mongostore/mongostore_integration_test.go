//go:build mongo

package mongostore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
	"github.com/parallon-labs/distjob-scheduler/internal/store/mongostore"
)

// Run with: go test -tags mongo ./internal/store/mongostore/... with
// MONGO_URI pointing at a scratch database.
func TestClaim_ConditionalOnExactPriorWorkers(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, st, err := mongostore.Connect(ctx, uri, "distjob_test", "jobs_integration")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(ctx)

	if err := st.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	now := time.Now().UTC()
	rec := &domain.Record{
		ID:      "integration-claim-1",
		Job:     domain.Fields{ID: "job-1", Type: "t", Priority: 10, Concurrency: 1},
		Due:     &now,
		Permits: 1,
		Workers: nil,
		Meta:    domain.Meta{Created: now, Updated: now},
	}
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err := st.Claim(ctx, rec.ID, 1, nil, 0, []string{"w1"})
	if err != nil || !ok {
		t.Fatalf("expected first claim to succeed: ok=%v err=%v", ok, err)
	}

	// Stale predicate (prior workers value no longer matches) must lose
	// the race.
	ok, err = st.Claim(ctx, rec.ID, 1, nil, 0, []string{"w2"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected stale predicate to fail to match")
	}
}
