// Package mongostore implements the Persistence Contract (store.Store) on
// top of go.mongodb.org/mongo-driver. MongoDB's document equality on array
// fields compares element-by-element and in order, which is exactly what
// Step B's conditional claim predicate on workers needs without an
// auxiliary digest column.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
	"github.com/parallon-labs/distjob-scheduler/internal/store"
)

// Store adapts a *mongo.Collection to store.Store.
type Store struct {
	coll *mongo.Collection
}

func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// Connect dials uri and returns both the raw client (for health checks and
// graceful shutdown) and a Store bound to dbName.collName.
func Connect(ctx context.Context, uri, dbName, collName string) (*mongo.Client, *Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return client, New(client.Database(dbName).Collection(collName)), nil
}

// Pinger adapts a *mongo.Client to health.Pinger, whose contract takes only
// a context.
type Pinger struct {
	client *mongo.Client
}

func NewPinger(client *mongo.Client) Pinger {
	return Pinger{client: client}
}

func (p Pinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, nil)
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job.type", Value: 1}, {Key: "job.id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("job_type_id_unique"),
		},
		{
			Keys: bson.D{
				{Key: "due", Value: 1},
				{Key: "job.priority", Value: 1},
				{Key: "job.type", Value: 1},
				{Key: "permits", Value: 1},
				{Key: "workers", Value: 1},
				{Key: "_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("due_candidate_selection"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: ensure indexes: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec *domain.Record) error {
	_, err := s.coll.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateJob
		}
		return fmt.Errorf("mongostore: insert: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Record, error) {
	var rec domain.Record
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get: %w", err)
	}
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, sel store.Selector) (int64, error) {
	if sel.ID == "" && sel.Type == "" {
		return 0, domain.ErrInvalidArguments
	}
	filter := bson.M{}
	if sel.ID != "" {
		filter["_id"] = sel.ID
	}
	if sel.Type != "" {
		filter["job.type"] = sel.Type
	}
	res, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongostore: delete: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) FindIdleCandidate(ctx context.Context, types []string, now time.Time, onlyID, excludeWorker string) (*domain.Record, error) {
	filter := bson.M{
		"job.type": bson.M{"$in": types},
		"due":      bson.M{"$lte": now},
		"permits":  bson.M{"$ne": 0},
		"workers":  bson.M{"$ne": excludeWorker},
	}
	if onlyID != "" {
		filter["_id"] = onlyID
	}
	return s.findOneSorted(ctx, filter)
}

func (s *Store) FindExpiredCandidate(ctx context.Context, clauses []store.ExpiredClause, now time.Time, onlyID, excludeWorker string) (*domain.Record, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	or := make([]bson.M, 0, len(clauses))
	for _, c := range clauses {
		or = append(or, bson.M{
			"job.type": c.Type,
			"workers":  bson.M{"$elemMatch": bson.M{"$lte": c.Threshold}},
		})
	}
	filter := bson.M{
		"due":     bson.M{"$lte": now},
		"workers": bson.M{"$ne": excludeWorker},
		"$or":     or,
	}
	if onlyID != "" {
		filter["_id"] = onlyID
	}
	return s.findOneSorted(ctx, filter)
}

func (s *Store) findOneSorted(ctx context.Context, filter bson.M) (*domain.Record, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "job.priority", Value: 1}, {Key: "_id", Value: 1}})
	var rec domain.Record
	err := s.coll.FindOne(ctx, filter, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find candidate: %w", err)
	}
	return &rec, nil
}

func (s *Store) Claim(ctx context.Context, id string, prevPermits int, prevWorkers []string, newPermits int, newWorkers []string) (bool, error) {
	filter := bson.M{"_id": id, "permits": prevPermits, "workers": prevWorkers}
	update := bson.M{"$set": bson.M{
		"permits":      newPermits,
		"workers":      newWorkers,
		"meta.updated": time.Now().UTC(),
	}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mongostore: claim: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) Reschedule(ctx context.Context, id, jobType string, dueNew time.Time, newSchedule string, now time.Time) (bool, error) {
	filter := bson.M{"_id": id, "job.type": jobType, "due": bson.M{"$lte": dueNew}}
	update := bson.M{"$set": bson.M{
		"job.schedule": newSchedule,
		"due":          dueNew,
		"completed":    now,
		"meta.updated": time.Now().UTC(),
	}}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mongostore: reschedule: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) Remove(ctx context.Context, id, jobType string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "job.type": jobType})
	if err != nil {
		return fmt.Errorf("mongostore: remove: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, id, jobType, workerID string, unlimited bool) error {
	filter := bson.M{"_id": id, "job.type": jobType, "workers": workerID}
	set := bson.M{"meta.updated": time.Now().UTC()}
	update := bson.M{
		"$pull": bson.M{"workers": workerID},
		"$set":  set,
	}
	if !unlimited {
		update["$inc"] = bson.M{"permits": 1}
	}
	_, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongostore: release: %w", err)
	}
	return nil
}
