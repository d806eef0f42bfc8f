package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrInvalidJob       = errors.New("job is missing a required field")
	ErrInvalidArguments = errors.New("at least one selector field is required")
	ErrJobNotFound      = errors.New("job not found")
	ErrDuplicateJob     = errors.New("job with this (type, id) already exists")
)

// Fields holds the caller-visible portion of a job record, embedded under
// the "job" key of the persisted document.
type Fields struct {
	ID          string   `bson:"id" json:"id"`
	Type        string   `bson:"type" json:"type"`
	Schedule    string   `bson:"schedule" json:"schedule"`
	Priority    int      `bson:"priority" json:"priority"`
	Concurrency int      `bson:"concurrency" json:"concurrency"`
	Data        bson.Raw `bson:"data,omitempty" json:"data,omitempty"`
}

// Meta carries audit timestamps, never interpreted by the core.
type Meta struct {
	Created time.Time `bson:"created" json:"created"`
	Updated time.Time `bson:"updated" json:"updated"`
}

// Record is one document in the job collection. It is mutated only by the
// Claim Engine and by Schedule/Unschedule.
type Record struct {
	ID        string     `bson:"_id" json:"id"`
	Job       Fields     `bson:"job" json:"job"`
	Due       *time.Time `bson:"due" json:"due"`
	Permits   int        `bson:"permits" json:"permits"`
	Workers   []string   `bson:"workers" json:"workers"`
	Completed *time.Time `bson:"completed" json:"completed"`
	Meta      Meta       `bson:"meta" json:"meta"`
}

// Unlimited reports whether this job's permits are uncapped.
func (r *Record) Unlimited() bool {
	return r.Job.Concurrency == -1
}

// HasWorker reports whether w currently holds a permit on r.
func (r *Record) HasWorker(w string) bool {
	for _, id := range r.Workers {
		if id == w {
			return true
		}
	}
	return false
}
