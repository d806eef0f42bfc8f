// Package idgen is the distributed unique-id generator the Persistence
// Contract requires: a source of external job ids for callers of
// schedule() that don't supply their own.
package idgen

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Generator yields external job ids on request.
type Generator interface {
	New() string
}

type uuidGenerator struct{}

// UUID returns a Generator backed by google/uuid (version 4, random).
func UUID() Generator { return uuidGenerator{} }

func (uuidGenerator) New() string { return uuid.NewString() }

// HashID computes the stable primary-key hash of a job's external id, per
// the Job Record's "id" field.
func HashID(jobID string) string {
	sum := sha256.Sum256([]byte(jobID))
	return hex.EncodeToString(sum[:])
}
