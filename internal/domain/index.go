package domain

import (
	"context"

	"github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
)

// VectorIndex is the capability contract every vector database backend implements.
//
// Upsert and Delete are single-record atomic calls; no client-side locking is
// layered on top, concurrent writers of the same id resolve last-write-wins.
type VectorIndex interface {
	// EnsureCollection creates the collection if absent. Idempotent.
	// Returns ErrDimensionMismatch / ErrMetricMismatch for an incompatible existing collection.
	EnsureCollection(ctx context.Context, name string, dim int, metric collection.Metric) error
	// Upsert overwrites any record sharing rec.ID. ErrCollectionNotFound for an unknown collection.
	Upsert(ctx context.Context, collectionName string, rec record.Record) error
	// Search returns at most topK hits by non-increasing score.
	// Ties keep first-insertion order. ErrInvalidArgument when topK <= 0.
	Search(ctx context.Context, collectionName string, vector []float32, topK int) ([]record.Hit, error)
	// Delete removes the record. Deleting a missing id is not an error.
	Delete(ctx context.Context, collectionName, id string) error
}
