// Package db is the Valkey/Redis storage layer: record hashes, FT vector
// indexes over them, and the plain string keys of the embedding cache.
package db

import (
	"context"
	"time"
)

// Store is everything the Valkey/Redis backend offers. Consumers declare
// their own narrow interfaces over it.
//
//nolint:interfacebloat // backend facade
type Store interface {
	Pinger
	RecordStore
	KVStore
	IndexManager
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecordStore holds vector records and collection metadata as hashes.
type RecordStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
}

// KVStore is the string keyspace: cached embeddings and sequence counters.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// IndexManager creates and queries FT vector indexes.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
