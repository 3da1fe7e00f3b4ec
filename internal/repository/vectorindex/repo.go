// Package vectorindex implements domain.VectorIndex over Valkey/Redis search.
//
// Every collection is an FT index over hashes. Collection metadata lives in a
// separate hash so dimension and metric survive restarts and can be checked
// by EnsureCollection.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/catalogix/internal/db"
	"github.com/kailas-cloud/catalogix/internal/domain"
	domcol "github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
	"github.com/kailas-cloud/catalogix/internal/metrics"
)

// Compile-time check: Repo implements domain.VectorIndex.
var _ domain.VectorIndex = (*Repo)(nil)

// Hash fields of a record.
const (
	fieldID      = "id"
	fieldVector  = "__vector"
	fieldPayload = "__payload"
	fieldSeq     = "__seq"
)

// store is the consumer interface for the vector index (ISP).
//
//nolint:interfacebloat // index repo needs hash, counter, index management and search operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters. EFRuntime applies per query, the rest at FT.CREATE.
type HNSWConfig struct {
	M           int
	EFConstruct int
	EFRuntime   int
}

// Repo implements domain.VectorIndex for Valkey (valkey-search) and Redis 8+.
type Repo struct {
	store   store
	backend string
	version int
	hnsw    HNSWConfig
	timeout time.Duration
}

// New creates a vector index repository. version is the collection schema version.
func New(s store, version int) *Repo {
	if version < 1 {
		version = 1
	}
	return &Repo{store: s, backend: "valkey", version: version, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	if cfg.EFRuntime > 0 {
		r.hnsw.EFRuntime = cfg.EFRuntime
	}
	return r
}

// WithTimeout bounds every call. Zero leaves the caller's deadline alone.
func (r *Repo) WithTimeout(d time.Duration) *Repo {
	r.timeout = d
	return r
}

// WithBackend sets the metrics label (valkey or redis).
func (r *Repo) WithBackend(name string) *Repo {
	r.backend = name
	return r
}

// EnsureCollection creates the metadata hash and the FT index if absent.
// An existing collection must match dim and metric exactly.
func (r *Repo) EnsureCollection(ctx context.Context, name string, dim int, metric domcol.Metric) (err error) {
	defer r.observe("ensure_collection", time.Now(), &err)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, err := domcol.New(name, r.version, dim, metric)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	physical := col.PhysicalName()

	existing, found, err := r.loadMeta(ctx, physical)
	if err != nil {
		return err
	}
	if found {
		if existing.Dimension() != dim {
			return domain.NewDimensionMismatch(existing.Dimension(), dim)
		}
		if existing.Metric() != metric {
			return fmt.Errorf("collection %s uses %s, requested %s: %w",
				physical, existing.Metric(), metric, domain.ErrMetricMismatch)
		}
		// метаданные есть, а индекс мог пропасть (FLUSH, ручной DROPINDEX)
		return r.ensureIndex(ctx, col)
	}

	if err := r.store.HSet(ctx, metaKey(physical), collectionToHash(col)); err != nil {
		return unavailable("hset collection "+physical, err)
	}

	// FT.CREATE failed: roll back the HSET
	if err := r.ensureIndex(ctx, col); err != nil {
		cleanupErr := r.store.Del(ctx, metaKey(physical))
		return errors.Join(err, cleanupErr)
	}
	return nil
}

func (r *Repo) ensureIndex(ctx context.Context, col domcol.Collection) error {
	physical := col.PhysicalName()

	exists, err := r.store.IndexExists(ctx, indexName(physical))
	if err != nil {
		return unavailable("check index "+physical, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(col, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil // concurrent ensure won the race
		}
		return unavailable("create index "+physical, err)
	}
	return nil
}

// Upsert writes the record hash in a single HSET. The first-insertion sequence
// number is kept across overwrites so ties rank stably.
func (r *Repo) Upsert(ctx context.Context, collectionName string, rec record.Record) (err error) {
	defer r.observe("upsert", time.Now(), &err)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, err := r.collection(ctx, collectionName)
	if err != nil {
		return err
	}
	if len(rec.Vector) != col.Dimension() {
		return domain.NewDimensionMismatch(col.Dimension(), len(rec.Vector))
	}

	physical := col.PhysicalName()
	key := recordKey(physical, rec.ID)

	seq, err := r.sequence(ctx, physical, key)
	if err != nil {
		return err
	}

	fields, err := recordToHash(rec, seq)
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return unavailable("hset record", err)
	}
	return nil
}

func (r *Repo) sequence(ctx context.Context, physical, key string) (int64, error) {
	v, err := r.store.HGet(ctx, key, fieldSeq)
	if err == nil {
		if seq, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			return seq, nil
		}
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return 0, unavailable("hget seq", err)
	}

	seq, err := r.store.Incr(ctx, seqKey(physical))
	if err != nil {
		return 0, unavailable("incr seq", err)
	}
	return seq, nil
}

// Search runs a KNN query and re-ranks the candidates so equal scores keep
// first-insertion order.
func (r *Repo) Search(ctx context.Context, collectionName string, vector []float32, topK int) (hits []record.Hit, err error) {
	defer r.observe("search", time.Now(), &err)
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, err := r.collection(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	if len(vector) != col.Dimension() {
		return nil, domain.NewDimensionMismatch(col.Dimension(), len(vector))
	}

	physical := col.PhysicalName()
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(physical),
		VectorField:  fieldVector,
		Vector:       vector,
		K:            candidates(topK),
		EFRuntime:    r.hnsw.EFRuntime,
		ReturnFields: []string{fieldID, fieldPayload, fieldSeq},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, fmt.Errorf("collection %s: %w", physical, domain.ErrCollectionNotFound)
		}
		return nil, unavailable("search", err)
	}

	ranked := make([]record.Ranked, 0, len(res.Entries))
	for _, e := range res.Entries {
		ranked = append(ranked, entryToRanked(e))
	}
	return record.Rank(ranked, topK), nil
}

// Delete removes the record hash. A missing id is not an error.
func (r *Repo) Delete(ctx context.Context, collectionName, id string) (err error) {
	defer r.observe("delete", time.Now(), &err)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, err := r.collection(ctx, collectionName)
	if err != nil {
		return err
	}
	if err := r.store.Del(ctx, recordKey(col.PhysicalName(), id)); err != nil {
		return unavailable("del record", err)
	}
	return nil
}

// Ping checks the underlying store for the health service.
func (r *Repo) Ping(ctx context.Context) error {
	if p, ok := r.store.(db.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *Repo) collection(ctx context.Context, name string) (domcol.Collection, error) {
	physical := fmt.Sprintf("%s_v%d", name, r.version)
	col, found, err := r.loadMeta(ctx, physical)
	if err != nil {
		return domcol.Collection{}, err
	}
	if !found {
		return domcol.Collection{}, fmt.Errorf("collection %s: %w", physical, domain.ErrCollectionNotFound)
	}
	return col, nil
}

func (r *Repo) loadMeta(ctx context.Context, physical string) (domcol.Collection, bool, error) {
	m, err := r.store.HGetAll(ctx, metaKey(physical))
	if err != nil {
		return domcol.Collection{}, false, unavailable("hgetall collection "+physical, err)
	}
	if len(m) == 0 {
		return domcol.Collection{}, false, nil
	}
	col, err := collectionFromHash(m)
	if err != nil {
		return domcol.Collection{}, false, fmt.Errorf("parse collection %s: %w", physical, err)
	}
	return col, true, nil
}

func (r *Repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Repo) observe(op string, start time.Time, err *error) {
	metrics.ObserveIndexOp(r.backend, op, start, *err)
}

// candidates over-fetches so records tied with the last returned hit are
// available for the insertion-order tie break.
func candidates(topK int) int {
	return topK + max(topK/2, 10)
}

// unavailable wraps a store failure as a transient index error.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
}
