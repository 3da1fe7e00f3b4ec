// Package memindex is an in-process exact-search domain.VectorIndex for local
// development and tests. Contents are lost on restart.
package memindex

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sync"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
)

// Compile-time check: Index implements domain.VectorIndex.
var _ domain.VectorIndex = (*Index)(nil)

type entry struct {
	vector  []float32
	norm    float64
	payload map[string]any
	seq     int64
}

type space struct {
	dim     int
	metric  collection.Metric
	records map[string]*entry
	nextSeq int64
}

// Index stores vectors in memory and scans them on every search.
type Index struct {
	mu     sync.RWMutex
	spaces map[string]*space
}

// New creates an empty Index.
func New() *Index {
	return &Index{spaces: make(map[string]*space)}
}

// EnsureCollection creates the collection if absent.
func (x *Index) EnsureCollection(_ context.Context, name string, dim int, metric collection.Metric) error {
	if _, err := collection.New(name, 1, dim, metric); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if s, ok := x.spaces[name]; ok {
		if s.dim != dim {
			return domain.NewDimensionMismatch(s.dim, dim)
		}
		if s.metric != metric {
			return fmt.Errorf("collection %s uses %s, requested %s: %w", name, s.metric, metric, domain.ErrMetricMismatch)
		}
		return nil
	}
	x.spaces[name] = &space{dim: dim, metric: metric, records: make(map[string]*entry)}
	return nil
}

// Upsert replaces any record with the same id.
func (x *Index) Upsert(_ context.Context, name string, rec record.Record) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	s, ok := x.spaces[name]
	if !ok {
		return fmt.Errorf("collection %s: %w", name, domain.ErrCollectionNotFound)
	}
	if len(rec.Vector) != s.dim {
		return domain.NewDimensionMismatch(s.dim, len(rec.Vector))
	}

	e := &entry{
		vector:  append([]float32(nil), rec.Vector...),
		norm:    norm(rec.Vector),
		payload: maps.Clone(rec.Payload),
	}
	if prev, ok := s.records[rec.ID]; ok {
		e.seq = prev.seq
	} else {
		s.nextSeq++
		e.seq = s.nextSeq
	}
	s.records[rec.ID] = e
	return nil
}

// Search scores every record and returns the best topK.
func (x *Index) Search(_ context.Context, name string, vector []float32, topK int) ([]record.Hit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	s, ok := x.spaces[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrCollectionNotFound)
	}
	if len(vector) != s.dim {
		return nil, domain.NewDimensionMismatch(s.dim, len(vector))
	}

	qNorm := norm(vector)
	ranked := make([]record.Ranked, 0, len(s.records))
	for id, e := range s.records {
		ranked = append(ranked, record.Ranked{
			Hit: record.Hit{ID: id, Score: score(s.metric, vector, qNorm, e), Payload: maps.Clone(e.payload)},
			Seq: e.seq,
		})
	}
	return record.Rank(ranked, topK), nil
}

// Delete removes the record if present.
func (x *Index) Delete(_ context.Context, name, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	s, ok := x.spaces[name]
	if !ok {
		return fmt.Errorf("collection %s: %w", name, domain.ErrCollectionNotFound)
	}
	delete(s.records, id)
	return nil
}

// Len returns the number of records in a collection.
func (x *Index) Len(name string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if s, ok := x.spaces[name]; ok {
		return len(s.records)
	}
	return 0
}

func score(m collection.Metric, q []float32, qNorm float64, e *entry) float64 {
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(e.vector[i])
	}
	if m == collection.MetricDot {
		return dot
	}
	if qNorm == 0 || e.norm == 0 {
		return 0
	}
	return dot / (qNorm * e.norm)
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}
