package memindex

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
)

func ensure(t *testing.T, x *Index, dim int) {
	t.Helper()
	if err := x.EnsureCollection(context.Background(), "products", dim, collection.MetricCosine); err != nil {
		t.Fatalf("ensure: %v", err)
	}
}

func upsert(t *testing.T, x *Index, id string, vec []float32, payload map[string]any) {
	t.Helper()
	rec, err := record.New(id, vec, payload)
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	if err := x.Upsert(context.Background(), "products", rec); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
}

func TestEnsureCollection(t *testing.T) {
	x := New()
	ctx := context.Background()

	for range 2 {
		if err := x.EnsureCollection(ctx, "products", 768, collection.MetricCosine); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	if err := x.EnsureCollection(ctx, "products", 512, collection.MetricCosine); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := x.EnsureCollection(ctx, "products", 768, collection.MetricDot); !errors.Is(err, domain.ErrMetricMismatch) {
		t.Fatalf("expected ErrMetricMismatch, got %v", err)
	}
}

func TestUpsert_Errors(t *testing.T) {
	x := New()
	rec, _ := record.New("p1", []float32{1, 0}, nil)

	if err := x.Upsert(context.Background(), "products", rec); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
	ensure(t, x, 3)
	if err := x.Upsert(context.Background(), "products", rec); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestUpsert_LastWriteWins(t *testing.T) {
	x := New()
	ensure(t, x, 2)

	upsert(t, x, "p1", []float32{1, 0}, map[string]any{"name": "old"})
	upsert(t, x, "p1", []float32{0, 1}, map[string]any{"name": "new"})

	if x.Len("products") != 1 {
		t.Fatalf("Len = %d, want 1", x.Len("products"))
	}
	hits, err := x.Search(context.Background(), "products", []float32{0, 1}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits[0].Payload["name"] != "new" || hits[0].Score < 0.999 {
		t.Errorf("unexpected hit %+v", hits[0])
	}
}

func TestUpsert_PayloadIsCopied(t *testing.T) {
	x := New()
	ensure(t, x, 1)

	payload := map[string]any{"name": "Alu Bar"}
	upsert(t, x, "p1", []float32{1}, payload)
	payload["name"] = "mutated"

	hits, _ := x.Search(context.Background(), "products", []float32{1}, 1)
	if hits[0].Payload["name"] != "Alu Bar" {
		t.Errorf("stored payload aliased caller map: %v", hits[0].Payload)
	}
}

func TestSearch_InvalidTopK(t *testing.T) {
	x := New()
	ensure(t, x, 1)
	if _, err := x.Search(context.Background(), "products", []float32{1}, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	x := New()
	ensure(t, x, 2)

	upsert(t, x, "c", []float32{1, 1}, nil)
	upsert(t, x, "a", []float32{1, 1}, nil)
	upsert(t, x, "b", []float32{1, 1}, nil)
	// overwrite keeps c's original position
	upsert(t, x, "c", []float32{1, 1}, map[string]any{"name": "updated"})

	hits, err := x.Search(context.Background(), "products", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, id := range []string{"c", "a", "b"} {
		if hits[i].ID != id {
			t.Errorf("hits[%d] = %s, want %s", i, hits[i].ID, id)
		}
	}
}

func TestSearch_BoundedAndSorted(t *testing.T) {
	x := New()
	ensure(t, x, 8)
	rng := rand.New(rand.NewSource(7))

	for i := range 200 {
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		upsert(t, x, fmt.Sprintf("p%d", i), vec, nil)
	}

	for _, k := range []int{1, 5, 50, 500} {
		q := make([]float32, 8)
		for j := range q {
			q[j] = rng.Float32()*2 - 1
		}
		hits, err := x.Search(context.Background(), "products", q, k)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(hits) > k {
			t.Errorf("k=%d: got %d hits", k, len(hits))
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].Score > hits[i-1].Score {
				t.Fatalf("k=%d: scores increase at %d", k, i)
			}
		}
	}
}

func TestDelete(t *testing.T) {
	x := New()
	ensure(t, x, 2)
	upsert(t, x, "prod-42", []float32{0.6, 0.8}, nil)

	ctx := context.Background()
	if err := x.Delete(ctx, "products", "prod-42"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := x.Delete(ctx, "products", "prod-42"); err != nil {
		t.Fatalf("delete must be idempotent: %v", err)
	}
	hits, _ := x.Search(ctx, "products", []float32{0.6, 0.8}, 10)
	if len(hits) != 0 {
		t.Errorf("expected no hits after delete, got %v", hits)
	}
	if err := x.Delete(ctx, "missing", "p"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestDotMetric(t *testing.T) {
	x := New()
	if err := x.EnsureCollection(context.Background(), "products", 2, collection.MetricDot); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	upsert(t, x, "long", []float32{3, 0}, nil)
	upsert(t, x, "short", []float32{1, 0}, nil)

	hits, _ := x.Search(context.Background(), "products", []float32{1, 0}, 2)
	if hits[0].ID != "long" || hits[0].Score != 3 {
		t.Errorf("dot metric must rank by raw inner product, got %+v", hits)
	}
}
