package vectorindex

import (
	"context"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/kailas-cloud/catalogix/internal/db"
)

// fakeStore emulates the subset of Valkey the repo uses: hashes, counters and
// brute-force KNN over indexed hashes.
type fakeStore struct {
	hashes    map[string]map[string]string
	counters  map[string]int64
	indexes   map[string]*db.IndexDefinition
	lastQuery *db.KNNQuery

	// failures injected per operation
	hsetErr   error
	searchErr error
	hsetCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes:   map[string]map[string]string{},
		counters: map[string]int64{},
		indexes:  map[string]*db.IndexDefinition{},
	}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	f.hsetCalls++
	if f.hsetErr != nil {
		return f.hsetErr
	}
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) HGet(_ context.Context, key, field string) (string, error) {
	v, ok := f.hashes[key][field]
	if !ok {
		return "", db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	delete(f.hashes, key)
	return nil
}

func (f *fakeStore) Incr(_ context.Context, key string) (int64, error) {
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if _, ok := f.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	f.indexes[def.Name] = def
	return nil
}

func (f *fakeStore) IndexExists(_ context.Context, name string) (bool, error) {
	_, ok := f.indexes[name]
	return ok, nil
}

func (f *fakeStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	f.lastQuery = q
	def, ok := f.indexes[q.IndexName]
	if !ok {
		return nil, db.ErrIndexNotFound
	}
	var dist db.DistanceMetric
	for _, fld := range def.Fields {
		if fld.Kind == db.FieldVector {
			dist = fld.Distance
		}
	}

	keys := make([]string, 0, len(f.hashes))
	for k := range f.hashes {
		if strings.HasPrefix(k, def.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var entries []db.SearchEntry
	for _, k := range keys {
		vec, err := db.DecodeVector([]byte(f.hashes[k][q.VectorField]))
		if err != nil || len(vec) != len(q.Vector) {
			continue
		}
		fields := map[string]string{}
		for _, name := range q.ReturnFields {
			fields[name] = f.hashes[k][name]
		}
		entries = append(entries, db.SearchEntry{Key: k, Score: similarity(dist, q.Vector, vec), Fields: fields})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > q.K {
		entries = entries[:q.K]
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

func similarity(d db.DistanceMetric, a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if d == db.DistanceIP {
		return dot
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func newTestRepo(t *testing.T) (*Repo, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	return New(fs, 1), fs
}
