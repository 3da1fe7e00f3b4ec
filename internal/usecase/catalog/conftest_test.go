package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/domain/document"
	domprod "github.com/kailas-cloud/catalogix/internal/domain/product"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
	"github.com/kailas-cloud/catalogix/internal/extract"
	"github.com/kailas-cloud/catalogix/internal/repository/memindex"
	"github.com/kailas-cloud/catalogix/internal/retry"
	"github.com/kailas-cloud/catalogix/internal/usecase/embedding"
)

const (
	testCollection = "products"
	testModel      = "test-model"
)

// --- Product store ---

type memProducts struct {
	mu       sync.Mutex
	items    map[string]domprod.Product
	listErr  error
	getErr   error
	getCalls int
}

func newMemProducts() *memProducts {
	return &memProducts{items: make(map[string]domprod.Product)}
}

func (m *memProducts) add(t *testing.T, id, name, description, docRef string) {
	t.Helper()
	p, err := domprod.New(id, strings.ToLower(strings.ReplaceAll(name, " ", "-")), name, description, false, docRef)
	if err != nil {
		t.Fatalf("product.New: %v", err)
	}
	m.mu.Lock()
	m.items[id] = p
	m.mu.Unlock()
}

func (m *memProducts) remove(id string) {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
}

func (m *memProducts) get(id string) domprod.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *memProducts) Get(_ context.Context, id string) (domprod.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return domprod.Product{}, m.getErr
	}
	p, ok := m.items[id]
	if !ok {
		return domprod.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
	}
	return p, nil
}

func (m *memProducts) GetMany(_ context.Context, ids []string) (map[string]domprod.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]domprod.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.items[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memProducts) List(_ context.Context, f domprod.Filter, cursor string, limit int) ([]domprod.Product, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, "", m.listErr
	}

	wanted := make(map[string]bool, len(f.IDs))
	for _, id := range f.IDs {
		wanted[id] = true
	}
	var ids []string
	for id, p := range m.items {
		if id <= cursor && cursor != "" {
			continue
		}
		if len(wanted) > 0 && !wanted[id] {
			continue
		}
		if f.StaleOnly && p.IndexStatus() == domprod.StatusIndexed {
			continue
		}
		if slices.Contains(f.SkipErrors, p.IndexError()) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = ids[limit-1]
	}
	out := make([]domprod.Product, len(ids))
	for i, id := range ids {
		out[i] = m.items[id]
	}
	return out, next, nil
}

func (m *memProducts) MarkIndexed(_ context.Context, id, hash string) error {
	return m.mark(id, domprod.StatusIndexed, hash, "")
}

func (m *memProducts) MarkStale(_ context.Context, id, reason string) error {
	return m.mark(id, domprod.StatusStale, "", reason)
}

func (m *memProducts) mark(id string, status domprod.IndexStatus, hash, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	m.items[id] = domprod.Restore(p.ID(), p.Slug(), p.Name(), p.Description(), p.AIGenerated(), p.DocumentRef(),
		status, hash, reason, time.Now().UnixMilli())
	return nil
}

// --- Document store ---

// memDocuments holds raw document bodies; bodies starting with %PDF- are served as PDFs.
type memDocuments map[string]string

func (m memDocuments) Fetch(_ context.Context, ref string) (document.Document, error) {
	body, ok := m[ref]
	if !ok {
		return document.Document{}, fmt.Errorf("document %s: %w", ref, domain.ErrDocumentNotFound)
	}
	contentType := "text/plain"
	if strings.HasPrefix(body, "%PDF-") {
		contentType = "application/pdf"
	}
	return document.New([]byte(body), contentType)
}

// --- Embedding provider ---

// conceptEmbedder maps known catalog words onto fixed dimensions and ignores the rest,
// standing in for a model that knows the domain vocabulary.
type conceptEmbedder struct {
	mu         sync.Mutex
	calls      int
	batchCalls int
	failures   int
	err        error
}

var concepts = map[string]int{
	"alu": 0, "aluminum": 0, "aluminium": 0,
	"warranty": 1, "guarantee": 1,
	"material": 2,
	"bar": 3,
	"steel": 4,
	"pipe": 5,
	"length": 6,
	"copper": 7,
}

const conceptDim = 8

func (e *conceptEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.mu.Lock()
	e.calls++
	if e.failures > 0 {
		e.failures--
		e.mu.Unlock()
		return domain.EmbeddingResult{}, e.err
	}
	e.mu.Unlock()
	return domain.EmbeddingResult{Embedding: conceptVector(text), TotalTokens: len(strings.Fields(text))}, nil
}

func (e *conceptEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.mu.Lock()
	e.batchCalls++
	e.mu.Unlock()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		out.Embeddings[i] = res.Embedding
	}
	return out, nil
}

func (e *conceptEmbedder) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.batchCalls
}

func conceptVector(text string) []float32 {
	vec := make([]float32, conceptDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
	for _, w := range words {
		if i, ok := concepts[w]; ok {
			vec[i]++
		}
	}
	var n float64
	for _, v := range vec {
		n += float64(v) * float64(v)
	}
	if n == 0 {
		vec[conceptDim-1] = 1e-3
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / math.Sqrt(n))
	}
	return vec
}

// --- Vector index wrappers ---

type flakyIndex struct {
	Index
	mu          sync.Mutex
	upsertFails int
	upserts     int
	deleteErr   error
	searchErr   error
}

func (f *flakyIndex) Upsert(ctx context.Context, col string, rec record.Record) error {
	f.mu.Lock()
	f.upserts++
	if f.upsertFails > 0 {
		f.upsertFails--
		f.mu.Unlock()
		return fmt.Errorf("write: %w", domain.ErrIndexUnavailable)
	}
	f.mu.Unlock()
	return f.Index.Upsert(ctx, col, rec)
}

func (f *flakyIndex) Delete(ctx context.Context, col, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Index.Delete(ctx, col, id)
}

func (f *flakyIndex) Search(ctx context.Context, col string, vec []float32, topK int) ([]record.Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.Index.Search(ctx, col, vec, topK)
}

// --- Fixture ---

type fixture struct {
	svc      *Service
	products *memProducts
	docs     memDocuments
	provider *conceptEmbedder
	mem      *memindex.Index
	index    *flakyIndex
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	mem := memindex.New()
	if err := mem.EnsureCollection(context.Background(), testCollection, conceptDim, collection.MetricCosine); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	f := &fixture{
		products: newMemProducts(),
		docs:     memDocuments{},
		provider: &conceptEmbedder{},
		mem:      mem,
	}
	f.index = &flakyIndex{Index: mem}

	gen := embedding.New(f.provider, conceptDim).WithRetry(fastRetry())
	f.svc = New(f.products, f.docs, extract.New(), gen, f.index, Config{
		Collection:  testCollection,
		Model:       testModel,
		TopKDefault: 5,
		MaxTopK:     20,
		BatchSize:   2,
		Retry:       fastRetry(),
	}, logger)
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

var errBoom = errors.New("boom")
