package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/collection"
	domprod "github.com/kailas-cloud/catalogix/internal/domain/product"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
	"github.com/kailas-cloud/catalogix/internal/extract"
	"github.com/kailas-cloud/catalogix/internal/extract/extracttest"
	"github.com/kailas-cloud/catalogix/internal/usecase/embedding"
)

func TestHandleSaved_IndexesPDFAndSearchFindsIt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-42", "Alu Bar", "", "docs/prod-42.pdf")
	f.products.add(t, "prod-7", "Steel Pipe", "Material: steel. Length: 6 m.", "")
	f.docs["docs/prod-42.pdf"] = string(extracttest.PDF(
		[]string{"Warranty: 2 years.", "Material: aluminum."},
		map[string]string{"Title": "Alu Bar Datasheet"},
	))

	for _, id := range []string{"prod-42", "prod-7"} {
		outcome, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: id})
		if err != nil {
			t.Fatalf("HandleSaved(%s): %v", id, err)
		}
		if outcome != OutcomeIndexed {
			t.Fatalf("HandleSaved(%s) = %q, want indexed", id, outcome)
		}
	}

	p := f.products.get("prod-42")
	if p.IndexStatus() != domprod.StatusIndexed || p.IndexHash() == "" {
		t.Errorf("product not marked indexed: status=%q hash=%q", p.IndexStatus(), p.IndexHash())
	}
	if n := f.mem.Len(testCollection); n != 2 {
		t.Errorf("index holds %d records, want 2", n)
	}

	results, err := f.svc.Search(ctx, "aluminum warranty", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Product.ID() != "prod-42" {
		t.Errorf("top hit = %q, want prod-42", results[0].Product.ID())
	}
	if results[0].Score <= 0.7 {
		t.Errorf("top score = %v, want > 0.7", results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not sorted: %v > %v", results[i].Score, results[i-1].Score)
		}
	}
}

func TestHandleSaved_InlineDocumentWinsOverStoredReference(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-1", "Bar", "", "docs/old.txt")
	f.docs["docs/old.txt"] = "copper"

	_, err := f.svc.HandleSaved(ctx, Event{
		Kind:        EventSaved,
		ProductID:   "prod-1",
		Document:    []byte("Material: aluminum."),
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		t.Fatalf("HandleSaved: %v", err)
	}

	hits, err := f.mem.Search(ctx, testCollection, conceptVector("aluminum"), 1)
	if err != nil || len(hits) != 1 {
		t.Fatalf("search: %v %v", hits, err)
	}
	if hits[0].Score < 0.5 {
		t.Errorf("inline document not used, score %v", hits[0].Score)
	}
	if hits[0].Payload[record.PayloadName] != "Bar" {
		t.Errorf("payload = %v", hits[0].Payload)
	}
}

func TestHandleSaved_SkipsUnchangedText(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-1", "Alu Bar", "aluminum", "")

	if _, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: "prod-1"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	calls, _ := f.provider.counts()

	outcome, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: "prod-1"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Errorf("outcome = %q, want skipped", outcome)
	}
	if again, _ := f.provider.counts(); again != calls {
		t.Errorf("unchanged text was re-embedded")
	}

	outcome, err = f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: "prod-1", Force: true})
	if err != nil || outcome != OutcomeIndexed {
		t.Errorf("forced: outcome=%q err=%v", outcome, err)
	}
}

func TestHandleSaved_EmbeddingFailureMarksStaleAndKeepsOldRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-1", "Alu Bar", "aluminum", "")
	if _, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: "prod-1"}); err != nil {
		t.Fatalf("initial index: %v", err)
	}

	f.products.add(t, "prod-1", "Steel Bar", "steel", "")
	f.provider.failures = 10
	f.provider.err = fmt.Errorf("502: %w", domain.ErrEmbeddingServiceUnavailable)

	outcome, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: "prod-1"})
	if outcome != OutcomeStale {
		t.Fatalf("outcome = %q, want stale", outcome)
	}
	if !errors.Is(err, domain.ErrEmbeddingServiceUnavailable) {
		t.Errorf("expected embedding error, got %v", err)
	}

	p := f.products.get("prod-1")
	if p.IndexStatus() != domprod.StatusStale || p.IndexError() != "embedding_unavailable" {
		t.Errorf("status=%q error=%q", p.IndexStatus(), p.IndexError())
	}

	hits, _ := f.mem.Search(ctx, testCollection, conceptVector("aluminum"), 1)
	if len(hits) != 1 || hits[0].Payload[record.PayloadName] != "Alu Bar" {
		t.Errorf("previous record must survive a failed update: %+v", hits)
	}
}

func TestHandleSaved_ExtractionErrorsMarkStale(t *testing.T) {
	tests := []struct {
		name     string
		ev       Event
		wantKind string
	}{
		{
			name:     "corrupt pdf",
			ev:       Event{Document: []byte("%PDF-1.4\n1 0 obj <<"), ContentType: "application/pdf"},
			wantKind: "corrupt_document",
		},
		{
			name:     "unsupported",
			ev:       Event{Document: []byte{0x89, 'P', 'N', 'G', 0, 0}, ContentType: "image/png"},
			wantKind: "unsupported_format",
		},
		{
			name:     "missing reference",
			ev:       Event{DocumentRef: "docs/nope.pdf"},
			wantKind: "document_not_found",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.products.add(t, "prod-1", "Alu Bar", "", "")
			tc.ev.Kind = EventSaved
			tc.ev.ProductID = "prod-1"

			outcome, err := f.svc.HandleSaved(context.Background(), tc.ev)
			if outcome != OutcomeStale || err == nil {
				t.Fatalf("outcome=%q err=%v", outcome, err)
			}
			if got := f.products.get("prod-1").IndexError(); got != tc.wantKind {
				t.Errorf("stale reason = %q, want %q", got, tc.wantKind)
			}
			if calls, _ := f.provider.counts(); calls != 0 {
				t.Error("embedding must not run after a failed extraction")
			}
		})
	}
}

func TestHandleSaved_NoIndexableText(t *testing.T) {
	f := newFixture(t, nil)
	f.products.add(t, "prod-1", "  ", "", "")

	outcome, err := f.svc.HandleSaved(context.Background(), Event{Kind: EventSaved, ProductID: "prod-1"})
	if outcome != OutcomeStale || !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("outcome=%q err=%v", outcome, err)
	}
}

func TestHandleSaved_UnknownProduct(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.HandleSaved(context.Background(), Event{Kind: EventSaved, ProductID: "ghost"})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestHandleSaved_RetriesUnavailableIndex(t *testing.T) {
	f := newFixture(t, nil)
	f.products.add(t, "prod-1", "Alu Bar", "", "")
	f.index.upsertFails = 2

	outcome, err := f.svc.HandleSaved(context.Background(), Event{Kind: EventSaved, ProductID: "prod-1"})
	if err != nil || outcome != OutcomeIndexed {
		t.Fatalf("outcome=%q err=%v", outcome, err)
	}
	if f.index.upserts != 3 {
		t.Errorf("expected 3 upsert attempts, got %d", f.index.upserts)
	}
}

func TestHandleSaved_IndexDownMarksStale(t *testing.T) {
	f := newFixture(t, nil)
	f.products.add(t, "prod-1", "Alu Bar", "", "")
	f.index.upsertFails = 100

	outcome, err := f.svc.HandleSaved(context.Background(), Event{Kind: EventSaved, ProductID: "prod-1"})
	if outcome != OutcomeStale || !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("outcome=%q err=%v", outcome, err)
	}
	if got := f.products.get("prod-1").IndexError(); got != "index_unavailable" {
		t.Errorf("stale reason = %q", got)
	}
}

func TestHandleDeleted_RemovesRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-42", "Alu Bar", "aluminum warranty", "")
	if _, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: "prod-42"}); err != nil {
		t.Fatalf("index: %v", err)
	}

	f.svc.HandleDeleted(ctx, "prod-42")
	f.svc.HandleDeleted(ctx, "prod-42")

	if n := f.mem.Len(testCollection); n != 0 {
		t.Errorf("expected empty index, got %d records", n)
	}
}

func TestHandleDeleted_FailureOnlyLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, zap.New(core))
	f.index.deleteErr = fmt.Errorf("timeout: %w", domain.ErrIndexUnavailable)

	f.svc.HandleDeleted(context.Background(), "prod-9")

	entries := logs.FilterMessage("delete from index failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["product_id"] != "prod-9" || fields["kind"] != "index_unavailable" {
		t.Errorf("unexpected log fields: %v", fields)
	}
}

func TestSearch_DropsUnresolvedProducts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-1", "Alu Bar", "aluminum", "")
	f.products.add(t, "prod-2", "Alu Pipe", "aluminum pipe", "")
	for _, id := range []string{"prod-1", "prod-2"} {
		if _, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: id}); err != nil {
			t.Fatalf("index %s: %v", id, err)
		}
	}
	f.products.remove("prod-1")

	results, err := f.svc.Search(ctx, "aluminum", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Product.ID() != "prod-2" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearch_MinScore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-1", "Alu Bar", "aluminum", "")
	f.products.add(t, "prod-2", "Steel Pipe", "steel", "")
	for _, id := range []string{"prod-1", "prod-2"} {
		if _, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: id}); err != nil {
			t.Fatalf("index %s: %v", id, err)
		}
	}
	f.svc.cfg.MinScore = 0.5

	results, err := f.svc.Search(ctx, "aluminum", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Product.ID() != "prod-1" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearch_FailuresAreGeneric(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		wantKind string
	}{
		{
			name: "embedding down",
			setup: func(f *fixture) {
				f.provider.failures = 10
				f.provider.err = fmt.Errorf("503: %w", domain.ErrEmbeddingServiceUnavailable)
			},
			wantKind: "embedding_unavailable",
		},
		{
			name:     "index down",
			setup:    func(f *fixture) { f.index.searchErr = fmt.Errorf("dial: %w", domain.ErrIndexUnavailable) },
			wantKind: "index_unavailable",
		},
		{
			name:     "collection missing",
			setup:    func(f *fixture) { f.index.searchErr = domain.ErrCollectionNotFound },
			wantKind: "collection_not_found",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			f := newFixture(t, zap.New(core))
			tc.setup(f)

			_, err := f.svc.Search(context.Background(), "aluminum", 3)
			if !errors.Is(err, domain.ErrSearchUnavailable) {
				t.Fatalf("expected ErrSearchUnavailable, got %v", err)
			}
			if err.Error() != domain.ErrSearchUnavailable.Error() {
				t.Errorf("internal detail leaked: %v", err)
			}

			entries := logs.FilterMessage("search failed").All()
			if len(entries) != 1 || entries[0].ContextMap()["kind"] != tc.wantKind {
				t.Errorf("expected logged kind %q, got %v", tc.wantKind, entries)
			}
		})
	}
}

func TestSearch_InvalidQueryAndTopKClamp(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.svc.Search(context.Background(), "   ", 3); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	tests := []struct{ in, want int }{{0, 5}, {-3, 5}, {7, 7}, {500, 20}}
	for _, tc := range tests {
		if got := f.svc.clampTopK(tc.in); got != tc.want {
			t.Errorf("clampTopK(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMarkStale_SurvivesCancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	f.products.add(t, "prod-1", "Alu Bar", "", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.svc.MarkStale(ctx, "prod-1", domain.ErrQueueFull)
	if got := f.products.get("prod-1"); got.IndexStatus() != domprod.StatusStale || got.IndexError() != "queue_full" {
		t.Errorf("status=%q error=%q", got.IndexStatus(), got.IndexError())
	}
}

func TestHandleSaved_NewCollectionVersionReindexesUnchangedText(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.add(t, "prod-42", "Alu Bar", "Material: aluminum.", "")

	if outcome, err := f.svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: "prod-42"}); err != nil || outcome != OutcomeIndexed {
		t.Fatalf("first index: %q %v", outcome, err)
	}

	const next = "products_v2"
	if err := f.mem.EnsureCollection(ctx, next, conceptDim, collection.MetricCosine); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	svc := New(f.products, f.docs, extract.New(), embedding.New(f.provider, conceptDim), f.mem, Config{
		Collection: next,
		Dimension:  conceptDim,
		Model:      testModel,
		Retry:      fastRetry(),
	}, nil)

	outcome, err := svc.HandleSaved(ctx, Event{Kind: EventSaved, ProductID: "prod-42"})
	if err != nil {
		t.Fatalf("HandleSaved: %v", err)
	}
	if outcome != OutcomeIndexed {
		t.Errorf("outcome = %q, want indexed into the new collection", outcome)
	}
	if n := f.mem.Len(next); n != 1 {
		t.Errorf("%s holds %d records, want 1", next, n)
	}
}

func TestPrepare_FingerprintCoversTarget(t *testing.T) {
	p, err := domprod.New("prod-1", "alu-bar", "Alu Bar", "aluminum", false, "")
	if err != nil {
		t.Fatal(err)
	}
	hash := func(cfg Config) string {
		t.Helper()
		_, h, err := (&Service{cfg: cfg}).prepare(p, "")
		if err != nil {
			t.Fatalf("prepare: %v", err)
		}
		return h
	}

	base := Config{Collection: "products_v1", Dimension: 768, Model: "m"}
	variants := map[string]Config{
		"collection": {Collection: "products_v2", Dimension: 768, Model: "m"},
		"dimension":  {Collection: "products_v1", Dimension: 512, Model: "m"},
		"model":      {Collection: "products_v1", Dimension: 768, Model: "m2"},
	}
	if hash(base) != hash(base) {
		t.Fatal("fingerprint is not stable")
	}
	for name, cfg := range variants {
		if hash(cfg) == hash(base) {
			t.Errorf("changing the %s must change the fingerprint", name)
		}
	}
}
