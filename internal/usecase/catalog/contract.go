package catalog

import (
	"context"

	"github.com/kailas-cloud/catalogix/internal/domain/document"
	domprod "github.com/kailas-cloud/catalogix/internal/domain/product"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
)

// ProductStore is the collaborator product record store.
type ProductStore interface {
	Get(ctx context.Context, id string) (domprod.Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]domprod.Product, error)
	List(ctx context.Context, f domprod.Filter, cursor string, limit int) ([]domprod.Product, string, error)
	MarkIndexed(ctx context.Context, id, hash string) error
	MarkStale(ctx context.Context, id, reason string) error
}

// DocumentStore fetches uploaded documents by reference.
type DocumentStore interface {
	Fetch(ctx context.Context, ref string) (document.Document, error)
}

// Extractor turns a document into text.
type Extractor interface {
	Extract(doc document.Document) (document.ExtractedText, error)
}

// Embedder produces vectors for product text and queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the vector index slice the orchestrator writes to and reads from.
type Index interface {
	Upsert(ctx context.Context, collection string, rec record.Record) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]record.Hit, error)
	Delete(ctx context.Context, collection, id string) error
}
