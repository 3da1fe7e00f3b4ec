package product

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/catalogix/internal/domain/record"
)

// IndexStatus is the index-status column written back to the product store.
type IndexStatus string

const (
	// StatusPending means the product was never indexed.
	StatusPending IndexStatus = "pending"
	// StatusIndexed means the index holds the product's current text.
	StatusIndexed IndexStatus = "indexed"
	// StatusStale means the last indexing attempt failed; the index may hold an older version or nothing.
	StatusStale IndexStatus = "stale"
)

// IsValid checks if the status is known.
func (s IndexStatus) IsValid() bool {
	return s == StatusPending || s == StatusIndexed || s == StatusStale
}

// Product is the collaborator-owned catalog row as seen by the pipeline.
type Product struct {
	id          string
	slug        string
	name        string
	description string
	aiGenerated bool
	documentRef string
	indexStatus IndexStatus
	indexHash   string
	indexError  string
	updatedAt   int64
}

// New validates and creates a Product with pending index status.
func New(id, slug, name, description string, aiGenerated bool, documentRef string) (Product, error) {
	if id == "" {
		return Product{}, fmt.Errorf("product id is required")
	}
	if len(id) > 256 {
		return Product{}, fmt.Errorf("product id too long (max 256)")
	}
	return Product{
		id:          id,
		slug:        slug,
		name:        name,
		description: description,
		aiGenerated: aiGenerated,
		documentRef: documentRef,
		indexStatus: StatusPending,
	}, nil
}

// Restore rebuilds a Product from storage without validation.
func Restore(
	id, slug, name, description string, aiGenerated bool, documentRef string,
	status IndexStatus, indexHash, indexError string, updatedAt int64,
) Product {
	return Product{
		id:          id,
		slug:        slug,
		name:        name,
		description: description,
		aiGenerated: aiGenerated,
		documentRef: documentRef,
		indexStatus: status,
		indexHash:   indexHash,
		indexError:  indexError,
		updatedAt:   updatedAt,
	}
}

func (p Product) ID() string               { return p.id }
func (p Product) Slug() string             { return p.slug }
func (p Product) Name() string             { return p.name }
func (p Product) Description() string      { return p.description }
func (p Product) AIGenerated() bool        { return p.aiGenerated }
func (p Product) DocumentRef() string      { return p.documentRef }
func (p Product) IndexStatus() IndexStatus { return p.indexStatus }
func (p Product) IndexHash() string        { return p.indexHash }
func (p Product) IndexError() string       { return p.indexError }
func (p Product) UpdatedAt() int64         { return p.updatedAt }

// IndexableText concatenates name, description and document text, skipping empty parts.
func (p Product) IndexableText(documentText string) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.name, p.description, documentText} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Payload returns the denormalized fields stored alongside the vector.
func (p Product) Payload() map[string]any {
	return map[string]any{
		record.PayloadSlug:        p.slug,
		record.PayloadName:        p.name,
		record.PayloadAIGenerated: p.aiGenerated,
	}
}

// Filter narrows a product listing. StaleOnly selects every product whose status is not indexed.
// SkipErrors leaves out products whose last indexing error is one of the given kinds.
type Filter struct {
	IDs        []string
	StaleOnly  bool
	SkipErrors []string
}
