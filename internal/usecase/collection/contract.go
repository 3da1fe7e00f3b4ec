package collection

import (
	"context"

	domcol "github.com/kailas-cloud/catalogix/internal/domain/collection"
)

// Index is the slice of domain.VectorIndex the startup check needs.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dim int, metric domcol.Metric) error
}
