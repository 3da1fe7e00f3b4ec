package collection

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Metric is the distance function shared by every vector in a collection.
type Metric string

const (
	// MetricCosine ranks by cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricDot ranks by raw inner product.
	MetricDot Metric = "dot"
)

// IsValid checks if the metric is supported.
func (m Metric) IsValid() bool {
	return m == MetricCosine || m == MetricDot
}

// ParseMetric accepts the config spellings: cosine, dot, dot_product, ip.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return MetricCosine, nil
	case "dot", "dot_product", "dotproduct", "ip":
		return MetricDot, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Collection is the vector collection aggregate (immutable value object).
// A collection is never re-dimensioned: a new embedding model means a new version.
type Collection struct {
	name      string
	version   int
	dimension int
	metric    Metric
	createdAt int64
}

// New validates and creates a Collection.
// Name: ^[a-zA-Z0-9_-]+$, 1-64 chars. Version >= 1. Dimension > 0.
func New(name string, version, dimension int, metric Metric) (Collection, error) {
	if name == "" {
		return Collection{}, fmt.Errorf("collection name is required")
	}
	if len(name) > 64 {
		return Collection{}, fmt.Errorf("collection name too long (max 64)")
	}
	if !nameRegex.MatchString(name) {
		return Collection{}, fmt.Errorf("collection name must be alphanumeric with underscores and hyphens")
	}
	if version < 1 {
		return Collection{}, fmt.Errorf("collection version must be >= 1")
	}
	if dimension <= 0 {
		return Collection{}, fmt.Errorf("vector dimension must be positive")
	}
	if !metric.IsValid() {
		return Collection{}, fmt.Errorf("invalid distance metric %q", metric)
	}

	return Collection{
		name:      name,
		version:   version,
		dimension: dimension,
		metric:    metric,
		createdAt: time.Now().UnixMilli(),
	}, nil
}

// Restore rebuilds a Collection from storage without validation.
func Restore(name string, version, dimension int, metric Metric, createdAt int64) Collection {
	return Collection{
		name:      name,
		version:   version,
		dimension: dimension,
		metric:    metric,
		createdAt: createdAt,
	}
}

// Name returns the logical collection name.
func (c Collection) Name() string { return c.name }

// Version returns the schema version.
func (c Collection) Version() int { return c.version }

// Dimension returns the vector length D.
func (c Collection) Dimension() int { return c.dimension }

// Metric returns the distance metric.
func (c Collection) Metric() Metric { return c.metric }

// CreatedAt returns the creation time as unix millis.
func (c Collection) CreatedAt() int64 { return c.createdAt }

// PhysicalName is the name used in the vector database: <name>_v<version>.
func (c Collection) PhysicalName() string {
	return fmt.Sprintf("%s_v%d", c.name, c.version)
}
