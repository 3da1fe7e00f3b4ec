package domain

import (
	"context"
	"errors"
	"fmt"
)

// Extraction errors.
var (
	// ErrUnsupportedFormat signals an unrecognized document byte signature.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument signals a document whose structure failed to parse.
	ErrCorruptDocument = errors.New("corrupt document")
)

// Embedding errors.
var (
	// ErrEmbeddingServiceUnavailable signals a transport failure, 5xx or timeout.
	ErrEmbeddingServiceUnavailable = errors.New("embedding service unavailable")
	// ErrEmbeddingRateLimited signals throttling by the embedding service.
	ErrEmbeddingRateLimited = errors.New("embedding rate limited")
	// ErrEmptyInput signals a zero-length text passed for embedding.
	ErrEmptyInput = errors.New("empty input")
	// ErrEmbeddingRejected signals a non-retryable 4xx from the embedding service (auth, bad model).
	ErrEmbeddingRejected = errors.New("embedding request rejected")
)

// Vector index errors.
var (
	// ErrCollectionNotFound signals an operation on a collection that was never ensured.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDimensionMismatch signals a vector or collection with the wrong dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrMetricMismatch signals an existing collection with a different distance metric.
	ErrMetricMismatch = errors.New("distance metric mismatch")
	// ErrInvalidArgument signals a malformed request (e.g. topK <= 0).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIndexUnavailable signals a transport failure or timeout talking to the vector database.
	ErrIndexUnavailable = errors.New("vector index unavailable")
)

// Orchestration errors.
var (
	// ErrSearchUnavailable is the only error a search caller ever sees.
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrProductNotFound signals a product id missing from the product store.
	ErrProductNotFound = errors.New("product not found")
	// ErrDocumentNotFound signals a document reference missing from the blob store.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrQueueFull signals the indexing queue rejected an event.
	ErrQueueFull = errors.New("indexing queue full")
	// ErrJobNotFound signals an unknown reindex job id.
	ErrJobNotFound = errors.New("reindex job not found")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrEmbeddingServiceUnavailable) ||
		errors.Is(err, ErrEmbeddingRateLimited) ||
		errors.Is(err, ErrIndexUnavailable)
}

// IsConfigError reports whether err means the index is misconfigured.
// These abort service start.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrMetricMismatch) ||
		errors.Is(err, ErrCollectionNotFound)
}

// Kind returns a short label for the first known sentinel in err's chain.
// Used for logs and metric labels.
func Kind(err error) string {
	kinds := []struct {
		err  error
		name string
	}{
		{ErrUnsupportedFormat, "unsupported_format"},
		{ErrCorruptDocument, "corrupt_document"},
		{ErrEmbeddingServiceUnavailable, "embedding_unavailable"},
		{ErrEmbeddingRateLimited, "embedding_rate_limited"},
		{ErrEmptyInput, "empty_input"},
		{ErrEmbeddingRejected, "embedding_rejected"},
		{ErrCollectionNotFound, "collection_not_found"},
		{ErrDimensionMismatch, "dimension_mismatch"},
		{ErrMetricMismatch, "metric_mismatch"},
		{ErrInvalidArgument, "invalid_argument"},
		{ErrIndexUnavailable, "index_unavailable"},
		{ErrProductNotFound, "product_not_found"},
		{ErrDocumentNotFound, "document_not_found"},
		{ErrQueueFull, "queue_full"},
		{ErrSearchUnavailable, "search_unavailable"},
		{ErrJobNotFound, "job_not_found"},
		{context.Canceled, "cancelled"},
		{context.DeadlineExceeded, "timeout"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// DimensionError carries the expected and actual dimensions.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch.Error(), e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(expected, actual int) error {
	return &DimensionError{Expected: expected, Actual: actual}
}
