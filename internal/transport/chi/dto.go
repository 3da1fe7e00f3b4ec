package chi

import (
	"time"

	"github.com/kailas-cloud/catalogix/internal/usecase/catalog"
)

// ErrorCode is the machine-readable error label of an ErrorResponse.
type ErrorCode string

const (
	ErrorCodeBadRequest        ErrorCode = "bad_request"
	ErrorCodeUnauthorized      ErrorCode = "unauthorized"
	ErrorCodeInvalidArgument   ErrorCode = "invalid_argument"
	ErrorCodeProductNotFound   ErrorCode = "product_not_found"
	ErrorCodeDocumentNotFound  ErrorCode = "document_not_found"
	ErrorCodeJobNotFound       ErrorCode = "job_not_found"
	ErrorCodeUnsupportedFormat ErrorCode = "unsupported_format"
	ErrorCodeCorruptDocument   ErrorCode = "corrupt_document"
	ErrorCodePayloadTooLarge   ErrorCode = "payload_too_large"
	ErrorCodeQueueFull         ErrorCode = "queue_full"
	ErrorCodeSearchUnavailable ErrorCode = "search_unavailable"
	ErrorCodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ProductSavedRequest is the body of POST /events/product-saved.
// Document is base64 in JSON.
type ProductSavedRequest struct {
	ProductID   string `json:"product_id"`
	Document    []byte `json:"document,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	DocumentRef string `json:"document_ref,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// ProductDeletedRequest is the body of POST /events/product-deleted.
type ProductDeletedRequest struct {
	ProductID string `json:"product_id"`
}

// EventAccepted acknowledges a queued event.
type EventAccepted struct {
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
}

// SearchResultItem is one hydrated hit.
type SearchResultItem struct {
	ID          string  `json:"id"`
	Slug        string  `json:"slug"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	AIGenerated bool    `json:"ai_generated"`
	Score       float64 `json:"score"`
}

// SearchResultListResponse is the body of GET /search.
type SearchResultListResponse struct {
	Items []SearchResultItem `json:"items"`
	Count int                `json:"count"`
}

// ReindexRequest is the body of POST /reindex. An empty body reindexes everything.
type ReindexRequest struct {
	IDs       []string `json:"ids,omitempty"`
	StaleOnly bool     `json:"stale_only,omitempty"`
	Force     bool     `json:"force,omitempty"`
}

// JobResponse describes a reindex job.
type JobResponse struct {
	ID         string            `json:"id"`
	Status     catalog.JobStatus `json:"status"`
	Total      int               `json:"total"`
	Indexed    int               `json:"indexed"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// ExtractResponse is the body of POST /extract.
type ExtractResponse struct {
	Text      string            `json:"text"`
	PageCount int               `json:"page_count,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func jobToResponse(j catalog.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Status:     j.Status,
		Total:      j.Report.Total,
		Indexed:    j.Report.Indexed,
		Skipped:    j.Report.Skipped,
		Failed:     j.Report.Failed,
		Error:      j.Error,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

func resultToItem(r catalog.Result) SearchResultItem {
	p := r.Product
	return SearchResultItem{
		ID:          p.ID(),
		Slug:        p.Slug(),
		Name:        p.Name(),
		Description: p.Description(),
		AIGenerated: p.AIGenerated(),
		Score:       r.Score,
	}
}
