package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/document"
	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
	"github.com/kailas-cloud/catalogix/internal/usecase/catalog"
	healthuc "github.com/kailas-cloud/catalogix/internal/usecase/health"
)

// Searcher answers product searches.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]catalog.Result, error)
}

// EventQueue accepts product lifecycle events without blocking.
type EventQueue interface {
	Enqueue(ctx context.Context, ev catalog.Event) error
}

// Jobs manages background reindex runs.
type Jobs interface {
	Start(req catalog.ReindexRequest) catalog.Job
	Get(id string) (catalog.Job, error)
	Cancel(id string) (catalog.Job, error)
}

// Extractor turns an uploaded document into text.
type Extractor interface {
	Extract(doc document.Document) (document.ExtractedText, error)
}

// HealthChecker aggregates component checks.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements ServerInterface on top of the catalog use cases.
type Server struct {
	search        Searcher
	events        EventQueue
	jobs          Jobs
	extractor     Extractor
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	events EventQueue,
	jobs Jobs,
	extractor Extractor,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:    search,
		events:    events,
		jobs:      jobs,
		extractor: extractor,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		queueFullHandler,
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, ErrorCodeInvalidArgument),
		sentinelHandler(domain.ErrProductNotFound, http.StatusNotFound, ErrorCodeProductNotFound),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, ErrorCodeDocumentNotFound),
		sentinelHandler(domain.ErrJobNotFound, http.StatusNotFound, ErrorCodeJobNotFound),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, ErrorCodeUnsupportedFormat),
		sentinelHandler(domain.ErrCorruptDocument, http.StatusUnprocessableEntity, ErrorCodeCorruptDocument),
		sentinelHandler(domain.ErrSearchUnavailable, http.StatusServiceUnavailable, ErrorCodeSearchUnavailable),
	}
	return s
}

// ProductSaved handles POST /events/product-saved.
func (s *Server) ProductSaved(w http.ResponseWriter, r *http.Request) {
	var req ProductSavedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ev := catalog.Event{
		Kind:        catalog.EventSaved,
		ProductID:   req.ProductID,
		Document:    req.Document,
		ContentType: req.ContentType,
		DocumentRef: req.DocumentRef,
		Force:       req.Force,
	}
	s.enqueue(w, r, ev)
}

// ProductDeleted handles POST /events/product-deleted.
func (s *Server) ProductDeleted(w http.ResponseWriter, r *http.Request) {
	var req ProductDeletedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.enqueue(w, r, catalog.Event{Kind: catalog.EventDeleted, ProductID: req.ProductID})
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, ev catalog.Event) {
	ctx := logpkg.With(r.Context(), logpkg.ProductID(ev.ProductID))
	if err := s.events.Enqueue(ctx, ev); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EventAccepted{ProductID: ev.ProductID, Status: "queued"})
}

// SearchProducts handles GET /search.
func (s *Server) SearchProducts(w http.ResponseWriter, r *http.Request, params SearchProductsParams) {
	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.search.Search(ctx, derefString(params.Q), derefInt(params.TopK))
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]SearchResultItem, len(results))
	for i, res := range results {
		items[i] = resultToItem(res)
	}
	writeJSON(w, http.StatusOK, SearchResultListResponse{Items: items, Count: len(items)})
}

// StartReindex handles POST /reindex.
func (s *Server) StartReindex(w http.ResponseWriter, r *http.Request) {
	var req ReindexRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	job := s.jobs.Start(catalog.ReindexRequest{
		IDs:       req.IDs,
		StaleOnly: req.StaleOnly,
		Force:     req.Force,
	})
	w.Header().Set("Location", "/reindex/"+job.ID)
	writeJSON(w, http.StatusAccepted, jobToResponse(job))
}

// GetReindex handles GET /reindex/{job}.
func (s *Server) GetReindex(w http.ResponseWriter, r *http.Request, job JobID) {
	if !validJobID(w, job) {
		return
	}
	j, err := s.jobs.Get(job)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(j))
}

// CancelReindex handles DELETE /reindex/{job}.
func (s *Server) CancelReindex(w http.ResponseWriter, r *http.Request, job JobID) {
	if !validJobID(w, job) {
		return
	}
	j, err := s.jobs.Cancel(job)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(j))
}

// ExtractDocument handles POST /extract. The request body is the raw document.
func (s *Server) ExtractDocument(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, document.MaxSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
				fmt.Sprintf("document exceeds %d bytes", document.MaxSize))
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "failed to read request body")
		return
	}

	doc, err := document.New(data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	out, err := s.extractor.Extract(doc)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExtractResponse{
		Text:      out.Text,
		PageCount: out.PageCount,
		Metadata:  out.Metadata,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	// degraded остаётся 200: поиск и индексация частично работают
	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// ParamErrorHandler answers parameter binding failures.
func ParamErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	var pe *InvalidParamFormatError
	if errors.As(err, &pe) {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid parameter "+pe.ParamName)
		return
	}
	writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid request")
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Calls > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func validJobID(w http.ResponseWriter, id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "job id must be a UUID")
		return false
	}
	return true
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidArgument,
		domain.ErrProductNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrJobNotFound,
		domain.ErrUnsupportedFormat,
		domain.ErrCorruptDocument,
		domain.ErrQueueFull,
		domain.ErrSearchUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// queueFullHandler asks the caller to retry; the product is already marked stale.
func queueFullHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrQueueFull) {
		return false
	}
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusServiceUnavailable, ErrorCodeQueueFull, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.String("kind", domain.Kind(err)), zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
