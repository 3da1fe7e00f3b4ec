// Package catalog keeps the vector index in step with the product store and
// answers semantic queries against it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/document"
	domprod "github.com/kailas-cloud/catalogix/internal/domain/product"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
	"github.com/kailas-cloud/catalogix/internal/metrics"
	"github.com/kailas-cloud/catalogix/internal/retry"
)

// Config holds orchestration settings.
type Config struct {
	Collection  string // physical name; with Dimension and Model it scopes the text fingerprint
	Dimension   int
	Model       string
	TopKDefault int
	MaxTopK     int
	MinScore    float64
	BatchSize   int
	Retry       retry.Policy // upsert retries on ErrIndexUnavailable
}

func (c *Config) applyDefaults() {
	if c.TopKDefault <= 0 {
		c.TopKDefault = 10
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = 100
	}
	if c.TopKDefault > c.MaxTopK {
		c.TopKDefault = c.MaxTopK
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = retry.DefaultPolicy()
	}
}

// Service is the catalog indexing orchestrator.
type Service struct {
	products  ProductStore
	documents DocumentStore
	extractor Extractor
	embedder  Embedder
	index     Index
	cfg       Config
	logger    *zap.Logger
}

// New creates the orchestrator. documents may be nil when products never reference stored files.
func New(
	products ProductStore, documents DocumentStore, extractor Extractor,
	embedder Embedder, index Index, cfg Config, logger *zap.Logger,
) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		products:  products,
		documents: documents,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		cfg:       cfg,
		logger:    logger,
	}
}

// HandleSaved runs extract, embed and upsert for one product.
// Any failure marks the product stale; the index keeps its previous record.
func (s *Service) HandleSaved(ctx context.Context, ev Event) (Outcome, error) {
	log := s.logger.With(logpkg.ProductID(ev.ProductID))

	p, err := s.products.Get(ctx, ev.ProductID)
	if err != nil {
		metrics.IndexingTotal.WithLabelValues(string(EventSaved), string(OutcomeStale)).Inc()
		log.Error("load product failed", zap.String("kind", domain.Kind(err)), zap.Error(err))
		if !errors.Is(err, domain.ErrProductNotFound) {
			s.markStale(ctx, log, ev.ProductID, err)
		}
		return OutcomeStale, fmt.Errorf("load product %s: %w", ev.ProductID, err)
	}

	outcome, err := s.indexProduct(ctx, log, p, ev)
	metrics.IndexingTotal.WithLabelValues(string(EventSaved), string(outcome)).Inc()
	return outcome, err
}

func (s *Service) indexProduct(ctx context.Context, log *zap.Logger, p domprod.Product, ev Event) (Outcome, error) {
	start := time.Now()

	docText, err := s.documentText(ctx, p, ev)
	if err != nil {
		return s.fail(ctx, log, p.ID(), "extract", err)
	}

	text, hash, err := s.prepare(p, docText)
	if err != nil {
		return s.fail(ctx, log, p.ID(), "prepare", err)
	}
	if !ev.Force && unchanged(p, hash) {
		log.Debug("text unchanged, skipping")
		return OutcomeSkipped, nil
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return s.fail(ctx, log, p.ID(), "embed", err)
	}

	if err := s.upsert(ctx, p, vec); err != nil {
		return s.fail(ctx, log, p.ID(), "upsert", err)
	}

	if err := s.products.MarkIndexed(ctx, p.ID(), hash); err != nil {
		// запись в индексе уже новая, статус догонит reconciler
		log.Error("mark indexed failed", zap.Error(err))
		return OutcomeIndexed, fmt.Errorf("mark indexed %s: %w", p.ID(), err)
	}

	log.Info("product indexed", zap.Duration("duration", time.Since(start)))
	return OutcomeIndexed, nil
}

// HandleDeleted removes the product's record. Failures are logged and never returned:
// a leftover record is filtered out at search time.
func (s *Service) HandleDeleted(ctx context.Context, id string) {
	if err := s.index.Delete(ctx, s.cfg.Collection, id); err != nil {
		metrics.IndexingTotal.WithLabelValues(string(EventDeleted), "delete_failed").Inc()
		s.logger.Warn("delete from index failed",
			logpkg.ProductID(id),
			zap.String("kind", domain.Kind(err)),
			zap.Error(err),
		)
		return
	}
	metrics.IndexingTotal.WithLabelValues(string(EventDeleted), "deleted").Inc()
	s.logger.Info("product removed from index", logpkg.ProductID(id))
}

// MarkStale flags a product whose event could not be processed.
func (s *Service) MarkStale(ctx context.Context, id string, cause error) {
	s.markStale(ctx, logpkg.Or(ctx, s.logger.With(logpkg.ProductID(id))), id, cause)
}

// documentText resolves the document for a saved event: inline bytes first,
// then the event reference, then the product's stored reference.
func (s *Service) documentText(ctx context.Context, p domprod.Product, ev Event) (string, error) {
	var (
		doc document.Document
		err error
	)
	switch {
	case len(ev.Document) > 0:
		doc, err = document.New(ev.Document, ev.ContentType)
	case ev.DocumentRef != "":
		doc, err = s.fetch(ctx, ev.DocumentRef)
	case p.DocumentRef() != "":
		doc, err = s.fetch(ctx, p.DocumentRef())
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}

	out, err := s.extractor.Extract(doc)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (s *Service) fetch(ctx context.Context, ref string) (document.Document, error) {
	if s.documents == nil {
		return document.Document{}, fmt.Errorf("no document store configured for %q: %w", ref, domain.ErrDocumentNotFound)
	}
	return s.documents.Fetch(ctx, ref)
}

// prepare builds the embedding input and its fingerprint. The fingerprint also
// covers the target collection, dimension and model, so moving to a new
// collection version or model re-indexes everything.
func (s *Service) prepare(p domprod.Product, docText string) (string, string, error) {
	text := p.IndexableText(docText)
	if strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("product %s has no indexable text: %w", p.ID(), domain.ErrEmptyInput)
	}
	return text, domain.Fingerprint(s.cfg.Collection, strconv.Itoa(s.cfg.Dimension), s.cfg.Model, text), nil
}

func (s *Service) upsert(ctx context.Context, p domprod.Product, vec []float32) error {
	rec, err := record.New(p.ID(), vec, p.Payload())
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return retry.Do(ctx, s.cfg.Retry, isIndexTransient, func(ctx context.Context) error {
		return s.index.Upsert(ctx, s.cfg.Collection, rec)
	})
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, id, stage string, err error) (Outcome, error) {
	log.Error("indexing failed",
		zap.String("stage", stage),
		zap.String("kind", domain.Kind(err)),
		zap.Error(err),
	)
	s.markStale(ctx, log, id, err)
	return OutcomeStale, fmt.Errorf("%s %s: %w", stage, id, err)
}

func (s *Service) markStale(ctx context.Context, log *zap.Logger, id string, cause error) {
	// отмена запроса не должна оставить продукт без отметки
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.products.MarkStale(ctx, id, domain.Kind(cause)); err != nil {
		log.Error("mark stale failed", zap.Error(err))
	}
}

func unchanged(p domprod.Product, hash string) bool {
	return p.IndexStatus() == domprod.StatusIndexed && p.IndexHash() == hash
}

func isIndexTransient(err error) bool {
	return errors.Is(err, domain.ErrIndexUnavailable)
}
