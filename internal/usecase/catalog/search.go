package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	domprod "github.com/kailas-cloud/catalogix/internal/domain/product"
	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
	"github.com/kailas-cloud/catalogix/internal/metrics"
)

// Result is one hydrated search hit.
type Result struct {
	Product domprod.Product
	Score   float64
}

// Search embeds the query, searches the index and hydrates hits from the product store.
// Hits whose product no longer exists are dropped. Every failure surfaces as
// domain.ErrSearchUnavailable; the real kind only reaches the log.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		metrics.SearchRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("query is required: %w", domain.ErrInvalidArgument)
	}
	topK = s.clampTopK(topK)

	log := logpkg.Or(ctx, s.logger)
	start := time.Now()
	results, err := s.search(ctx, query, topK)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		log.Error("search failed",
			zap.String("kind", domain.Kind(err)),
			zap.Int("top_k", topK),
			zap.Error(err),
		)
		return nil, domain.ErrSearchUnavailable
	}

	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	log.Debug("search done",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func (s *Service) search(ctx context.Context, query string, topK int) ([]Result, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Search(ctx, s.cfg.Collection, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	if len(hits) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		p, ok := products[h.ID]
		if !ok {
			metrics.SearchUnresolvedHitsTotal.Inc()
			s.logger.Debug("dropping hit for missing product", logpkg.ProductID(h.ID))
			continue
		}
		if h.Score < s.cfg.MinScore {
			continue
		}
		results = append(results, Result{Product: p, Score: h.Score})
	}
	return results, nil
}

func (s *Service) clampTopK(topK int) int {
	if topK <= 0 {
		return s.cfg.TopKDefault
	}
	return min(topK, s.cfg.MaxTopK)
}
