package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	domprod "github.com/kailas-cloud/catalogix/internal/domain/product"
	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
	"github.com/kailas-cloud/catalogix/internal/metrics"
)

// ReindexRequest selects the products of a bulk run.
type ReindexRequest struct {
	IDs       []string // empty: every product
	StaleOnly bool     // only products not marked indexed
	Force     bool     // ignore stored fingerprints
	// SkipErrors leaves out products whose last failure has one of these kinds.
	SkipErrors []string
}

// ReindexReport summarizes a bulk run. A cancelled run reports the work done so far.
type ReindexReport struct {
	Total    int           `json:"total"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

// Progress receives the running report after every product.
type Progress func(ReindexReport)

type pending struct {
	product domprod.Product
	text    string
	hash    string
}

// Reindex pages through the selected products, embeds each page with one batched
// call and upserts product by product. Cancellation is checked between products;
// a cancelled run returns the partial report and context.Canceled. Completed
// upserts are never undone.
func (s *Service) Reindex(ctx context.Context, req ReindexRequest, progress Progress) (ReindexReport, error) {
	start := time.Now()
	var report ReindexReport
	emit := func() {
		report.Duration = time.Since(start)
		if progress != nil {
			progress(report)
		}
	}

	filter := domprod.Filter{IDs: req.IDs, StaleOnly: req.StaleOnly, SkipErrors: req.SkipErrors}
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			emit()
			return report, err
		}

		page, next, err := s.products.List(ctx, filter, cursor, s.cfg.BatchSize)
		if err != nil {
			emit()
			return report, err
		}

		if err := s.reindexPage(ctx, page, req.Force, &report, emit); err != nil {
			emit()
			return report, err
		}

		if next == "" {
			break
		}
		cursor = next
	}

	emit()
	s.logger.Info("reindex finished",
		zap.Int("total", report.Total),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// reindexPage only returns an error on cancellation. Per-product failures mark the product stale.
func (s *Service) reindexPage(ctx context.Context, page []domprod.Product, force bool, report *ReindexReport, emit func()) error {
	batch := make([]pending, 0, len(page))
	for _, p := range page {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Total++
		log := s.logger.With(logpkg.ProductID(p.ID()))

		docText, err := s.documentText(ctx, p, Event{Kind: EventSaved, ProductID: p.ID()})
		if err == nil {
			var text, hash string
			text, hash, err = s.prepare(p, docText)
			if err == nil {
				if !force && unchanged(p, hash) {
					report.Skipped++
					metrics.IndexingTotal.WithLabelValues("reindex", string(OutcomeSkipped)).Inc()
					continue
				}
				batch = append(batch, pending{product: p, text: text, hash: hash})
				continue
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, _ = s.fail(ctx, log, p.ID(), "prepare", err)
		report.Failed++
		metrics.IndexingTotal.WithLabelValues("reindex", string(OutcomeStale)).Inc()
	}
	if len(batch) == 0 {
		emit()
		return nil
	}

	texts := make([]string, len(batch))
	for i, b := range batch {
		texts[i] = b.text
	}
	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, b := range batch {
			_, _ = s.fail(ctx, s.logger.With(logpkg.ProductID(b.product.ID())), b.product.ID(), "embed", err)
			report.Failed++
			metrics.IndexingTotal.WithLabelValues("reindex", string(OutcomeStale)).Inc()
		}
		emit()
		return nil
	}

	for i, b := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := s.logger.With(logpkg.ProductID(b.product.ID()))

		if err := s.upsert(ctx, b.product, vectors[i]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_, _ = s.fail(ctx, log, b.product.ID(), "upsert", err)
			report.Failed++
			metrics.IndexingTotal.WithLabelValues("reindex", string(OutcomeStale)).Inc()
			emit()
			continue
		}
		if err := s.products.MarkIndexed(ctx, b.product.ID(), b.hash); err != nil {
			log.Error("mark indexed failed", zap.String("kind", domain.Kind(err)), zap.Error(err))
		}
		report.Indexed++
		metrics.IndexingTotal.WithLabelValues("reindex", string(OutcomeIndexed)).Inc()
		emit()
	}
	return nil
}
