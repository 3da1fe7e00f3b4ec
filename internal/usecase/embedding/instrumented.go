package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
	"github.com/kailas-cloud/catalogix/internal/metrics"
)

// DefaultMaxAPIBatchSize: потолок входов на один запрос к провайдеру.
const DefaultMaxAPIBatchSize = 256

// InstrumentedEmbedder sits between the provider stack (cache, HTTP client) and
// the Generator. It splits reindex pages into provider-sized requests, charges
// tokens to the request usage counter and logs failures with their kind.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	provider  string
	model     string
	batchSize int
	logger    *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. batchSize outside (0, DefaultMaxAPIBatchSize]
// falls back to DefaultMaxAPIBatchSize.
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string, batchSize int, logger *zap.Logger) *InstrumentedEmbedder {
	if batchSize <= 0 || batchSize > DefaultMaxAPIBatchSize {
		batchSize = DefaultMaxAPIBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:     inner,
		provider:  provider,
		model:     model,
		batchSize: batchSize,
		logger:    logger.With(zap.String("provider", provider), zap.String("model", model)),
	}
}

// Embed embeds a single text: a search query or one product.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	res, err := p.inner.Embed(ctx, text)
	if err != nil {
		p.failed(ctx, err, zap.Duration("duration", time.Since(start)))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	domain.UsageFromContext(ctx).Record(res.TotalTokens)
	p.log(ctx).Debug("embedding done",
		zap.Duration("duration", time.Since(start)),
		zap.Int("dimensions", len(res.Embedding)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}

// BatchEmbed embeds a reindex page, one provider request per batchSize texts.
// The first failing request fails the whole page; vectors keep input order.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	requests := 0
	for lo := 0; lo < len(texts); lo += p.batchSize {
		chunk := texts[lo:min(lo+p.batchSize, len(texts))]
		metrics.EmbeddingBatchSize.WithLabelValues(p.provider).Observe(float64(len(chunk)))

		res, err := domain.EmbedBatch(ctx, p.inner, chunk)
		if err == nil && len(res.Embeddings) != len(chunk) {
			err = fmt.Errorf("%d vectors for %d texts: %w", len(res.Embeddings), len(chunk), domain.ErrEmbeddingServiceUnavailable)
		}
		if err != nil {
			p.failed(ctx, err, zap.Int("chunk_offset", lo), zap.Int("chunk_size", len(chunk)))
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}

		requests++
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	domain.UsageFromContext(ctx).Record(out.TotalTokens)
	p.log(ctx).Debug("batch embedding done",
		zap.Duration("duration", time.Since(start)),
		zap.Int("texts", len(texts)),
		zap.Int("requests", requests),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *InstrumentedEmbedder) failed(ctx context.Context, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("error_kind", domain.Kind(err)), zap.Error(err))
	p.log(ctx).Warn("embedding request failed", fields...)
}

// log prefers the request logger so HTTP search failures carry request_id.
func (p *InstrumentedEmbedder) log(ctx context.Context) *zap.Logger {
	if l := logpkg.Or(ctx, nil); l != nil {
		return l.With(zap.String("provider", p.provider), zap.String("model", p.model))
	}
	return p.logger
}
