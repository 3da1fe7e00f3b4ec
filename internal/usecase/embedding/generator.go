// Package embedding turns product text into fixed-dimension vectors.
//
// Generator is the entry point used by the catalog service. It validates and
// truncates input, retries transient provider failures with exponential
// backoff and checks the returned dimension. The decorators below it
// (instrumentation, cache, transport) are assembled in the composition root.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/metrics"
	"github.com/kailas-cloud/catalogix/internal/retry"
)

// Generator embeds single texts and batches with retry and validation.
type Generator struct {
	inner            domain.Embedder
	dimension        int
	maxInputTokens   int
	queryInstruction string
	timeout          time.Duration
	policy           retry.Policy
	limiter          *rate.Limiter
	logger           *zap.Logger
}

// New creates a Generator. dimension <= 0 skips the dimension check.
func New(inner domain.Embedder, dimension int) *Generator {
	return &Generator{
		inner:     inner,
		dimension: dimension,
		policy:    retry.DefaultPolicy(),
		logger:    zap.NewNop(),
	}
}

// WithMaxInputTokens sets the model token limit used for truncation.
func (g *Generator) WithMaxInputTokens(n int) *Generator {
	g.maxInputTokens = n
	return g
}

// WithQueryInstruction sets the prefix EmbedQuery puts in front of search queries.
func (g *Generator) WithQueryInstruction(s string) *Generator {
	g.queryInstruction = s
	return g
}

// WithTimeout bounds every provider attempt. Zero means no per-attempt deadline.
func (g *Generator) WithTimeout(d time.Duration) *Generator {
	g.timeout = d
	return g
}

// WithRetry sets the backoff policy for transient errors.
func (g *Generator) WithRetry(p retry.Policy) *Generator {
	g.policy = p
	return g
}

// WithRateLimit throttles provider attempts to rps per second. rps <= 0 disables the limiter.
func (g *Generator) WithRateLimit(rps float64) *Generator {
	if rps <= 0 {
		g.limiter = nil
		return g
	}
	burst := max(int(rps), 1)
	g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return g
}

// WithLogger sets the logger.
func (g *Generator) WithLogger(l *zap.Logger) *Generator {
	g.logger = l
	return g
}

// Dimension returns the expected vector length.
func (g *Generator) Dimension() int { return g.dimension }

// Embed returns the vector for text.
// Errors: domain.ErrEmptyInput, domain.ErrEmbeddingRateLimited and
// domain.ErrEmbeddingServiceUnavailable once retries are exhausted,
// domain.ErrDimensionMismatch when the provider returns the wrong length.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, domain.ErrEmptyInput
	}
	text = g.truncate(text)

	var vec []float32
	err := g.withRetry(ctx, func(ctx context.Context) error {
		res, err := g.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = res.Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := g.checkDimension(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedQuery embeds a search query, prefixed with the configured query instruction.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if query == "" {
		return nil, domain.ErrEmptyInput
	}
	return g.Embed(ctx, g.queryInstruction+query)
}

// EmbedMany embeds texts in one logical batch. out[i] corresponds to texts[i].
// Any empty element fails the whole call with domain.ErrEmptyInput.
func (g *Generator) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("text %d: %w", i, domain.ErrEmptyInput)
		}
		prepared[i] = g.truncate(t)
	}

	var vecs [][]float32
	err := g.withRetry(ctx, func(ctx context.Context) error {
		res, err := domain.EmbedBatch(ctx, g.inner, prepared)
		if err != nil {
			return err
		}
		vecs = res.Embeddings
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d texts: %w",
			len(vecs), len(texts), domain.ErrEmbeddingServiceUnavailable)
	}
	for i, v := range vecs {
		if err := g.checkDimension(v); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return vecs, nil
}

func (g *Generator) truncate(text string) string {
	out, cut := Truncate(text, g.maxInputTokens)
	if cut {
		metrics.EmbeddingTruncatedTotal.Inc()
		g.logger.Debug("Embedding input truncated",
			zap.Int("max_tokens", g.maxInputTokens),
			zap.Int("bytes_before", len(text)),
			zap.Int("bytes_after", len(out)),
		)
	}
	return out
}

func (g *Generator) checkDimension(vec []float32) error {
	if g.dimension > 0 && len(vec) != g.dimension {
		return domain.NewDimensionMismatch(g.dimension, len(vec))
	}
	return nil
}

func (g *Generator) withRetry(ctx context.Context, fn retry.Func) error {
	return retry.Do(ctx, g.policy, isRetryable, func(ctx context.Context) error {
		return g.attempt(ctx, fn)
	}, func(attempt int, err error) {
		metrics.EmbeddingRetriesTotal.WithLabelValues(domain.Kind(err)).Inc()
		g.logger.Warn("Embedding attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.policy.MaxAttempts),
			zap.String("error_kind", domain.Kind(err)),
			zap.Error(err),
		)
	})
}

// attempt runs fn under the per-attempt deadline. A deadline hit that the caller
// did not impose counts as the service being unavailable.
func (g *Generator) attempt(ctx context.Context, fn retry.Func) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("embedding rate limiter: %w", err)
		}
	}

	attemptCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	err := fn(attemptCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) &&
		!errors.Is(err, domain.ErrEmbeddingServiceUnavailable) {
		return fmt.Errorf("embedding attempt timed out after %s: %v: %w",
			g.timeout, err, domain.ErrEmbeddingServiceUnavailable)
	}
	return err
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrEmbeddingServiceUnavailable) ||
		errors.Is(err, domain.ErrEmbeddingRateLimited)
}
