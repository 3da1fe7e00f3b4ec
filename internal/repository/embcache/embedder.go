// Package embcache keeps product and query embeddings in the KV store so that
// reindexing unchanged text costs no provider tokens.
package embcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/db"
	"github.com/kailas-cloud/catalogix/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "emb_cache:"

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder wraps a provider with a read-through cache.
// Entries are keyed by the fingerprint of model, dimension and text, so
// changing either setting never serves vectors from the previous one.
type CachedEmbedder struct {
	inner   domain.Embedder
	kv      kv
	model   string
	dim     int
	ttl     time.Duration
	lookups *prometheus.CounterVec
	logger  *zap.Logger
}

// New builds the decorator. dim is the configured vector length; 0 skips the
// length check on hits. lookups must carry a single "result" label (hit or
// miss) and may be nil. ttl <= 0 keeps entries forever.
func New(
	inner domain.Embedder,
	store kv,
	model string,
	dim int,
	ttl time.Duration,
	lookups *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:   inner,
		kv:      store,
		model:   model,
		dim:     dim,
		ttl:     ttl,
		lookups: lookups,
		logger:  logger.With(zap.String("component", "embcache")),
	}
}

// Embed implements domain.Embedder. A hit reports zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	if vec, ok := c.load(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.save(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed implements domain.BatchEmbedder. Only the misses reach the
// provider, in a single call; Embeddings[i] belongs to texts[i].
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	keys := make([]string, len(texts))
	var pending []int
	for i, text := range texts {
		keys[i] = c.key(text)
		vec, ok := c.load(ctx, keys[i])
		if !ok {
			pending = append(pending, i)
			continue
		}
		out.Embeddings[i] = vec
	}
	if len(pending) == 0 {
		return out, nil
	}

	misses := make([]string, len(pending))
	for j, i := range pending {
		misses[j] = texts[i]
	}
	res, err := domain.EmbedBatch(ctx, c.inner, misses)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(misses), err)
	}
	if got := len(res.Embeddings); got != len(misses) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("provider returned %d vectors for %d texts: %w",
			got, len(misses), domain.ErrEmbeddingServiceUnavailable)
	}

	for j, i := range pending {
		out.Embeddings[i] = res.Embeddings[j]
		c.save(ctx, keys[i], res.Embeddings[j])
	}
	out.PromptTokens, out.TotalTokens = res.PromptTokens, res.TotalTokens
	return out, nil
}

// HealthCheck passes through to the provider when it has one.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	hc, ok := c.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	return hc.HealthCheck(ctx)
}

func (c *CachedEmbedder) key(text string) string {
	return keyPrefix + domain.Fingerprint(c.model, strconv.Itoa(c.dim), text)
}

// load never fails: store errors, undecodable entries and vectors of the
// wrong length count as misses.
func (c *CachedEmbedder) load(ctx context.Context, key string) ([]float32, bool) {
	vec, err := c.read(ctx, key)
	switch {
	case err != nil && !errors.Is(err, db.ErrKeyNotFound):
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	case err == nil && len(vec) > 0 && (c.dim == 0 || len(vec) == c.dim):
		c.count("hit")
		return vec, true
	case err == nil && len(vec) > 0:
		c.logger.Warn("cached vector has wrong length, ignoring",
			zap.String("key", key), zap.Int("got", len(vec)), zap.Int("want", c.dim))
	}
	c.count("miss")
	return nil, false
}

func (c *CachedEmbedder) read(ctx context.Context, key string) ([]float32, error) {
	raw, err := c.kv.Get(ctx, key)
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	return db.DecodeVector(raw)
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32) {
	if err := c.kv.SetWithTTL(ctx, key, db.EncodeVector(vec), c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}
