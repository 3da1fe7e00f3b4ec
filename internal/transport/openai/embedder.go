// Package openai talks to OpenAI-compatible embedding endpoints
// (OpenAI, Nebius, vLLM, Ollama) and translates their failures into
// the domain error taxonomy.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/metrics"
)

const defaultProvider = "openai"

// Embedder turns product and query texts into vectors through the embeddings API.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
// Dimensions is sent only when positive; models without matryoshka support reject it.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	User       string
	Provider   string // metrics label
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewEmbedder builds an Embedder. BaseURL may point at any OpenAI-compatible server.
func NewEmbedder(cfg *Config) *Embedder {
	cc := openai.DefaultConfig(cfg.APIKey)
	cc.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		cc.HTTPClient = cfg.HTTPClient
	}

	e := &Embedder{
		client:     openai.NewClientWithConfig(cc),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: max(cfg.Dimensions, 0),
		user:       cfg.User,
		provider:   cfg.Provider,
		logger:     cfg.Logger,
	}
	if e.provider == "" {
		e.provider = defaultProvider
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Model returns the configured model name.
func (e *Embedder) Model() string { return string(e.model) }

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vecs, usage, err := e.embed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    vecs[0],
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder. Embeddings[i] always belongs to texts[i].
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	vecs, usage, err := e.embed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   vecs,
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// HealthCheck lists models, which costs no tokens.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", parseAPIError(err))
	}
	return nil
}

func (e *Embedder) embed(ctx context.Context, input []string) ([][]float32, openai.Usage, error) {
	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
		Dimensions:     e.dimensions,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		mapped := parseAPIError(err)
		e.observe("error", elapsed, openai.Usage{})
		e.countError(domain.Kind(mapped))
		e.logger.Debug("embedding request failed",
			zap.String("provider", e.provider),
			zap.Int("inputs", len(input)),
			zap.Duration("elapsed", elapsed),
			zap.Error(mapped),
		)
		return nil, openai.Usage{}, mapped
	}
	e.observe("success", elapsed, resp.Usage)

	vecs, err := ordered(resp.Data, len(input))
	if err != nil {
		e.countError("malformed_response")
		return nil, openai.Usage{}, err
	}
	return vecs, resp.Usage, nil
}

// ordered places every returned vector at the position of its input.
// Providers may answer out of order; gaps or duplicates make the response unusable.
func ordered(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(data), want, domain.ErrEmbeddingServiceUnavailable)
	}
	data = slices.Clone(data)
	slices.SortFunc(data, func(a, b openai.Embedding) int { return a.Index - b.Index })

	out := make([][]float32, want)
	for i, d := range data {
		if d.Index != i {
			return nil, fmt.Errorf("embedding response index %d out of sequence: %w",
				d.Index, domain.ErrEmbeddingServiceUnavailable)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *Embedder) observe(status string, elapsed time.Duration, usage openai.Usage) {
	model := string(e.model)
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, status).Inc()
	if status != "success" {
		return
	}
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, model).Observe(elapsed.Seconds())
	if usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(usage.TotalTokens))
	}
}

func (e *Embedder) countError(kind string) {
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), kind).Inc()
}

// parseAPIError maps a go-openai error onto the domain taxonomy.
//
//	429                        -> ErrEmbeddingRateLimited
//	5xx, 408, transport errors -> ErrEmbeddingServiceUnavailable
//	other statuses             -> ErrEmbeddingRejected
//
// Caller cancellation is passed through untouched so it is never retried.
func parseAPIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("embedding request cancelled: %w", err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := nebiusDetail(reqErr.Body)
		if msg == "" {
			msg = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, msg, classify(reqErr.HTTPStatusCode))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, classify(apiErr.HTTPStatusCode))
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrEmbeddingServiceUnavailable)
}

func classify(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrEmbeddingRateLimited
	case status == 0, status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return domain.ErrEmbeddingServiceUnavailable
	default:
		return domain.ErrEmbeddingRejected
	}
}

// nebiusDetail reads {"detail": "..."}, the error shape Nebius uses instead of OpenAI's.
func nebiusDetail(body []byte) string {
	var v struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &v) != nil {
		return ""
	}
	return v.Detail
}
