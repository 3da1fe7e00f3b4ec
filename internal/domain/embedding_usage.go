package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage accumulates the tokens spent while serving one request.
// The HTTP handler installs it, the embedding generator adds to it.
type EmbeddingUsage struct {
	TotalTokens int
	Calls       int
}

// NewContextWithUsage attaches a fresh usage collector to ctx.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext returns the collector or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// Record adds one embedding call. Safe on a nil receiver.
func (u *EmbeddingUsage) Record(tokens int) {
	if u == nil {
		return
	}
	u.Calls++
	u.TotalTokens += tokens
}
