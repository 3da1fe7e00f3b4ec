package embcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kailas-cloud/catalogix/internal/db"
	"github.com/kailas-cloud/catalogix/internal/domain"
)

// fakeProvider embeds a text as {len(text), 1} and records what reached it.
type fakeProvider struct {
	tokensPerText int
	err           error
	batchCalls    int
	seen          []string
}

func (p *fakeProvider) vector(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func (p *fakeProvider) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	p.seen = append(p.seen, text)
	if p.err != nil {
		return domain.EmbeddingResult{}, p.err
	}
	return domain.EmbeddingResult{
		Embedding:    p.vector(text),
		PromptTokens: p.tokensPerText,
		TotalTokens:  p.tokensPerText,
	}, nil
}

func (p *fakeProvider) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	p.batchCalls++
	p.seen = append(p.seen, texts...)
	if p.err != nil {
		return domain.BatchEmbeddingResult{}, p.err
	}
	out := domain.BatchEmbeddingResult{
		Embeddings:   make([][]float32, len(texts)),
		PromptTokens: p.tokensPerText * len(texts),
		TotalTokens:  p.tokensPerText * len(texts),
	}
	for i, t := range texts {
		out.Embeddings[i] = p.vector(t)
	}
	return out, nil
}

// memKV is an in-memory keyspace. readErr/writeErr simulate an unreachable store.
type memKV struct {
	mu       sync.Mutex
	data     map[string][]byte
	ttls     map[string]time.Duration
	readErr  error
	writeErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) put(key string, vec []float32) {
	m.mu.Lock()
	m.data[key] = db.EncodeVector(vec)
	m.mu.Unlock()
}

func (m *memKV) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var errStoreDown = errors.New("connection refused")
