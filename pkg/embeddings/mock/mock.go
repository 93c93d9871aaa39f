// Package mock provides a deterministic test double for embeddings.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/questforge/dialogue-engine/pkg/embeddings"
)

// Provider is a mock embeddings.Provider. Vectors maps exact input text to a
// canned vector; unmapped texts get Fallback. Both Embed and EmbedBatch are
// recorded for call verification.
type Provider struct {
	mu sync.Mutex

	// Vectors maps input text to its embedding.
	Vectors map[string][]float32

	// Fallback is returned for texts not present in Vectors.
	Fallback []float32

	// Err, if set, is returned by every call.
	Err error

	// EmbedCalls and BatchCalls record the texts of each invocation.
	EmbedCalls []string
	BatchCalls [][]string
}

var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) vector(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return v
	}
	return p.Fallback
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	recorded := make([]string, len(texts))
	copy(recorded, texts)
	p.BatchCalls = append(p.BatchCalls, recorded)

	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.vector(text)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if len(p.Fallback) > 0 {
		return len(p.Fallback)
	}
	for _, v := range p.Vectors {
		return len(v)
	}
	return 0
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return "mock-embedder"
}
