package embedding

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// OllamaProvider implements Provider using an Ollama embeddings endpoint,
// one request per text.
type OllamaProvider struct {
	mu sync.Mutex
	remote
}

// NewOllamaProvider creates a new OllamaProvider from the given Config.
func NewOllamaProvider(cfg Config, logger *zap.Logger) *OllamaProvider {
	return &OllamaProvider{remote: newRemote(cfg, logger)}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed embeds each text in turn and stops at the first failure.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var result ollamaResponse
		if err := p.post(ctx, "/api/embeddings", ollamaRequest{Model: p.model, Prompt: text}, &result); err != nil {
			return nil, err
		}
		embeddings = append(embeddings, result.Embedding)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(embeddings); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Dimension returns the configured dimension, or the one learned from the
// first response.
func (p *OllamaProvider) Dimension() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimension
}

// Name identifies the embedder in stats output.
func (p *OllamaProvider) Name() string { return "ollama:" + p.model }
