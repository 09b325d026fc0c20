package embedding

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// APIProvider implements Provider using an OpenAI-compatible embeddings API.
type APIProvider struct {
	mu sync.Mutex
	remote
}

// NewAPIProvider creates a new APIProvider from the given Config.
func NewAPIProvider(cfg Config, logger *zap.Logger) *APIProvider {
	return &APIProvider{remote: newRemote(cfg, logger)}
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed sends texts to the OpenAI-compatible endpoint in one batch.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result apiResponse
	if err := p.post(ctx, "/embeddings", apiRequest{Model: p.model, Input: texts}, &result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(result.Data), len(texts))
	}

	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = d.Embedding
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
func (p *APIProvider) Dimension() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimension
}

// Name identifies the embedder in stats output.
func (p *APIProvider) Name() string { return "api:" + p.model }
