package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Provider generates vector embeddings from text. Every vector a provider
// returns has length Dimension.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// Provider kinds accepted by New.
const (
	KindHash   = "hash"
	KindAPI    = "api"
	KindOllama = "ollama"
)

// DefaultDimension is the vector length of the offline embedder.
const DefaultDimension = 384

// Config holds embedding provider configuration.
type Config struct {
	Provider  string        `json:"provider" yaml:"provider" toml:"provider"` // "hash", "api" or "ollama"
	Endpoint  string        `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Model     string        `json:"model" yaml:"model" toml:"model"`
	APIKey    string        `json:"api_key" yaml:"api_key" toml:"api_key"`
	Dimension int           `json:"dimension" yaml:"dimension" toml:"dimension"`
	Timeout   time.Duration `json:"-" yaml:"-" toml:"-"`
}

// New builds the provider selected by cfg.Provider. An empty kind selects
// the offline hash embedder.
func New(cfg Config, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "", KindHash:
		return NewHashProvider(cfg.Dimension), nil
	case KindAPI:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding: api provider needs an endpoint")
		}
		return NewAPIProvider(cfg, logger), nil
	case KindOllama:
		if cfg.Endpoint == "" {
			cfg.Endpoint = "http://localhost:11434"
		}
		return NewOllamaProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: %s returned %d vectors for 1 text", p.Name(), len(vecs))
	}
	return vecs[0], nil
}
