package provider

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Adapter type names accepted by New.
const (
	TypeOpenAI      = "openai"
	TypeAnthropic   = "anthropic"
	TypeGemini      = "gemini"
	TypeHuggingFace = "huggingface"
	TypeBytez       = "bytez"
)

// New builds the adapter matching cfg.Type.
func New(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Type {
	case TypeOpenAI:
		return NewOpenAIProvider(cfg, logger), nil
	case TypeAnthropic:
		return NewAnthropicProvider(cfg, logger), nil
	case TypeGemini:
		return NewGeminiProvider(cfg, logger), nil
	case TypeHuggingFace:
		return NewHuggingFaceProvider(cfg, logger), nil
	case TypeBytez:
		return NewBytezProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for %s", cfg.Type, cfg.ID)
	}
}

// Registry holds the configured providers in declaration order.
type Registry struct {
	providers map[string]Provider
	order     []string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider. Registering an existing ID replaces it in place.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
	r.logger.Info("registered provider",
		zap.String("id", p.ID()),
		zap.String("name", p.Name()),
		zap.Bool("available", p.Available()))
}

// Get returns a provider by ID.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// List returns all registered providers in declaration order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.providers[id])
	}
	return result
}

// Available returns the IDs of providers with a usable credential, in
// declaration order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, id := range r.order {
		if r.providers[id].Available() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Descriptors returns the catalog entries of all registered providers.
func (r *Registry) Descriptors() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Descriptor, len(r.providers))
	for id, p := range r.providers {
		out[id] = p.Descriptor()
	}
	return out
}
