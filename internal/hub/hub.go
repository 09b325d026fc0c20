// Package hub answers chat requests by routing each query to a provider.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nidhogg/modelhub/internal/provider"
	"github.com/nidhogg/modelhub/internal/rag"
	"github.com/nidhogg/modelhub/internal/router"
	"go.uber.org/zap"
)

// ErrEmptyMessage is returned for a chat request without text.
var ErrEmptyMessage = errors.New("message is empty")

// ErrUnknownProvider is returned when a provider ID is not registered.
var ErrUnknownProvider = errors.New("provider not found")

// Retriever supplies knowledge-base context for a question.
type Retriever interface {
	Query(ctx context.Context, question string, k int) (*rag.Answer, error)
}

// ChatRequest is one user turn plus the conversation so far.
type ChatRequest struct {
	Message           string             `json:"message"`
	History           []provider.Message `json:"conversation_history,omitempty"`
	PreferredProvider string             `json:"preferred_provider,omitempty"`
	// UseContext prepends passages retrieved for Message as a system message.
	UseContext bool `json:"use_context,omitempty"`
	TopK       int  `json:"top_k,omitempty"`
}

// ChatResponse is the answer to a ChatRequest.
type ChatResponse struct {
	Response           string          `json:"response"`
	Provider           string          `json:"provider"`
	Model              string          `json:"model"`
	Category           router.Category `json:"category"`
	RoutingExplanation string          `json:"routing_explanation"`
	TokensUsed         *int            `json:"tokens_used,omitempty"`
}

// ProviderStatus is the public catalog entry of a provider.
type ProviderStatus struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	Models    []string `json:"models"`
	Strengths []string `json:"strengths"`
}

// Service composes the provider registry with the router.
type Service struct {
	registry  *provider.Registry
	router    *router.Router
	retriever Retriever
	logger    *zap.Logger
}

// New creates a Service. retriever may be nil.
func New(registry *provider.Registry, r *router.Router, retriever Retriever, logger *zap.Logger) *Service {
	return &Service{registry: registry, router: r, retriever: retriever, logger: logger}
}

// Route picks a provider for query among the currently available ones.
func (s *Service) Route(query, preferred string) (router.Selection, error) {
	return s.router.Route(query, preferred, s.registry.Available())
}

// Explain describes a routing decision.
func (s *Service) Explain(sel router.Selection) string {
	return s.router.Explain(sel.Provider, sel.Category)
}

// Classify returns the category of query.
func (s *Service) Classify(query string) router.Category {
	return s.router.Classifier().Classify(query)
}

// Chat routes the request and waits for the full answer.
func (s *Service) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	sel, p, creq, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := p.Chat(ctx, creq)
	if err != nil {
		s.logger.Warn("chat failed",
			zap.String("provider", sel.Provider),
			zap.String("model", sel.Model),
			zap.Error(err))
		return nil, err
	}

	return &ChatResponse{
		Response:           res.Content,
		Provider:           sel.Provider,
		Model:              sel.Model,
		Category:           sel.Category,
		RoutingExplanation: s.Explain(sel),
		TokensUsed:         res.TokensUsed,
	}, nil
}

// Stream routes the request and returns the selection with the fragment
// stream. Cancel ctx to abandon the stream.
func (s *Service) Stream(ctx context.Context, req *ChatRequest) (router.Selection, <-chan *provider.StreamChunk, error) {
	sel, p, creq, err := s.prepare(ctx, req)
	if err != nil {
		return sel, nil, err
	}
	ch, err := p.ChatStream(ctx, creq)
	if err != nil {
		s.logger.Warn("stream failed to start",
			zap.String("provider", sel.Provider),
			zap.Error(err))
		return sel, nil, err
	}
	return sel, ch, nil
}

func (s *Service) prepare(ctx context.Context, req *ChatRequest) (router.Selection, provider.Provider, *provider.ChatRequest, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return router.Selection{}, nil, nil, ErrEmptyMessage
	}

	sel, err := s.Route(req.Message, req.PreferredProvider)
	if err != nil {
		return sel, nil, nil, err
	}
	p, ok := s.registry.Get(sel.Provider)
	if !ok {
		return sel, nil, nil, fmt.Errorf("%s: %w", sel.Provider, ErrUnknownProvider)
	}

	var contextText string
	if req.UseContext && s.retriever != nil {
		ans, err := s.retriever.Query(ctx, req.Message, req.TopK)
		if err != nil {
			s.logger.Warn("context retrieval failed", zap.Error(err))
		} else {
			contextText = rag.FormatContext(ans)
		}
	}

	return sel, p, &provider.ChatRequest{
		Model:    sel.Model,
		Messages: buildMessages(req.History, contextText, req.Message),
	}, nil
}

// buildMessages orders a conversation as: retrieved context, prior turns,
// then the new user message.
func buildMessages(history []provider.Message, contextText, message string) []provider.Message {
	msgs := make([]provider.Message, 0, len(history)+2)
	if contextText != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: contextText})
	}
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case provider.RoleSystem, provider.RoleUser, provider.RoleAssistant:
			msgs = append(msgs, m)
		}
	}
	return append(msgs, provider.Message{Role: provider.RoleUser, Content: message})
}

// Providers lists every registered provider in declaration order.
func (s *Service) Providers() []ProviderStatus {
	list := s.registry.List()
	out := make([]ProviderStatus, 0, len(list))
	for _, p := range list {
		out = append(out, status(p))
	}
	return out
}

// Provider returns the catalog entry for one provider.
func (s *Service) Provider(id string) (ProviderStatus, bool) {
	p, ok := s.registry.Get(id)
	if !ok {
		return ProviderStatus{}, false
	}
	return status(p), true
}

// Available lists the IDs of providers with credentials.
func (s *Service) Available() []string {
	return s.registry.Available()
}

func status(p provider.Provider) ProviderStatus {
	d := p.Descriptor()
	return ProviderStatus{
		ID:        d.ID,
		Name:      d.Name,
		Available: p.Available(),
		Models:    d.Models,
		Strengths: d.Strengths,
	}
}
