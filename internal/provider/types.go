package provider

import (
	"context"
	"time"
)

// Roles accepted in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider defines the interface every chat backend satisfies.
type Provider interface {
	ID() string
	Name() string
	Descriptor() Descriptor
	// Available reports whether a credential is configured. It never touches the network.
	Available() bool
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)
	// ChatStream returns a channel of fragments that is closed when the answer ends.
	// Cancel ctx to abandon the stream early; the connection is released on return
	// of the reader goroutine.
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error)
}

// ChatRequest represents a request to a provider. An empty Model selects the
// provider's default model.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResult is the normalized answer of a non-streaming call.
type ChatResult struct {
	Content    string `json:"content"`
	ProviderID string `json:"provider"`
	ModelID    string `json:"model"`
	// TokensUsed is nil when the backend did not report usage.
	TokensUsed *int `json:"tokens_used,omitempty"`
}

// StreamChunk represents one streamed fragment. A chunk with Err set is the
// last value sent before the channel closes.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Err     error  `json:"-"`
}

// Descriptor is the static catalog entry of a provider.
type Descriptor struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Models    []string `json:"models"`
	Strengths []string `json:"strengths"`
}

// DefaultModel returns the first declared model, or "" if none.
func (d Descriptor) DefaultModel() string {
	if len(d.Models) == 0 {
		return ""
	}
	return d.Models[0]
}

// ProviderConfig holds configuration for a provider instance.
type ProviderConfig struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	Endpoint  string            `json:"endpoint"`
	APIKey    string            `json:"api_key"`
	Models    []string          `json:"models,omitempty"`
	Strengths []string          `json:"strengths,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
	Timeout   time.Duration     `json:"timeout,omitempty"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `json:"rate_limit,omitempty"`
	Burst     int     `json:"burst,omitempty"`
}

func (c ProviderConfig) descriptor() Descriptor {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	return Descriptor{
		ID:        c.ID,
		Name:      name,
		Models:    append([]string(nil), c.Models...),
		Strengths: append([]string(nil), c.Strengths...),
	}
}

func intPtr(n int) *int { return &n }
