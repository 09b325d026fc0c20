package provider

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// AnthropicProvider implements the Provider interface for Claude API.
type AnthropicProvider struct {
	base
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig, logger *zap.Logger) *AnthropicProvider {
	return &AnthropicProvider{base: newBase(cfg, "https://api.anthropic.com/v1", logger)}
}

func (p *AnthropicProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.config.APIKey,
		"anthropic-version": "2023-06-01",
	}
}

// Anthropic-specific request/response types
type anthropicRequest struct {
	Model     string         `json:"model"`
	Messages  []anthropicMsg `json:"messages"`
	System    string         `json:"system,omitempty"`
	MaxTokens int            `json:"max_tokens"`
	Stream    bool           `json:"stream,omitempty"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// convertRequest lifts system messages into the top-level system field.
func (p *AnthropicProvider) convertRequest(model string, msgs []Message, stream bool) *anthropicRequest {
	ar := &anthropicRequest{Model: model, MaxTokens: 4096, Stream: stream}
	var system []string
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		ar.Messages = append(ar.Messages, anthropicMsg{Role: m.Role, Content: m.Content})
	}
	ar.System = strings.Join(system, "\n\n")
	return ar
}

// Chat sends a non-streaming chat request to Claude.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	model, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.post(ctx, p.client, p.config.Endpoint+"/messages",
		p.convertRequest(model, req.Messages, false), p.headers())
	if err != nil {
		return nil, err
	}

	var claudeResp anthropicResponse
	if err := p.decode(resp, &claudeResp); err != nil {
		return nil, err
	}

	var sb strings.Builder
	found := false
	for _, c := range claudeResp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
			found = true
		}
	}
	if !found {
		return nil, malformed(p.config.ID, "response has no text content")
	}

	var tokens *int
	if claudeResp.Usage != nil {
		tokens = intPtr(claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens)
	}
	return p.result(sb.String(), model, tokens), nil
}

// ChatStream sends a streaming request to Claude.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error) {
	model, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.post(ctx, p.stream, p.config.Endpoint+"/messages",
		p.convertRequest(model, req.Messages, true), p.headers())
	if err != nil {
		return nil, err
	}

	ch := make(chan *StreamChunk, 64)
	go p.readSSE(ctx, resp.Body, ch, func(data []byte) (string, bool, error) {
		var ev anthropicEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return "", false, err
		}
		switch ev.Type {
		case "content_block_delta":
			return ev.Delta.Text, false, nil
		case "message_stop":
			return "", true, nil
		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			return "", true, &UpstreamError{Provider: p.config.ID, Message: msg}
		}
		return "", false, nil
	})
	return ch, nil
}
