package provider

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// BytezProvider implements the Provider interface for the Bytez model API.
// Its stream is plain text, not SSE.
type BytezProvider struct {
	base
}

// NewBytezProvider creates a new Bytez provider.
func NewBytezProvider(cfg ProviderConfig, logger *zap.Logger) *BytezProvider {
	return &BytezProvider{base: newBase(cfg, "https://api.bytez.com/models/v2", logger)}
}

type bytezRequest struct {
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream,omitempty"`
	Params   map[string]any `json:"params"`
}

type bytezResponse struct {
	Error  *string         `json:"error"`
	Output json.RawMessage `json:"output"`
}

// bytezContent normalizes the output field, which may be a string, an object
// with a content field, or a list of strings.
func bytezContent(raw json.RawMessage) (string, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, true
	}
	var obj struct {
		Content *string `json:"content"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Content != nil {
		return *obj.Content, true
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		if len(list) == 0 {
			return "", true
		}
		return list[0], true
	}
	return "", false
}

// stripThinking drops a reasoning preamble terminated by </think>.
func stripThinking(s string) string {
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

func (p *BytezProvider) headers() map[string]string {
	return map[string]string{"Authorization": p.config.APIKey}
}

// Chat sends a non-streaming request.
func (p *BytezProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	model, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.post(ctx, p.client, p.config.Endpoint+"/"+model, bytezRequest{
		Messages: req.Messages,
		Params:   map[string]any{"max_new_tokens": 2048, "temperature": 0.7},
	}, p.headers())
	if err != nil {
		return nil, err
	}

	var br bytezResponse
	if err := p.decode(resp, &br); err != nil {
		return nil, err
	}
	if br.Error != nil && *br.Error != "" {
		return nil, &UpstreamError{Provider: p.config.ID, Status: 200, Message: *br.Error}
	}
	if len(br.Output) == 0 {
		return nil, malformed(p.config.ID, "missing output")
	}
	content, ok := bytezContent(br.Output)
	if !ok {
		return nil, malformed(p.config.ID, "unexpected output shape")
	}
	return p.result(stripThinking(content), model, nil), nil
}

// ChatStream relays the plain-text stream as it arrives.
func (p *BytezProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error) {
	model, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.post(ctx, p.stream, p.config.Endpoint+"/"+model, bytezRequest{
		Messages: req.Messages,
		Stream:   true,
		Params:   map[string]any{"max_new_tokens": 2048},
	}, p.headers())
	if err != nil {
		return nil, err
	}

	ch := make(chan *StreamChunk, 64)
	go p.readRaw(ctx, resp.Body, ch)
	return ch, nil
}
