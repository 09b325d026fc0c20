package provider

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// headerPrefix marks Extra entries that are sent as HTTP headers,
// e.g. "header:HTTP-Referer" for OpenRouter.
const headerPrefix = "header:"

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs
// (OpenAI, Groq, Cerebras, DeepSeek, OpenRouter, Perplexity).
type OpenAIProvider struct {
	base
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	return &OpenAIProvider{base: newBase(cfg, "https://api.openai.com/v1", logger)}
}

// chatURL builds the chat completions URL. If Extra["path_model"] is "true",
// the model name is inserted into the URL path.
func (p *OpenAIProvider) chatURL(model string) string {
	if p.config.Extra["path_model"] == "true" && model != "" {
		return p.config.Endpoint + "/" + model + "/chat/completions"
	}
	return p.config.Endpoint + "/chat/completions"
}

func (p *OpenAIProvider) headers() map[string]string {
	h := map[string]string{"Authorization": "Bearer " + p.config.APIKey}
	for k, v := range p.config.Extra {
		if strings.HasPrefix(k, headerPrefix) {
			h[strings.TrimPrefix(k, headerPrefix)] = v
		}
	}
	return h
}

type openAIRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens *int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Chat sends a non-streaming chat request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	model, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.post(ctx, p.client, p.chatURL(model), openAIRequest{
		Model:     model,
		Messages:  req.Messages,
		MaxTokens: 4096,
	}, p.headers())
	if err != nil {
		return nil, err
	}

	var oaiResp openAIChatResponse
	if err := p.decode(resp, &oaiResp); err != nil {
		return nil, err
	}
	if len(oaiResp.Choices) == 0 || oaiResp.Choices[0].Message.Content == nil {
		return nil, malformed(p.config.ID, "response has no choices")
	}

	var tokens *int
	if oaiResp.Usage != nil && oaiResp.Usage.TotalTokens != nil {
		tokens = intPtr(*oaiResp.Usage.TotalTokens)
	}
	return p.result(*oaiResp.Choices[0].Message.Content, model, tokens), nil
}

// ChatStream sends a streaming chat request and relays the SSE deltas.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error) {
	model, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.post(ctx, p.stream, p.chatURL(model), openAIRequest{
		Model:     model,
		Messages:  req.Messages,
		MaxTokens: 4096,
		Stream:    true,
	}, p.headers())
	if err != nil {
		return nil, err
	}

	ch := make(chan *StreamChunk, 64)
	go p.readSSE(ctx, resp.Body, ch, func(data []byte) (string, bool, error) {
		var ev openAIStreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return "", false, err
		}
		if len(ev.Choices) == 0 {
			return "", false, nil
		}
		return ev.Choices[0].Delta.Content, false, nil
	})
	return ch, nil
}
