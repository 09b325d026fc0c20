package provider

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// GeminiProvider implements the Provider interface for the Google Gemini REST API.
// Gemini is called without native streaming, so ChatStream replays a full answer.
type GeminiProvider struct {
	base
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg ProviderConfig, logger *zap.Logger) *GeminiProvider {
	return &GeminiProvider{base: newBase(cfg, "https://generativelanguage.googleapis.com/v1beta/models", logger)}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		TotalTokenCount *int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *GeminiProvider) convertRequest(msgs []Message) *geminiRequest {
	gr := &geminiRequest{}
	var system []geminiPart
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, geminiPart{Text: m.Content})
		case RoleAssistant:
			gr.Contents = append(gr.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			gr.Contents = append(gr.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		gr.SystemInstruction = &geminiContent{Parts: system}
	}
	return gr
}

// Chat sends a generateContent request.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	model, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	url := p.config.Endpoint + "/" + model + ":generateContent"
	resp, err := p.post(ctx, p.client, url, p.convertRequest(req.Messages),
		map[string]string{"x-goog-api-key": p.config.APIKey})
	if err != nil {
		return nil, err
	}

	var gr geminiResponse
	if err := p.decode(resp, &gr); err != nil {
		return nil, err
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, malformed(p.config.ID, "response has no candidates")
	}

	var sb strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	var tokens *int
	if gr.UsageMetadata != nil && gr.UsageMetadata.TotalTokenCount != nil {
		tokens = intPtr(*gr.UsageMetadata.TotalTokenCount)
	}
	return p.result(sb.String(), model, tokens), nil
}

// ChatStream fetches the whole answer, then replays it word by word.
func (p *GeminiProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error) {
	res, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return simulateStream(ctx, res), nil
}
