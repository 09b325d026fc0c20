package provider

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// HuggingFaceProvider implements the Provider interface for the HuggingFace
// inference API. The API takes a flat prompt, so the conversation is rendered
// as "User:/Assistant:" lines, and streaming is replayed from a full answer.
type HuggingFaceProvider struct {
	base
}

// NewHuggingFaceProvider creates a new HuggingFace provider.
func NewHuggingFaceProvider(cfg ProviderConfig, logger *zap.Logger) *HuggingFaceProvider {
	return &HuggingFaceProvider{base: newBase(cfg, "https://router.huggingface.co/hf-inference/models", logger)}
}

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens"`
		Temperature    float64 `json:"temperature"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText *string `json:"generated_text"`
}

func formatPrompt(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			sb.WriteString("System: ")
		case RoleUser:
			sb.WriteString("User: ")
		default:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("Assistant:")
	return sb.String()
}

// Chat sends a text-generation request.
func (p *HuggingFaceProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	model, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	hr := hfRequest{Inputs: formatPrompt(req.Messages)}
	hr.Parameters.MaxNewTokens = 2048
	hr.Parameters.Temperature = 0.7

	resp, err := p.post(ctx, p.client, p.config.Endpoint+"/"+model, hr,
		map[string]string{"Authorization": "Bearer " + p.config.APIKey})
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := p.decode(resp, &raw); err != nil {
		return nil, err
	}

	// The API answers with either a list of generations or a single object.
	var gen hfGeneration
	var list []hfGeneration
	if json.Unmarshal(raw, &list) == nil {
		if len(list) == 0 {
			return nil, malformed(p.config.ID, "empty generation list")
		}
		gen = list[0]
	} else if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, malformed(p.config.ID, "unexpected response shape")
	}
	if gen.GeneratedText == nil {
		return nil, malformed(p.config.ID, "missing generated_text")
	}
	return p.result(strings.TrimSpace(*gen.GeneratedText), model, nil), nil
}

// ChatStream fetches the whole answer, then replays it word by word.
func (p *HuggingFaceProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error) {
	res, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return simulateStream(ctx, res), nil
}
