package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// minKeyLength is the shortest credential considered usable.
const minKeyLength = 10

const defaultTimeout = 120 * time.Second

// base carries the HTTP plumbing shared by every adapter.
type base struct {
	config ProviderConfig
	desc   Descriptor
	client *http.Client
	// stream has no overall deadline; only the wait for response headers is bounded.
	stream  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newBase(cfg ProviderConfig, defaultEndpoint string, logger *zap.Logger) base {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	b := base{
		config: cfg,
		desc:   cfg.descriptor(),
		client: &http.Client{Timeout: timeout},
		stream: &http.Client{Transport: transport},
		logger: logger.With(zap.String("provider", cfg.ID)),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return b
}

func (b *base) ID() string             { return b.config.ID }
func (b *base) Name() string           { return b.desc.Name }
func (b *base) Descriptor() Descriptor { return b.desc }

// Available reports whether an API key of plausible shape is configured.
func (b *base) Available() bool {
	return len(strings.TrimSpace(b.config.APIKey)) > minKeyLength
}

// prepare validates the request and resolves the model to use.
func (b *base) prepare(req *ChatRequest) (string, error) {
	if !b.Available() {
		return "", fmt.Errorf("%s: %w", b.config.ID, ErrProviderUnavailable)
	}
	if req == nil || len(req.Messages) == 0 {
		return "", fmt.Errorf("%s: %w", b.config.ID, ErrNoMessages)
	}
	if req.Model != "" {
		return req.Model, nil
	}
	return b.desc.DefaultModel(), nil
}

// post sends a JSON body and returns the response when the status is 200.
// The caller owns the returned body.
func (b *base) post(ctx context.Context, client *http.Client, url string, payload interface{}, headers map[string]string) (*http.Response, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, &UpstreamError{Provider: b.config.ID, Message: "rate limit wait", Err: err}
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Provider: b.config.ID, Message: "send request", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		b.logger.Warn("upstream returned error status", zap.Int("status", resp.StatusCode))
		return nil, &UpstreamError{
			Provider: b.config.ID,
			Status:   resp.StatusCode,
			Message:  strings.TrimSpace(string(respBody)),
		}
	}
	return resp, nil
}

// decode reads a JSON success body into v.
func (b *base) decode(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UpstreamError{Provider: b.config.ID, Message: "read response", Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return malformed(b.config.ID, "decode response: %v", err)
	}
	return nil
}

func (b *base) result(content, model string, tokens *int) *ChatResult {
	return &ChatResult{
		Content:    content,
		ProviderID: b.config.ID,
		ModelID:    model,
		TokensUsed: tokens,
	}
}
