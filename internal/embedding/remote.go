package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// remote is the HTTP plumbing shared by the network-backed embedders.
type remote struct {
	endpoint  string
	model     string
	apiKey    string
	dimension int
	client    *http.Client
	logger    *zap.Logger
}

func newRemote(cfg Config, logger *zap.Logger) remote {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return remote{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

func (r *remote) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.logger.Warn("embedding endpoint returned error status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}

// check enforces the fixed vector length. With no configured dimension the
// first vector fixes it.
func (r *remote) check(vecs [][]float32) error {
	for i, v := range vecs {
		if r.dimension == 0 && len(v) > 0 {
			r.dimension = len(v)
		}
		if len(v) != r.dimension {
			return fmt.Errorf("embedding: vector %d has length %d, want %d", i, len(v), r.dimension)
		}
	}
	return nil
}
