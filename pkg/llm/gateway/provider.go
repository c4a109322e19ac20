package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"daw-agent-be/pkg/llm"
	"daw-agent-be/pkg/llm/sse"
)

const streamPath = "/api/stream/agent"

// GatewayProvider streams completions from the remote generation gateway,
// which relays hosted models as server-sent events.
type GatewayProvider struct {
	BaseURL string
	Client  *http.Client
}

// Ensure GatewayProvider implements Streamer
var _ llm.Streamer = &GatewayProvider{}

func NewGatewayProvider(baseURL string, timeout time.Duration) *GatewayProvider {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GatewayProvider{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type streamRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	APIKey string `json:"apiKey"`
}

func (g *GatewayProvider) RequiresAPIKey() bool {
	return true
}

func (g *GatewayProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	payloadBytes, err := json.Marshal(streamRequest{
		Prompt: req.Prompt,
		Model:  req.Model,
		APIKey: req.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+streamPath, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return sse.NewStream(resp.Body), nil
}
