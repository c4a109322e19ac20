package factory

import (
	"fmt"
	"time"

	"daw-agent-be/pkg/llm"
	"daw-agent-be/pkg/llm/gateway"
	"daw-agent-be/pkg/llm/ollama"
)

func NewStreamer(providerType, modelName, baseURL string, timeout time.Duration) (llm.Streamer, error) {
	switch providerType {
	case "gateway":
		if baseURL == "" {
			baseURL = "http://localhost:3001" // Default
		}
		return gateway.NewGatewayProvider(baseURL, timeout), nil
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
