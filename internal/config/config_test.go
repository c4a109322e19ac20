package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 800, cfg.Agent.MaxMemoryTokens)
	assert.Equal(t, 1200, cfg.Agent.MaxRAGTokens)
	assert.True(t, cfg.Agent.AutoApprove)
	assert.Equal(t, 50, cfg.Memory.MaxShortTermItems)
	assert.Equal(t, 0.7, cfg.RAG.SimilarityThreshold)
	assert.Equal(t, time.Hour, cfg.RAG.TrackMaxAge)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_AUTO_APPROVE", "false")
	t.Setenv("MEMORY_MAX_SHORT_TERM", "3")
	t.Setenv("RAG_SIMILARITY_THRESHOLD", "0.5")
	t.Setenv("LLM_PHASE_TIMEOUT", "15s")
	t.Setenv("BLOB_STORE", "redis")

	cfg := Load()

	assert.False(t, cfg.Agent.AutoApprove)
	assert.Equal(t, 3, cfg.Memory.MaxShortTermItems)
	assert.Equal(t, 0.5, cfg.RAG.SimilarityThreshold)
	assert.Equal(t, 15*time.Second, cfg.LLM.PhaseTimeout)
	assert.Equal(t, "redis", cfg.Store.Backend)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("AGENT_MAX_RAG_TOKENS", "lots")
	t.Setenv("AGENT_USE_RAG", "maybe")

	cfg := Load()

	assert.Equal(t, 1200, cfg.Agent.MaxRAGTokens)
	assert.True(t, cfg.Agent.UseRAGSystem)
}

func TestTracingConfig(t *testing.T) {
	cfg := Load()
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)

	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SERVICE_NAME", "agent-test")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg = Load()
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "agent-test", cfg.Tracing.ServiceName)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
}
