package tracer

import (
	"context"
	"testing"

	"daw-agent-be/internal/config"
	"daw-agent-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestSamplerBounds(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased{0.5}")
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown := InitTracer(config.TracingConfig{Enabled: false}, "test", logger.NewNopLogger())
	assert.NoError(t, shutdown(context.Background()))
}
