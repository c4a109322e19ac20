package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"daw-agent-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaStreamsNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		fmt.Fprintln(w, `{"response":"tra","done":false}`)
		fmt.Fprintln(w, `{"response":"ck","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3", time.Second)
	text, err := llm.Collect(context.Background(), p, llm.Request{Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "track", text)
	assert.False(t, llm.RequiresAPIKey(p))
}

func TestOllamaErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "missing", time.Second)
	_, err := llm.Collect(context.Background(), p, llm.Request{Prompt: "p"})

	assert.ErrorIs(t, err, llm.ErrStreamFailed)
}
