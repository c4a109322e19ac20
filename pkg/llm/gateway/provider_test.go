package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"daw-agent-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayStreamsTextUntilDone(t *testing.T) {
	var got streamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, streamPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"text\",\"content\":\"Add \"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"text\",\"content\":\"a piano track\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewGatewayProvider(srv.URL, 5*time.Second)
	text, err := llm.Collect(context.Background(), p, llm.Request{Prompt: "hi", Model: "m", APIKey: "k"})

	require.NoError(t, err)
	assert.Equal(t, "Add a piano track", text)
	assert.Equal(t, streamRequest{Prompt: "hi", Model: "m", APIKey: "k"}, got)
	assert.True(t, llm.RequiresAPIKey(p))
}

func TestGatewayNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewGatewayProvider(srv.URL, time.Second)
	_, err := p.Stream(context.Background(), llm.Request{Prompt: "hi"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestGatewayErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"error\",\"content\":\"model overloaded\"}\n\n")
	}))
	defer srv.Close()

	p := NewGatewayProvider(srv.URL, time.Second)
	_, err := llm.Collect(context.Background(), p, llm.Request{Prompt: "hi"})

	assert.ErrorIs(t, err, llm.ErrStreamFailed)
}
