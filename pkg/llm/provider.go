package llm

import (
	"context"
	"errors"
	"io"
	"strings"
)

// EventType tags one unit of a generation stream.
type EventType string

const (
	EventText  EventType = "text"
	EventError EventType = "error"
	EventDone  EventType = "done"
)

// Event is a single decoded unit of a generation stream.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// Request is the provider-agnostic prompt-in contract.
type Request struct {
	Prompt string
	Model  string
	APIKey string
}

// Stream is pulled sequentially: the caller handles one text chunk before
// asking for the next. Recv returns io.EOF once the stream is finished.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Streamer defines the contract for any generation backend.
type Streamer interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// KeyRequirer is implemented by providers that refuse requests without an API key.
type KeyRequirer interface {
	RequiresAPIKey() bool
}

// RequiresAPIKey reports whether s needs an API key on every request.
func RequiresAPIKey(s Streamer) bool {
	if kr, ok := s.(KeyRequirer); ok {
		return kr.RequiresAPIKey()
	}
	return false
}

// ErrStreamFailed is returned when the generation service reports an error event.
var ErrStreamFailed = errors.New("generation stream failed")

// Collect drains a stream and returns the concatenated text.
func Collect(ctx context.Context, s Streamer, req Request) (string, error) {
	stream, err := s.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
}

// TextGenerator binds a Streamer to fixed credentials and returns whole responses.
type TextGenerator struct {
	streamer Streamer
	model    string
	apiKey   string
}

func NewTextGenerator(streamer Streamer, model, apiKey string) *TextGenerator {
	return &TextGenerator{streamer: streamer, model: model, apiKey: apiKey}
}

// Generate sends a single prompt and waits for the full response.
func (g *TextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return Collect(ctx, g.streamer, Request{Prompt: prompt, Model: g.model, APIKey: g.apiKey})
}
