// Package scripted replays canned generation responses. The agentctl
// simulate command and the pipeline tests drive the orchestrator with it.
package scripted

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"daw-agent-be/pkg/llm"
)

// ErrExhausted is returned once every scripted response has been consumed.
var ErrExhausted = errors.New("scripted provider has no responses left")

// Response is one canned reply. Chunks are delivered in order; if Err is set
// it is returned after the chunks.
type Response struct {
	Chunks []string
	Err    error
}

// Text builds a response that streams text split on whitespace boundaries.
func Text(text string) Response {
	if text == "" {
		return Response{}
	}
	var chunks []string
	for _, field := range strings.SplitAfter(text, " ") {
		if field != "" {
			chunks = append(chunks, field)
		}
	}
	return Response{Chunks: chunks}
}

type Provider struct {
	mu        sync.Mutex
	responses []Response
	prompts   []llm.Request
	keyed     bool
}

var _ llm.Streamer = &Provider{}

func NewProvider(responses ...Response) *Provider {
	return &Provider{responses: responses}
}

// WithAPIKeyRequired makes the provider report that it needs an API key.
func (p *Provider) WithAPIKeyRequired() *Provider {
	p.keyed = true
	return p
}

func (p *Provider) RequiresAPIKey() bool {
	return p.keyed
}

// Enqueue appends responses to the script.
func (p *Provider) Enqueue(responses ...Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

// Requests returns every request received so far.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.prompts))
	copy(out, p.prompts)
	return out
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts = append(p.prompts, req)
	if len(p.responses) == 0 {
		return nil, ErrExhausted
	}
	next := p.responses[0]
	p.responses = p.responses[1:]

	return &stream{ctx: ctx, chunks: next.Chunks, err: next.Err}, nil
}

type stream struct {
	ctx    context.Context
	chunks []string
	err    error
}

func (s *stream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		return chunk, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return "", err
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	return nil
}
