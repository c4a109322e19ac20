package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"daw-agent-be/internal/dto"
	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/agent/assembler"
	"daw-agent-be/pkg/agent/executor"
	"daw-agent-be/pkg/agent/ledger"
	"daw-agent-be/pkg/agent/pipeline"
	"daw-agent-be/pkg/embedding"
	"daw-agent-be/pkg/llm"
	"daw-agent-be/pkg/memory"
	"daw-agent-be/pkg/project"
	"daw-agent-be/pkg/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heldStreamer keeps every stream open until its context ends.
type heldStreamer struct {
	once    sync.Once
	started chan struct{}
}

func (h *heldStreamer) Stream(ctx context.Context, _ llm.Request) (llm.Stream, error) {
	h.once.Do(func() { close(h.started) })
	return heldStream{ctx: ctx}, nil
}

type heldStream struct{ ctx context.Context }

func (s heldStream) Recv() (string, error) {
	<-s.ctx.Done()
	return "", s.ctx.Err()
}

func (heldStream) Close() error { return nil }

func projectRequest(prompt, trackID string) *dto.StreamAgentRequest {
	return &dto.StreamAgentRequest{
		Prompt: prompt,
		Project: &dto.ProjectStateRequest{
			Info:   project.Info{Name: prompt, Tempo: 120},
			Tracks: []project.Track{{ID: trackID, Name: trackID}},
		},
	}
}

func TestBusyStreamLeavesProjectUntouched(t *testing.T) {
	log := logger.NewNopLogger()
	engine := rag.NewEngine(rag.Config{}, embedding.NewHashEmbedder(0), log)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(engine.Stop)

	mem := memory.NewManager(memory.DefaultConfig(), log)
	mem.StartSession("svc-session")
	store := project.NewStore(project.Info{})
	l := ledger.New(store, log)
	exec := executor.New(store, l, engine, log)
	asm := assembler.New(assembler.DefaultConfig(), mem, engine, log)
	streamer := &heldStreamer{started: make(chan struct{})}
	orch := pipeline.New(pipeline.Config{Model: "m"}, streamer, asm, l, exec, log)

	svc := NewAgentService(orch, store, nil, nil, log)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Stream(context.Background(), projectRequest("first", "running"), nil)
		done <- err
	}()
	<-streamer.started

	_, err := svc.Stream(context.Background(), projectRequest("second", "intruder"), nil)
	assert.ErrorIs(t, err, pipeline.ErrGenerationInProgress)

	_, ok := store.Track("intruder")
	assert.False(t, ok)
	_, ok = store.Track("running")
	assert.True(t, ok)
	assert.Equal(t, "first", store.Info().Name)

	assert.True(t, svc.Cancel())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run did not return")
	}
}
