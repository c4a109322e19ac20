package service

import (
	"context"

	"daw-agent-be/internal/dto"
	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/agent/assembler"
	"daw-agent-be/pkg/agent/pipeline"
	"daw-agent-be/pkg/project"
)

const agentModule = "AGENT_SERVICE"

type IAgentService interface {
	Stream(ctx context.Context, req *dto.StreamAgentRequest, onFrame func(dto.StreamFrame)) (agent.Result, error)
	Cancel() bool
	Status() pipeline.Status
}

type agentService struct {
	orchestrator *pipeline.Orchestrator
	projects     *project.Store
	sessions     SessionSource
	publisher    IPublisherService
	logger       logger.ILogger
}

// SessionSource reports the active memory session.
type SessionSource interface {
	CurrentSession() string
}

func NewAgentService(
	orchestrator *pipeline.Orchestrator,
	projects *project.Store,
	sessions SessionSource,
	publisher IPublisherService,
	log logger.ILogger,
) IAgentService {
	return &agentService{
		orchestrator: orchestrator,
		projects:     projects,
		sessions:     sessions,
		publisher:    publisher,
		logger:       log,
	}
}

func (s *agentService) Stream(ctx context.Context, req *dto.StreamAgentRequest, onFrame func(dto.StreamFrame)) (agent.Result, error) {
	result, err := s.orchestrator.StreamAgentAction(ctx, pipeline.Request{
		Prompt: req.Prompt,
		// The mirror is only replaced once this run owns the generating latch.
		Prepare: func() agent.Context {
			if req.Project != nil {
				s.projects.Replace(req.Project.Info, req.Project.Tracks)
			}
			return s.buildContext(req.CurrentTrackID)
		},
		Model:       req.Model,
		APIKey:      req.APIKey,
		AutoApprove: req.AutoApprove,
		OnChunk: func(phase assembler.Phase, chunk string) {
			if onFrame != nil {
				onFrame(dto.StreamFrame{Type: dto.FrameChunk, Phase: string(phase), Content: chunk})
			}
		},
	})

	// The run wrote phase transcripts into memory even when it failed late.
	if s.publisher != nil {
		if perr := s.publisher.RequestSnapshot(context.WithoutCancel(ctx), "agentRun", s.sessions.CurrentSession()); perr != nil {
			s.logger.Warn(agentModule, "Snapshot request failed", map[string]interface{}{"error": perr.Error()})
		}
	}
	return result, err
}

func (s *agentService) buildContext(currentTrackID string) agent.Context {
	actx := agent.Context{
		ProjectInfo:    s.projects.Info(),
		ExistingTracks: s.projects.Tracks(),
	}
	if currentTrackID != "" {
		if t, ok := s.projects.Track(currentTrackID); ok {
			actx.CurrentTrack = &t
		}
	}
	return actx
}

func (s *agentService) Cancel() bool {
	return s.orchestrator.Cancel()
}

func (s *agentService) Status() pipeline.Status {
	return s.orchestrator.Status()
}
