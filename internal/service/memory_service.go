package service

import (
	"context"

	"daw-agent-be/internal/dto"
	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/memory"
	"daw-agent-be/pkg/rag"
)

const memoryModule = "MEMORY_SERVICE"

type IMemoryService interface {
	StartSession(req *dto.StartSessionRequest) dto.StartSessionResponse
	EndSession(ctx context.Context) (dto.EndSessionResponse, error)
	Search(q *dto.MemorySearchQuery) dto.MemorySearchResponse
	Stats() dto.AgentStatsResponse
}

type memoryService struct {
	memory    *memory.Manager
	retrieval *rag.Engine
	publisher IPublisherService
	logger    logger.ILogger
}

func NewMemoryService(m *memory.Manager, retrieval *rag.Engine, publisher IPublisherService, log logger.ILogger) IMemoryService {
	return &memoryService{memory: m, retrieval: retrieval, publisher: publisher, logger: log}
}

func (s *memoryService) StartSession(req *dto.StartSessionRequest) dto.StartSessionResponse {
	return dto.StartSessionResponse{SessionID: s.memory.StartSession(req.SessionID)}
}

func (s *memoryService) EndSession(ctx context.Context) (dto.EndSessionResponse, error) {
	sessionID := s.memory.CurrentSession()
	summary, err := s.memory.EndSession(ctx)
	if err != nil {
		return dto.EndSessionResponse{}, err
	}
	if summary != nil && s.publisher != nil {
		if perr := s.publisher.RequestSnapshot(ctx, "sessionEnded", sessionID); perr != nil {
			s.logger.Warn(memoryModule, "Snapshot request failed", map[string]interface{}{"error": perr.Error()})
		}
	}
	return dto.EndSessionResponse{Summary: summary}, nil
}

func (s *memoryService) Search(q *dto.MemorySearchQuery) dto.MemorySearchResponse {
	recalls := s.memory.SearchRelevantMemories(q.Query, q.Limit)
	if recalls == nil {
		recalls = []memory.Recall{}
	}
	return dto.MemorySearchResponse{Memories: recalls}
}

func (s *memoryService) Stats() dto.AgentStatsResponse {
	return dto.AgentStatsResponse{
		Memory:    s.memory.Stats(),
		Retrieval: s.retrieval.Stats(),
	}
}
