package service

import (
	"context"

	"daw-agent-be/internal/dto"
	"daw-agent-be/pkg/rag"
)

type IKnowledgeService interface {
	Search(ctx context.Context, q *dto.KnowledgeSearchQuery) (dto.KnowledgeSearchResponse, error)
}

type knowledgeService struct {
	engine *rag.Engine
}

func NewKnowledgeService(engine *rag.Engine) IKnowledgeService {
	return &knowledgeService{engine: engine}
}

func (s *knowledgeService) Search(ctx context.Context, q *dto.KnowledgeSearchQuery) (dto.KnowledgeSearchResponse, error) {
	opts := rag.DefaultSearchOptions()
	if q.MaxTokens > 0 {
		opts.MaxTotalTokens = q.MaxTokens
	}

	bundle, err := s.engine.SearchAll(ctx, q.Query, opts)
	if err != nil {
		return dto.KnowledgeSearchResponse{}, err
	}
	return dto.KnowledgeSearchResponse{
		Bundle: bundle,
		Prompt: rag.BuildRAGPrompt(q.Query, bundle),
	}, nil
}
