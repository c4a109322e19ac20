package dto

import (
	"daw-agent-be/pkg/memory"
	"daw-agent-be/pkg/rag"
)

type StartSessionRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

type StartSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type EndSessionResponse struct {
	Summary *memory.SummaryItem `json:"summary,omitempty"`
}

type MemorySearchQuery struct {
	Query string `query:"q" validate:"required"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=50"`
}

type MemorySearchResponse struct {
	Memories []memory.Recall `json:"memories"`
}

type KnowledgeSearchQuery struct {
	Query     string `query:"q" validate:"required"`
	MaxTokens int    `query:"max_tokens" validate:"omitempty,min=1,max=8000"`
}

type KnowledgeSearchResponse struct {
	Bundle rag.Bundle `json:"bundle"`
	Prompt string     `json:"prompt"`
}

type AgentStatsResponse struct {
	Memory    memory.Stats `json:"memory"`
	Retrieval rag.Stats    `json:"retrieval"`
}
