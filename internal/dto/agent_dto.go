package dto

import (
	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/project"
)

type StreamAgentRequest struct {
	Prompt string `json:"prompt" validate:"required,max=8000"`
	// Project, when present, replaces the server-side project mirror before the run.
	Project        *ProjectStateRequest `json:"project,omitempty"`
	CurrentTrackID string               `json:"currentTrackId,omitempty"`
	Model          string               `json:"model,omitempty"`
	APIKey         string               `json:"apiKey,omitempty"`
	AutoApprove    *bool                `json:"autoApprove,omitempty"`
}

// StreamFrame is one SSE data line of the agent stream.
type StreamFrame struct {
	Type    string        `json:"type"`
	Phase   string        `json:"phase,omitempty"`
	Content string        `json:"content,omitempty"`
	Result  *agent.Result `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
}

const (
	FrameChunk  = "chunk"
	FrameResult = "result"
	FrameError  = "error"
)

type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

type ProjectStateRequest struct {
	Info   project.Info    `json:"projectInfo"`
	Tracks []project.Track `json:"tracks" validate:"dive"`
}

type ProjectStateResponse struct {
	Info   project.Info    `json:"projectInfo"`
	Tracks []project.Track `json:"tracks"`
}
