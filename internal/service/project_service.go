package service

import (
	"daw-agent-be/internal/dto"
	"daw-agent-be/pkg/project"
)

type IProjectService interface {
	State() dto.ProjectStateResponse
	Replace(req *dto.ProjectStateRequest) dto.ProjectStateResponse
}

type projectService struct {
	store *project.Store
}

func NewProjectService(store *project.Store) IProjectService {
	return &projectService{store: store}
}

func (s *projectService) State() dto.ProjectStateResponse {
	return dto.ProjectStateResponse{Info: s.store.Info(), Tracks: s.store.Tracks()}
}

func (s *projectService) Replace(req *dto.ProjectStateRequest) dto.ProjectStateResponse {
	s.store.Replace(req.Info, req.Tracks)
	return s.State()
}
