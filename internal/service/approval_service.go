package service

import (
	"context"

	"daw-agent-be/internal/dto"
	"daw-agent-be/pkg/agent/ledger"
)

type IApprovalService interface {
	Pending() dto.PendingChangesResponse
	ApproveAll(ctx context.Context) dto.ApprovalResponse
	RejectAll(ctx context.Context) dto.ApprovalResponse
}

type approvalService struct {
	ledger *ledger.Ledger
}

func NewApprovalService(l *ledger.Ledger) IApprovalService {
	return &approvalService{ledger: l}
}

func (s *approvalService) Pending() dto.PendingChangesResponse {
	view := s.ledger.View()
	changes := view.Changes
	if changes == nil {
		changes = []ledger.Change{}
	}
	return dto.PendingChangesResponse{
		State:     view.State,
		SessionID: view.SessionID,
		Changes:   changes,
		Count:     len(changes),
	}
}

func (s *approvalService) ApproveAll(ctx context.Context) dto.ApprovalResponse {
	return toApprovalResponse(s.ledger.ApproveAll(ctx))
}

func (s *approvalService) RejectAll(ctx context.Context) dto.ApprovalResponse {
	return toApprovalResponse(s.ledger.RejectAll(ctx))
}

func toApprovalResponse(r ledger.Report) dto.ApprovalResponse {
	return dto.ApprovalResponse{
		SessionID: r.SessionID,
		Tracks:    r.Tracks,
		Notes:     r.Notes,
		Failures:  r.Failures,
	}
}
