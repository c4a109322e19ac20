package dto

import "daw-agent-be/pkg/agent/ledger"

type PendingChangesResponse struct {
	State     ledger.State    `json:"state"`
	SessionID string          `json:"sessionId,omitempty"`
	Changes   []ledger.Change `json:"changes"`
	Count     int             `json:"count"`
}

type ApprovalResponse struct {
	SessionID string   `json:"sessionId"`
	Tracks    int      `json:"tracks"`
	Notes     int      `json:"notes"`
	Failures  []string `json:"failures,omitempty"`
}
