package dto

import "time"

// PersistSnapshotMessage asks the consumer to write the memory snapshot.
type PersistSnapshotMessage struct {
	Reason      string    `json:"reason"`
	SessionID   string    `json:"sessionId,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}
