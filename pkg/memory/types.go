package memory

import (
	"encoding/json"
	"time"
)

type ItemType string

const (
	TypeConversation   ItemType = "conversation"
	TypeAction         ItemType = "action"
	TypeSessionSummary ItemType = "session_summary"
)

// Tier tells which table a recalled memory came from.
type Tier string

const (
	ShortTerm Tier = "shortTerm"
	LongTerm  Tier = "longTerm"
)

// Content is the payload of a short-term item. Conversation items carry the
// user message and the assistant response; action items carry the action and
// its result.
type Content struct {
	UserMessage       string `json:"userMessage,omitempty"`
	AssistantResponse string `json:"assistantResponse,omitempty"`
	Phase             string `json:"phase,omitempty"`
	Action            string `json:"action,omitempty"`
	Result            string `json:"result,omitempty"`
	ActionCount       int    `json:"actionCount,omitempty"`
}

type MemoryItem struct {
	ID         string    `json:"id"`
	Content    Content   `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Type       ItemType  `json:"type"`
	Importance float64   `json:"importance"`
	SessionID  string    `json:"sessionId"`
}

type SummaryItem struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	Type          ItemType  `json:"type"`
	Importance    float64   `json:"importance"`
	SessionID     string    `json:"sessionId"`
	SourceItemIDs []string  `json:"sourceItemIds"`
	TokenCount    int       `json:"tokenCount"`
}

// Recall is a scored search hit from either tier.
type Recall struct {
	ID        string    `json:"id"`
	Tier      Tier      `json:"tier"`
	Type      ItemType  `json:"type"`
	Text      string    `json:"text"`
	Score     float64   `json:"relevance"`
	Timestamp time.Time `json:"timestamp"`
}

// PromptMemory is the token-bounded subset handed to prompt builders.
type PromptMemory struct {
	Memories    []Recall `json:"memories"`
	TotalTokens int      `json:"totalTokens"`
}

// Snapshot is the persisted form of the manager's tables.
type Snapshot struct {
	ShortTermMemory []MemoryItem         `json:"shortTermMemory"`
	LongTermMemory  []SummaryItem        `json:"longTermMemory"`
	VectorIndex     map[string][]float32 `json:"vectorIndex"`
	Timestamp       int64                `json:"timestamp"`
}

type Stats struct {
	ShortTermCount   int           `json:"shortTermCount"`
	LongTermCount    int           `json:"longTermCount"`
	VectorCount      int           `json:"vectorCount"`
	CurrentSessionID string        `json:"currentSessionId"`
	SessionDuration  time.Duration `json:"sessionDuration"`
}

// serialize is the text that relevance scoring and token estimation see.
func (m MemoryItem) serialize() string {
	b, err := json.Marshal(m.Content)
	if err != nil {
		return ""
	}
	return string(b)
}

func (s SummaryItem) serialize() string {
	b, err := json.Marshal(s.Content)
	if err != nil {
		return s.Content
	}
	return string(b)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
