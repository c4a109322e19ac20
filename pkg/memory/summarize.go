package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/token"

	"github.com/google/uuid"
)

// EndSession compresses the session's short-term items into one summary and
// clears the buffer. When summarization fails the buffer and session are left
// untouched so a later call can retry.
func (m *Manager) EndSession(ctx context.Context) (*SummaryItem, error) {
	m.mu.Lock()
	if m.summarizing {
		m.mu.Unlock()
		return nil, ErrSummaryInProgress
	}
	if len(m.shortTerm) == 0 {
		ended := m.sessionID
		m.sessionID = ""
		m.sessionStart = timeZero
		m.mu.Unlock()
		m.logger.Info(module, "Session ended with nothing to summarize", map[string]interface{}{"session_id": ended})
		return nil, nil
	}
	if m.summarizer == nil {
		m.mu.Unlock()
		return nil, ErrNoSummarizer
	}

	buffer := make([]MemoryItem, len(m.shortTerm))
	copy(buffer, m.shortTerm)
	sessionID := m.sessionID
	m.summarizing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.summarizing = false
		m.mu.Unlock()
	}()

	selected := m.selectForSummary(buffer)
	prompt := BuildSummaryPrompt(selected)

	m.logger.Info(module, "Summarizing session", map[string]interface{}{
		"session_id": sessionID,
		"items":      len(buffer),
		"selected":   len(selected),
	})

	text, err := m.summarizer.Generate(ctx, prompt)
	if err != nil {
		m.logger.Error(module, "Session summarization failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return nil, fmt.Errorf("summarize session %s: %w", sessionID, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptySummary
	}

	sourceIDs := make([]string, len(selected))
	for i, item := range selected {
		sourceIDs[i] = item.ID
	}
	summary := SummaryItem{
		ID:            "ltm_" + uuid.NewString(),
		Content:       text,
		Timestamp:     m.now(),
		Type:          TypeSessionSummary,
		Importance:    summaryImportance,
		SessionID:     sessionID,
		SourceItemIDs: sourceIDs,
		TokenCount:    token.Estimate(text),
	}

	var vector []float32
	if m.embedder != nil {
		v, err := m.embedder.Embed(ctx, text)
		if err != nil {
			m.logger.Warn(module, "Summary embedding failed", map[string]interface{}{"id": summary.ID, "error": err.Error()})
		} else {
			vector = v
		}
	}

	summarized := make(map[string]struct{}, len(buffer))
	for _, item := range buffer {
		summarized[item.ID] = struct{}{}
	}

	m.mu.Lock()
	m.longTerm = append(m.longTerm, summary)
	if vector != nil {
		m.vectorIndex[summary.ID] = vector
	}
	if over := len(m.longTerm) - m.cfg.MaxLongTermItems; over > 0 {
		for _, evicted := range m.longTerm[:over] {
			delete(m.vectorIndex, evicted.ID)
		}
		m.longTerm = append([]SummaryItem(nil), m.longTerm[over:]...)
	}

	// items appended while the summary was being generated stay buffered
	remaining := m.shortTerm[:0]
	for _, item := range m.shortTerm {
		if _, done := summarized[item.ID]; !done {
			remaining = append(remaining, item)
		}
	}
	m.shortTerm = remaining
	if m.sessionID == sessionID {
		m.sessionID = ""
		m.sessionStart = timeZero
	}
	m.mu.Unlock()

	m.searchCache.Flush()
	m.logger.Info(module, "Session summarized", map[string]interface{}{"summary_id": summary.ID, "tokens": summary.TokenCount})
	m.events.Emit(events.New(events.SessionSummarized, map[string]interface{}{"summary": summary}))
	return &summary, nil
}

// selectForSummary orders items by importance and keeps them while the
// running token estimate fits three times the per-memory budget. The most
// important item is always kept.
func (m *Manager) selectForSummary(items []MemoryItem) []MemoryItem {
	sorted := make([]MemoryItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})

	budget := m.cfg.MaxTokensPerMemory * summaryBudgetFactor
	total := 0
	var selected []MemoryItem
	for _, item := range sorted {
		cost := token.Estimate(item.serialize())
		if total+cost > budget && len(selected) > 0 {
			break
		}
		selected = append(selected, item)
		total += cost
	}
	return selected
}

// BuildSummaryPrompt renders the summarization request for items.
func BuildSummaryPrompt(items []MemoryItem) string {
	var conversations, actions strings.Builder
	for _, item := range items {
		switch item.Type {
		case TypeConversation:
			fmt.Fprintf(&conversations, "- %s: %s\n", item.Content.UserMessage, item.Content.AssistantResponse)
		case TypeAction:
			fmt.Fprintf(&actions, "- %s: %s\n", item.Content.Action, item.Content.Result)
		}
	}

	var sb strings.Builder
	sb.WriteString("Summarize the following session. Keep only the important information, centred on what the user asked for and which operations were executed.\n\n")
	sb.WriteString("[Conversation]\n")
	sb.WriteString(conversations.String())
	sb.WriteString("\n[Executed operations]\n")
	sb.WriteString(actions.String())
	sb.WriteString("\n[Summary focus]\n")
	sb.WriteString("1. What the user wanted\n")
	sb.WriteString("2. Which operations were executed\n")
	sb.WriteString("3. Important findings or decisions\n")
	sb.WriteString("4. Information worth reusing in the next session\n\n")
	sb.WriteString("Write a concise, practical summary.")
	return sb.String()
}
