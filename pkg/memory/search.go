package memory

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"daw-agent-be/pkg/token"

	"github.com/patrickmn/go-cache"
)

// SearchRelevantMemories scores every short-term and long-term item against
// query and returns up to limit hits above the relevance threshold, best
// first. Equal scores keep table order, short-term before long-term.
func (m *Manager) SearchRelevantMemories(query string, limit int) []Recall {
	if limit <= 0 {
		limit = m.cfg.SearchLimit
	}

	cacheKey := fmt.Sprintf("%d|%s", limit, query)
	if cached, ok := m.searchCache.Get(cacheKey); ok {
		return append([]Recall(nil), cached.([]Recall)...)
	}

	words := strings.Fields(strings.ToLower(query))

	m.mu.RLock()
	var hits []Recall
	for _, item := range m.shortTerm {
		text := item.serialize()
		if score := relevance(words, strings.ToLower(text)); score > relevanceThreshold {
			hits = append(hits, Recall{
				ID:        item.ID,
				Tier:      ShortTerm,
				Type:      item.Type,
				Text:      text,
				Score:     score,
				Timestamp: item.Timestamp,
			})
		}
	}
	for _, item := range m.longTerm {
		text := item.serialize()
		if score := relevance(words, strings.ToLower(text)); score > relevanceThreshold {
			hits = append(hits, Recall{
				ID:        item.ID,
				Tier:      LongTerm,
				Type:      item.Type,
				Text:      text,
				Score:     score,
				Timestamp: item.Timestamp,
			})
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	m.searchCache.Set(cacheKey, append([]Recall(nil), hits...), cache.DefaultExpiration)
	return hits
}

// BuildPromptMemory takes search hits in score order while their combined
// token estimate stays within maxTokens. It stops at the first hit that does
// not fit.
func (m *Manager) BuildPromptMemory(query string, maxTokens int) PromptMemory {
	if maxTokens <= 0 {
		maxTokens = m.cfg.PromptTokens
	}

	out := PromptMemory{Memories: []Recall{}}
	for _, hit := range m.SearchRelevantMemories(query, 0) {
		cost := token.Estimate(hit.Text)
		if out.TotalTokens+cost > maxTokens {
			break
		}
		out.Memories = append(out.Memories, hit)
		out.TotalTokens += cost
	}
	return out
}

// relevance is the fraction of query words, longer than two characters, that
// occur in content.
func relevance(queryWords []string, content string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	matched := 0
	for _, w := range queryWords {
		if utf8.RuneCountInString(w) > 2 && strings.Contains(content, w) {
			matched++
		}
	}
	return clamp01(float64(matched) / float64(len(queryWords)))
}
