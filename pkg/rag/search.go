package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"daw-agent-be/pkg/embedding"
	"daw-agent-be/pkg/token"
)

type KnowledgeHit struct {
	Item       KnowledgeItem `json:"item"`
	Similarity float64       `json:"similarity"`
}

type ChordHit struct {
	Progression ChordProgression `json:"progression"`
	Similarity  float64          `json:"similarity"`
}

type TrackHit struct {
	Track      TrackRecord `json:"track"`
	Similarity float64     `json:"similarity"`
}

// Bundle is the combined result of SearchAll.
type Bundle struct {
	Knowledge         []KnowledgeHit `json:"musicKnowledge"`
	ChordProgressions []ChordHit     `json:"chordProgressions"`
	TrackInfo         []TrackHit     `json:"trackInfo"`
	TotalTokens       int            `json:"totalTokens"`
}

func (b Bundle) Empty() bool {
	return len(b.Knowledge) == 0 && len(b.ChordProgressions) == 0 && len(b.TrackInfo) == 0
}

type SearchOptions struct {
	KnowledgeLimit int
	ChordLimit     int
	TrackLimit     int
	MaxTotalTokens int
}

func DefaultSearchOptions() SearchOptions {
	return SearchOptions{KnowledgeLimit: 2, ChordLimit: 2, TrackLimit: 3, MaxTotalTokens: 1500}
}

const (
	defaultKnowledgeLimit = 3
	defaultChordLimit     = 3
	defaultTrackLimit     = 5
)

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

func (e *Engine) SearchMusicKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeHit, error) {
	if limit <= 0 {
		limit = defaultKnowledgeLimit
	}
	qv, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	var hits []KnowledgeHit
	for _, item := range e.knowledge {
		if sim := embedding.CosineSimilarity(qv, item.Vector); sim > e.cfg.SimilarityThreshold {
			hits = append(hits, KnowledgeHit{Item: item, Similarity: sim})
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (e *Engine) SearchChordProgressions(ctx context.Context, query string, limit int) ([]ChordHit, error) {
	if limit <= 0 {
		limit = defaultChordLimit
	}
	qv, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	var hits []ChordHit
	for _, p := range e.chords {
		if sim := embedding.CosineSimilarity(qv, p.Vector); sim > e.cfg.SimilarityThreshold {
			hits = append(hits, ChordHit{Progression: p, Similarity: sim})
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (e *Engine) SearchTrackInfo(ctx context.Context, query string, limit int) ([]TrackHit, error) {
	if limit <= 0 {
		limit = defaultTrackLimit
	}
	qv, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	var hits []TrackHit
	for _, id := range e.trackOrder {
		rec := e.tracks[id]
		if sim := embedding.CosineSimilarity(qv, rec.Vector); sim > e.cfg.SimilarityThreshold {
			hits = append(hits, TrackHit{Track: *rec, Similarity: sim})
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchAll runs every search and trims the combined bundle to the token
// budget. Track info is dropped first, then chord progressions, then
// knowledge, always lowest ranked first. A lone remaining item is kept even if
// it exceeds the budget on its own.
func (e *Engine) SearchAll(ctx context.Context, query string, opts SearchOptions) (Bundle, error) {
	def := DefaultSearchOptions()
	if opts.KnowledgeLimit <= 0 {
		opts.KnowledgeLimit = def.KnowledgeLimit
	}
	if opts.ChordLimit <= 0 {
		opts.ChordLimit = def.ChordLimit
	}
	if opts.TrackLimit <= 0 {
		opts.TrackLimit = def.TrackLimit
	}
	if opts.MaxTotalTokens <= 0 {
		opts.MaxTotalTokens = def.MaxTotalTokens
	}

	key := fmt.Sprintf("%s|%d|%d|%d|%d", query, opts.KnowledgeLimit, opts.ChordLimit, opts.TrackLimit, opts.MaxTotalTokens)
	if cached, ok := e.cache.Get(key); ok {
		return cached.(Bundle), nil
	}

	knowledge, err := e.SearchMusicKnowledge(ctx, query, opts.KnowledgeLimit)
	if err != nil {
		return Bundle{}, err
	}
	chords, err := e.SearchChordProgressions(ctx, query, opts.ChordLimit)
	if err != nil {
		return Bundle{}, err
	}
	tracks, err := e.SearchTrackInfo(ctx, query, opts.TrackLimit)
	if err != nil {
		return Bundle{}, err
	}

	bundle := Bundle{Knowledge: knowledge, ChordProgressions: chords, TrackInfo: tracks}
	bundle = trimBundle(bundle, opts.MaxTotalTokens)

	e.cache.SetDefault(key, bundle)
	e.logger.Debug(module, "Combined search completed", map[string]interface{}{
		"query":       query,
		"knowledge":   len(bundle.Knowledge),
		"chords":      len(bundle.ChordProgressions),
		"tracks":      len(bundle.TrackInfo),
		"totalTokens": bundle.TotalTokens,
	})
	return bundle, nil
}

func knowledgeCost(h KnowledgeHit) int { return token.Estimate(h.Item.Content) }

func chordCost(h ChordHit) int { return token.Estimate(h.Progression.Description) }

func trackCost(h TrackHit) int {
	data, err := json.Marshal(h.Track)
	if err != nil {
		return 0
	}
	return token.Estimate(string(data))
}

// BundleTokens estimates the token cost of every item in b.
func BundleTokens(b Bundle) int {
	total := 0
	for _, h := range b.Knowledge {
		total += knowledgeCost(h)
	}
	for _, h := range b.ChordProgressions {
		total += chordCost(h)
	}
	for _, h := range b.TrackInfo {
		total += trackCost(h)
	}
	return total
}

func trimBundle(b Bundle, maxTokens int) Bundle {
	total := BundleTokens(b)
	for total > maxTokens {
		count := len(b.Knowledge) + len(b.ChordProgressions) + len(b.TrackInfo)
		if count <= 1 {
			break
		}
		switch {
		case len(b.TrackInfo) > 0:
			last := b.TrackInfo[len(b.TrackInfo)-1]
			b.TrackInfo = b.TrackInfo[:len(b.TrackInfo)-1]
			total -= trackCost(last)
		case len(b.ChordProgressions) > 0:
			last := b.ChordProgressions[len(b.ChordProgressions)-1]
			b.ChordProgressions = b.ChordProgressions[:len(b.ChordProgressions)-1]
			total -= chordCost(last)
		default:
			last := b.Knowledge[len(b.Knowledge)-1]
			b.Knowledge = b.Knowledge[:len(b.Knowledge)-1]
			total -= knowledgeCost(last)
		}
	}
	b.TotalTokens = total
	return b
}
