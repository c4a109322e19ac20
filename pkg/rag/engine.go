// Package rag ranks music knowledge, chord progressions and per-track
// feature records against a query and returns token-budgeted bundles.
package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/embedding"
	"daw-agent-be/pkg/project"

	"github.com/patrickmn/go-cache"
)

const module = "RAG"

// TrackRecord is the indexed feature summary of one project track.
type TrackRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	NoteCount int       `json:"noteCount"`
	Volume    float64   `json:"volume"`
	Pan       float64   `json:"pan"`
	Vector    []float32 `json:"-"`
	Timestamp time.Time `json:"-"`
}

type Config struct {
	SimilarityThreshold float64
	TrackMaxAge         time.Duration
	CleanupInterval     time.Duration
	CacheTTL            time.Duration
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.7,
		TrackMaxAge:         time.Hour,
		CleanupInterval:     10 * time.Minute,
		CacheTTL:            10 * time.Minute,
	}
}

type Option func(*Engine)

// WithCatalogue replaces the embedded catalogue.
func WithCatalogue(c Catalogue) Option {
	return func(e *Engine) { e.catalogue = c }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	cfg      Config
	embedder embedding.Embedder
	logger   logger.ILogger
	now      func() time.Time

	catalogue Catalogue

	mu         sync.RWMutex
	knowledge  []KnowledgeItem
	chords     []ChordProgression
	tracks     map[string]*TrackRecord
	trackOrder []string

	cache *cache.Cache

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewEngine(cfg Config, embedder embedding.Embedder, log logger.ILogger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.TrackMaxAge <= 0 {
		cfg.TrackMaxAge = def.TrackMaxAge
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	e := &Engine{
		cfg:      cfg,
		embedder: embedder,
		logger:   log,
		now:      time.Now,
		tracks:   make(map[string]*TrackRecord),
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalogue.Knowledge == nil && e.catalogue.ChordProgressions == nil {
		e.catalogue = DefaultCatalogue()
	}
	return e
}

// Start indexes the static catalogue and launches track cleanup.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.indexCatalogue(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.cleanupLoop(loopCtx)

	e.logger.Info(module, "Retrieval engine started", map[string]interface{}{
		"knowledge":    len(e.knowledge),
		"progressions": len(e.chords),
	})
	return nil
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.done
		}
	})
}

func (e *Engine) indexCatalogue(ctx context.Context) error {
	texts := make([]string, 0, len(e.catalogue.Knowledge))
	for _, item := range e.catalogue.Knowledge {
		texts = append(texts, item.Content+" "+strings.Join(item.Tags, " "))
	}
	vectors, err := embedding.EmbedAll(ctx, e.embedder, texts)
	if err != nil {
		return fmt.Errorf("embed knowledge: %w", err)
	}
	knowledge := make([]KnowledgeItem, len(e.catalogue.Knowledge))
	for i, item := range e.catalogue.Knowledge {
		item.Vector = vectors[i]
		knowledge[i] = item
	}

	texts = texts[:0]
	for _, p := range e.catalogue.ChordProgressions {
		texts = append(texts, p.Name+" "+strings.Join(p.Chords, " ")+" "+p.Description)
	}
	if vectors, err = embedding.EmbedAll(ctx, e.embedder, texts); err != nil {
		return fmt.Errorf("embed progressions: %w", err)
	}
	chords := make([]ChordProgression, len(e.catalogue.ChordProgressions))
	for i, p := range e.catalogue.ChordProgressions {
		p.Vector = vectors[i]
		chords[i] = p
	}

	e.mu.Lock()
	e.knowledge = knowledge
	e.chords = chords
	e.mu.Unlock()
	e.cache.Flush()
	return nil
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Cleanup()
		}
	}
}

// TrackText is the textual form a track is embedded from.
func TrackText(t project.Track) string {
	return fmt.Sprintf("%s %s %d notes volume %v pan %v", t.Name, t.Type, len(t.Notes), t.Volume, t.Pan)
}

// VectorizeTrackInfo upserts the feature record for t.
func (e *Engine) VectorizeTrackInfo(ctx context.Context, t project.Track) ([]float32, error) {
	vec, err := e.embedder.Embed(ctx, TrackText(t))
	if err != nil {
		return nil, fmt.Errorf("embed track %s: %w", t.ID, err)
	}

	rec := &TrackRecord{
		ID:        t.ID,
		Name:      t.Name,
		Type:      t.Type,
		NoteCount: len(t.Notes),
		Volume:    t.Volume,
		Pan:       t.Pan,
		Vector:    vec,
		Timestamp: e.now(),
	}

	e.mu.Lock()
	if _, exists := e.tracks[t.ID]; !exists {
		e.trackOrder = append(e.trackOrder, t.ID)
	}
	e.tracks[t.ID] = rec
	e.mu.Unlock()

	e.cache.Flush()
	return vec, nil
}

// VectorizeTracks refreshes every track in tracks.
func (e *Engine) VectorizeTracks(ctx context.Context, tracks []project.Track) error {
	for _, t := range tracks {
		if _, err := e.VectorizeTrackInfo(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup evicts track records older than the age window and returns how many
// were removed. Static knowledge is never evicted.
func (e *Engine) Cleanup() int {
	cutoff := e.now().Add(-e.cfg.TrackMaxAge)

	e.mu.Lock()
	removed := 0
	order := e.trackOrder[:0]
	for _, id := range e.trackOrder {
		if rec := e.tracks[id]; rec.Timestamp.Before(cutoff) {
			delete(e.tracks, id)
			removed++
			continue
		}
		order = append(order, id)
	}
	e.trackOrder = order
	e.mu.Unlock()

	if removed > 0 {
		e.cache.Flush()
		e.logger.Debug(module, "Stale track records evicted", map[string]interface{}{"count": removed})
	}
	return removed
}

// Progression looks up a chord progression by id.
func (e *Engine) Progression(id string) (ChordProgression, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.chords {
		if p.ID == id {
			return p, true
		}
	}
	return ChordProgression{}, false
}

type Stats struct {
	KnowledgeCount        int `json:"musicKnowledgeCount"`
	ChordProgressionCount int `json:"chordProgressionCount"`
	TrackVectorCount      int `json:"trackVectorCount"`
	CachedSearches        int `json:"cachedSearches"`
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		KnowledgeCount:        len(e.knowledge),
		ChordProgressionCount: len(e.chords),
		TrackVectorCount:      len(e.tracks),
		CachedSearches:        e.cache.ItemCount(),
	}
}
