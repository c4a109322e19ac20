// Package memory keeps the agent's two memory tiers: a short-term buffer of
// raw interactions for the current session, and long-term summaries produced
// when a session ends.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/embedding"
	"daw-agent-be/pkg/events"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const module = "MEMORY"

// Summarizer produces the long-term summary text for a session.
type Summarizer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Persistence is the blob store the manager snapshots itself into.
type Persistence interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

type Config struct {
	MaxShortTermItems  int
	MaxLongTermItems   int
	MaxTokensPerMemory int
	SearchLimit        int
	PromptTokens       int
	Retention          time.Duration
	CleanupInterval    time.Duration
	SnapshotKey        string
}

func DefaultConfig() Config {
	return Config{
		MaxShortTermItems:  50,
		MaxLongTermItems:   100,
		MaxTokensPerMemory: 500,
		SearchLimit:        5,
		PromptTokens:       1000,
		Retention:          30 * 24 * time.Hour,
		CleanupInterval:    time.Hour,
		SnapshotKey:        "agent-memory",
	}
}

var (
	ErrNoSummarizer      = errors.New("memory: no summarizer configured")
	ErrEmptySummary      = errors.New("memory: summarizer returned empty text")
	ErrSummaryInProgress = errors.New("memory: session summary already in progress")
	ErrCorruptSnapshot   = errors.New("memory: snapshot cannot be decoded")
)

const (
	relevanceThreshold    = 0.3
	summaryImportance     = 0.8
	defaultItemImportance = 0.5
	summaryBudgetFactor   = 3
)

type Option func(*Manager)

func WithSummarizer(s Summarizer) Option {
	return func(m *Manager) { m.summarizer = s }
}

// WithEmbedder indexes every summary into the vector index.
func WithEmbedder(e embedding.Embedder) Option {
	return func(m *Manager) { m.embedder = e }
}

func WithPersistence(p Persistence) Option {
	return func(m *Manager) { m.store = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	cfg    Config
	logger logger.ILogger
	events *events.Dispatcher

	summarizer Summarizer
	embedder   embedding.Embedder
	store      Persistence
	now        func() time.Time

	mu           sync.RWMutex
	shortTerm    []MemoryItem
	longTerm     []SummaryItem
	vectorIndex  map[string][]float32
	sessionID    string
	sessionStart time.Time
	summarizing  bool

	searchCache *cache.Cache

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewManager(cfg Config, log logger.ILogger, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.MaxShortTermItems <= 0 {
		cfg.MaxShortTermItems = def.MaxShortTermItems
	}
	if cfg.MaxLongTermItems <= 0 {
		cfg.MaxLongTermItems = def.MaxLongTermItems
	}
	if cfg.MaxTokensPerMemory <= 0 {
		cfg.MaxTokensPerMemory = def.MaxTokensPerMemory
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = def.SearchLimit
	}
	if cfg.PromptTokens <= 0 {
		cfg.PromptTokens = def.PromptTokens
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.SnapshotKey == "" {
		cfg.SnapshotKey = def.SnapshotKey
	}

	m := &Manager{
		cfg:         cfg,
		logger:      log,
		events:      events.NewDispatcher(),
		now:         time.Now,
		vectorIndex: make(map[string][]float32),
		searchCache: cache.New(5*time.Minute, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events exposes the manager's listener registry.
func (m *Manager) Events() *events.Dispatcher {
	return m.events
}

// Start restores the last snapshot, if any, and launches periodic cleanup.
func (m *Manager) Start(ctx context.Context) error {
	if m.store != nil {
		data, err := m.store.Load(ctx, m.cfg.SnapshotKey)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := m.ImportJSON(data); err != nil {
				m.logger.Warn(module, "Discarding unreadable memory snapshot", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.cleanupLoop(loopCtx)

	m.logger.Info(module, "Memory manager started", map[string]interface{}{
		"short_term": len(m.shortTerm),
		"long_term":  len(m.longTerm),
	})
	return nil
}

// Stop halts the cleanup loop and writes a final snapshot.
func (m *Manager) Stop(ctx context.Context) error {
	var err error
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
		err = m.Persist(ctx)
	})
	return err
}

// Persist writes the current snapshot to the configured store.
func (m *Manager) Persist(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	data, err := m.ExportJSON()
	if err != nil {
		return err
	}
	return m.store.Save(ctx, m.cfg.SnapshotKey, data)
}

// SnapshotKey is the blob key snapshots are stored under.
func (m *Manager) SnapshotKey() string {
	return m.cfg.SnapshotKey
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.CleanupOldMemories(); removed > 0 {
				m.logger.Info(module, "Expired long-term memories removed", map[string]interface{}{"count": removed})
			}
		}
	}
}

// StartSession opens a fresh short-term buffer. Anything left from an
// abandoned session is dropped.
func (m *Manager) StartSession(id string) string {
	if id == "" {
		id = "session_" + uuid.NewString()
	}

	m.mu.Lock()
	dropped := len(m.shortTerm)
	m.sessionID = id
	m.sessionStart = m.now()
	m.shortTerm = nil
	m.mu.Unlock()

	m.searchCache.Flush()
	m.logger.Info(module, "Session started", map[string]interface{}{"session_id": id, "dropped_items": dropped})
	return id
}

// CurrentSession returns the open session id, or "" when none is open.
func (m *Manager) CurrentSession() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// AddToShortTermMemory appends item, evicting the oldest entry once the buffer
// is over capacity. Missing fields are filled in.
func (m *Manager) AddToShortTermMemory(item MemoryItem) MemoryItem {
	m.mu.Lock()
	if item.ID == "" {
		item.ID = "stm_" + uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = m.now()
	}
	if item.Type == "" {
		item.Type = TypeConversation
	}
	if item.Importance == 0 {
		item.Importance = defaultItemImportance
	}
	item.Importance = clamp01(item.Importance)
	if item.SessionID == "" {
		item.SessionID = m.sessionID
	}

	m.shortTerm = append(m.shortTerm, item)
	if over := len(m.shortTerm) - m.cfg.MaxShortTermItems; over > 0 {
		m.shortTerm = append([]MemoryItem(nil), m.shortTerm[over:]...)
	}
	m.mu.Unlock()

	m.searchCache.Flush()
	m.logger.Debug(module, "Added to short-term memory", map[string]interface{}{"id": item.ID, "type": item.Type})
	m.events.Emit(events.New(events.MemoryAdded, map[string]interface{}{
		"tier": ShortTerm,
		"item": item,
	}))
	return item
}

// ShortTerm returns a copy of the short-term buffer.
func (m *Manager) ShortTerm() []MemoryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemoryItem, len(m.shortTerm))
	copy(out, m.shortTerm)
	return out
}

// LongTerm returns a copy of the summary table.
func (m *Manager) LongTerm() []SummaryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SummaryItem, len(m.longTerm))
	copy(out, m.longTerm)
	return out
}

// CleanupOldMemories drops summaries older than the retention window and
// returns how many were removed.
func (m *Manager) CleanupOldMemories() int {
	cutoff := m.now().Add(-m.cfg.Retention)

	m.mu.Lock()
	kept := m.longTerm[:0]
	removed := 0
	for _, s := range m.longTerm {
		if s.Timestamp.Before(cutoff) {
			delete(m.vectorIndex, s.ID)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.longTerm = kept
	m.mu.Unlock()

	if removed > 0 {
		m.searchCache.Flush()
	}
	return removed
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var duration time.Duration
	if m.sessionID != "" {
		duration = m.now().Sub(m.sessionStart)
	}
	return Stats{
		ShortTermCount:   len(m.shortTerm),
		LongTermCount:    len(m.longTerm),
		VectorCount:      len(m.vectorIndex),
		CurrentSessionID: m.sessionID,
		SessionDuration:  duration,
	}
}
