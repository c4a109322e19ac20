package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/embedding"
	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSummarizer struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
}

func (s *stubSummarizer) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.text, s.err
}

type memStore struct {
	data map[string][]byte
}

func (s *memStore) Load(_ context.Context, key string) ([]byte, error) {
	return s.data[key], nil
}

func (s *memStore) Save(_ context.Context, key string, data []byte) error {
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func newTestManager(cfg Config, opts ...Option) *Manager {
	return NewManager(cfg, logger.NewNopLogger(), opts...)
}

func conversation(user, assistant string, importance float64) MemoryItem {
	return MemoryItem{
		Type:       TypeConversation,
		Importance: importance,
		Content:    Content{UserMessage: user, AssistantResponse: assistant},
	}
}

func TestShortTermFIFOEviction(t *testing.T) {
	m := newTestManager(Config{MaxShortTermItems: 3})
	m.StartSession("s1")

	var ids []string
	for _, msg := range []string{"first", "second", "third", "fourth"} {
		ids = append(ids, m.AddToShortTermMemory(conversation(msg, "ok", 0.5)).ID)
	}

	items := m.ShortTerm()
	require.Len(t, items, 3)
	assert.Equal(t, ids[1:], []string{items[0].ID, items[1].ID, items[2].ID})
	for _, item := range items {
		assert.NotEqual(t, ids[0], item.ID)
	}
}

func TestAddFillsDefaults(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.StartSession("s-defaults")

	var emitted []events.Event
	m.Events().Subscribe(func(e events.Event) { emitted = append(emitted, e) })

	item := m.AddToShortTermMemory(MemoryItem{Content: Content{UserMessage: "hi"}, Importance: 4})

	assert.True(t, strings.HasPrefix(item.ID, "stm_"))
	assert.Equal(t, TypeConversation, item.Type)
	assert.Equal(t, 1.0, item.Importance)
	assert.Equal(t, "s-defaults", item.SessionID)
	assert.False(t, item.Timestamp.IsZero())
	require.Len(t, emitted, 1)
	assert.Equal(t, events.MemoryAdded, emitted[0].EventType())
}

func TestStartSessionDiscardsAbandonedBuffer(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.StartSession("old")
	m.AddToShortTermMemory(conversation("left behind", "", 0.5))

	id := m.StartSession("")

	assert.True(t, strings.HasPrefix(id, "session_"))
	assert.Empty(t, m.ShortTerm())
	assert.Equal(t, id, m.CurrentSession())
}

func TestSearchRelevantMemories(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.StartSession("s")
	piano := m.AddToShortTermMemory(conversation("add a piano track", "added piano track", 0.6))
	m.AddToShortTermMemory(conversation("mute drums", "muted", 0.6))
	pianoMelody := m.AddToShortTermMemory(conversation("write piano melody", "wrote melody", 0.6))

	hits := m.SearchRelevantMemories("piano track", 5)

	require.Len(t, hits, 2)
	assert.Equal(t, piano.ID, hits[0].ID)
	assert.Equal(t, 1.0, hits[0].Score)
	assert.Equal(t, pianoMelody.ID, hits[1].ID)
	assert.Equal(t, 0.5, hits[1].Score)
	for _, h := range hits {
		assert.Equal(t, ShortTerm, h.Tier)
	}
}

func TestSearchTieBreakKeepsInsertionOrder(t *testing.T) {
	m := newTestManager(DefaultConfig())
	a := m.AddToShortTermMemory(conversation("bass line", "", 0.5))
	b := m.AddToShortTermMemory(conversation("bass groove", "", 0.5))
	c := m.AddToShortTermMemory(conversation("bass solo", "", 0.5))

	hits := m.SearchRelevantMemories("bass", 2)

	require.Len(t, hits, 2)
	assert.Equal(t, a.ID, hits[0].ID)
	assert.Equal(t, b.ID, hits[1].ID)
	assert.NotEqual(t, c.ID, hits[1].ID)
}

func TestSearchIgnoresShortWordsAndLowOverlap(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.AddToShortTermMemory(conversation("a b c", "xy", 0.5))

	assert.Empty(t, m.SearchRelevantMemories("a b c", 5))
	assert.Empty(t, m.SearchRelevantMemories("", 5))
	assert.Empty(t, m.SearchRelevantMemories("completely unrelated words here", 5))
}

func TestSearchCacheIsInvalidatedByWrites(t *testing.T) {
	m := newTestManager(DefaultConfig())
	assert.Empty(t, m.SearchRelevantMemories("reverb", 5))

	m.AddToShortTermMemory(conversation("more reverb on vocals", "done", 0.5))

	assert.Len(t, m.SearchRelevantMemories("reverb", 5), 1)
}

func TestBuildPromptMemoryRespectsBudget(t *testing.T) {
	m := newTestManager(DefaultConfig())
	for i := 0; i < 4; i++ {
		m.AddToShortTermMemory(conversation("chord progression in jazz", strings.Repeat("voicing ", 20), 0.5))
	}

	one := token.Estimate(m.ShortTerm()[0].serialize())
	pm := m.BuildPromptMemory("chord progression jazz", one*2+1)

	assert.Len(t, pm.Memories, 2)
	assert.LessOrEqual(t, pm.TotalTokens, one*2+1)
	for i := 1; i < len(pm.Memories); i++ {
		assert.GreaterOrEqual(t, pm.Memories[i-1].Score, pm.Memories[i].Score)
	}
}

func TestBuildPromptMemoryStopsAtFirstOverflow(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.AddToShortTermMemory(conversation("tempo change tempo", strings.Repeat("long ", 200), 0.5))
	m.AddToShortTermMemory(conversation("tempo", "short", 0.5))

	pm := m.BuildPromptMemory("tempo change", 50)

	assert.Empty(t, pm.Memories)
	assert.Equal(t, 0, pm.TotalTokens)
}

func TestEndSessionStoresSummaryAndClearsBuffer(t *testing.T) {
	sum := &stubSummarizer{text: "User built a piano intro."}
	m := newTestManager(DefaultConfig(), WithSummarizer(sum), WithEmbedder(embedding.NewHashEmbedder(32)))
	m.StartSession("s-end")
	low := m.AddToShortTermMemory(conversation("hello", "hi", 0.2))
	high := m.AddToShortTermMemory(MemoryItem{Type: TypeAction, Importance: 0.9, Content: Content{Action: "addTrack", Result: "Piano"}})

	var summarized []events.Event
	m.Events().Subscribe(func(e events.Event) {
		if e.EventType() == events.SessionSummarized {
			summarized = append(summarized, e)
		}
	})

	summary, err := m.EndSession(context.Background())

	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "User built a piano intro.", summary.Content)
	assert.Equal(t, "s-end", summary.SessionID)
	assert.Equal(t, []string{high.ID, low.ID}, summary.SourceItemIDs)
	assert.Equal(t, token.Estimate(summary.Content), summary.TokenCount)
	assert.Equal(t, 0.8, summary.Importance)

	assert.Empty(t, m.ShortTerm())
	assert.Len(t, m.LongTerm(), 1)
	assert.Equal(t, "", m.CurrentSession())
	assert.Equal(t, 1, m.Stats().VectorCount)
	assert.Len(t, summarized, 1)

	require.Len(t, sum.prompts, 1)
	assert.Contains(t, sum.prompts[0], "- hello: hi")
	assert.Contains(t, sum.prompts[0], "- addTrack: Piano")
}

func TestEndSessionFailureKeepsBuffer(t *testing.T) {
	sum := &stubSummarizer{err: errors.New("gateway unavailable")}
	m := newTestManager(DefaultConfig(), WithSummarizer(sum))
	m.StartSession("s-fail")
	m.AddToShortTermMemory(conversation("keep me", "please", 0.5))

	summary, err := m.EndSession(context.Background())

	assert.Nil(t, summary)
	assert.Error(t, err)
	assert.Len(t, m.ShortTerm(), 1)
	assert.Equal(t, "s-fail", m.CurrentSession())
	assert.Empty(t, m.LongTerm())

	sum.err = nil
	sum.text = "recovered"
	summary, err = m.EndSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recovered", summary.Content)
	assert.Empty(t, m.ShortTerm())
}

func TestEndSessionEmptySummaryIsFailure(t *testing.T) {
	m := newTestManager(DefaultConfig(), WithSummarizer(&stubSummarizer{text: "  "}))
	m.AddToShortTermMemory(conversation("x", "y", 0.5))

	_, err := m.EndSession(context.Background())

	assert.ErrorIs(t, err, ErrEmptySummary)
	assert.Len(t, m.ShortTerm(), 1)
}

func TestEndSessionWithEmptyBuffer(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.StartSession("quiet")

	summary, err := m.EndSession(context.Background())

	require.NoError(t, err)
	assert.Nil(t, summary)
	assert.Equal(t, "", m.CurrentSession())
}

func TestSelectForSummaryBudget(t *testing.T) {
	m := newTestManager(Config{MaxTokensPerMemory: 10})
	big := conversation(strings.Repeat("word ", 40), "", 0.9)
	small := conversation("tiny", "", 0.1)

	selected := m.selectForSummary([]MemoryItem{small, big})

	require.Len(t, selected, 1)
	assert.Equal(t, big.Content, selected[0].Content)
}

func TestLongTermCapacity(t *testing.T) {
	sum := &stubSummarizer{text: "summary"}
	m := newTestManager(Config{MaxLongTermItems: 2}, WithSummarizer(sum))

	for i := 0; i < 3; i++ {
		m.StartSession("")
		m.AddToShortTermMemory(conversation("item", "", 0.5))
		_, err := m.EndSession(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, m.LongTerm(), 2)
}

func TestCleanupOldMemories(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	m := newTestManager(DefaultConfig(), WithClock(func() time.Time { return now }))
	m.Import(Snapshot{LongTermMemory: []SummaryItem{
		{ID: "old", Content: "old", Timestamp: now.Add(-31 * 24 * time.Hour)},
		{ID: "new", Content: "new", Timestamp: now.Add(-time.Hour)},
	}})

	removed := m.CleanupOldMemories()

	assert.Equal(t, 1, removed)
	require.Len(t, m.LongTerm(), 1)
	assert.Equal(t, "new", m.LongTerm()[0].ID)
}

func TestExportImportRoundTrip(t *testing.T) {
	sum := &stubSummarizer{text: "drums were added"}
	src := newTestManager(DefaultConfig(), WithSummarizer(sum), WithEmbedder(embedding.NewHashEmbedder(8)))
	src.AddToShortTermMemory(conversation("add drums", "ok", 0.5))
	_, err := src.EndSession(context.Background())
	require.NoError(t, err)
	src.AddToShortTermMemory(conversation("pending", "", 0.5))

	data, err := src.ExportJSON()
	require.NoError(t, err)

	dst := newTestManager(DefaultConfig())
	require.NoError(t, dst.ImportJSON(data))

	assert.Equal(t, src.Stats().ShortTermCount, dst.Stats().ShortTermCount)
	assert.Equal(t, src.Stats().LongTermCount, dst.Stats().LongTermCount)
	assert.Equal(t, 1, dst.Stats().VectorCount)
	assert.Equal(t, src.LongTerm()[0].Content, dst.LongTerm()[0].Content)

	assert.ErrorIs(t, dst.ImportJSON([]byte("{")), ErrCorruptSnapshot)
}

func TestStartRestoresAndStopPersists(t *testing.T) {
	store := &memStore{data: map[string][]byte{}}

	first := newTestManager(DefaultConfig(), WithPersistence(store))
	require.NoError(t, first.Start(context.Background()))
	first.AddToShortTermMemory(conversation("remember the key of D", "", 0.5))
	require.NoError(t, first.Stop(context.Background()))
	require.NoError(t, first.Stop(context.Background()))

	second := newTestManager(DefaultConfig(), WithPersistence(store))
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop(context.Background())

	require.Len(t, second.ShortTerm(), 1)
	assert.Equal(t, "remember the key of D", second.ShortTerm()[0].Content.UserMessage)
}
