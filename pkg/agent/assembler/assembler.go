// Package assembler merges memory recall and retrieval results into one
// token-bounded context block per pipeline phase.
package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/memory"
	"daw-agent-be/pkg/project"
	"daw-agent-be/pkg/rag"
	"daw-agent-be/pkg/token"
)

const module = "ASSEMBLER"

type Phase string

const (
	PhaseSense Phase = "sense"
	PhasePlan  Phase = "plan"
	PhaseAct   Phase = "act"
)

// Memory is the slice of the memory manager the assembler reads.
type Memory interface {
	BuildPromptMemory(query string, maxTokens int) memory.PromptMemory
}

// Retriever is the slice of the retrieval engine the assembler reads.
type Retriever interface {
	VectorizeTracks(ctx context.Context, tracks []project.Track) error
	SearchTrackInfo(ctx context.Context, query string, limit int) ([]rag.TrackHit, error)
	SearchAll(ctx context.Context, query string, opts rag.SearchOptions) (rag.Bundle, error)
}

type Config struct {
	MaxMemoryTokens int
	MaxRAGTokens    int
	UseMemory       bool
	UseRAG          bool
}

func DefaultConfig() Config {
	return Config{MaxMemoryTokens: 800, MaxRAGTokens: 1200, UseMemory: true, UseRAG: true}
}

// Block is the assembled context for one phase. Its item token estimates stay
// within the memory and retrieval budgets.
type Block struct {
	Phase        Phase           `json:"phase"`
	Memories     []memory.Recall `json:"memories"`
	Retrieval    rag.Bundle      `json:"retrieval"`
	MemoryTokens int             `json:"memoryTokens"`
	RAGTokens    int             `json:"ragTokens"`
	Text         string          `json:"text"`
}

func (b Block) TotalTokens() int {
	return b.MemoryTokens + b.RAGTokens
}

type Assembler struct {
	cfg       Config
	memory    Memory
	retriever Retriever
	logger    logger.ILogger
}

// New builds an assembler. Either source may be nil, which disables it.
func New(cfg Config, mem Memory, retriever Retriever, log logger.ILogger) *Assembler {
	def := DefaultConfig()
	if cfg.MaxMemoryTokens <= 0 {
		cfg.MaxMemoryTokens = def.MaxMemoryTokens
	}
	if cfg.MaxRAGTokens <= 0 {
		cfg.MaxRAGTokens = def.MaxRAGTokens
	}
	return &Assembler{cfg: cfg, memory: mem, retriever: retriever, logger: log}
}

func (a *Assembler) memoryEnabled() bool { return a.cfg.UseMemory && a.memory != nil }

func (a *Assembler) ragEnabled() bool { return a.cfg.UseRAG && a.retriever != nil }

// Assemble gathers the context for phase. Sense gets memory plus related
// tracks, plan gets memory plus knowledge and chords, act gets a
// chord-heavy retrieval bundle only.
func (a *Assembler) Assemble(ctx context.Context, phase Phase, query string, actx agent.Context) (Block, error) {
	block := Block{Phase: phase, Memories: []memory.Recall{}}

	if a.memoryEnabled() && phase != PhaseAct {
		pm := a.memory.BuildPromptMemory(query, a.cfg.MaxMemoryTokens)
		block.Memories = pm.Memories
		block.MemoryTokens = pm.TotalTokens
	}

	if a.ragEnabled() {
		var err error
		switch phase {
		case PhaseSense:
			block.Retrieval, err = a.senseRetrieval(ctx, query, actx)
		case PhasePlan:
			block.Retrieval, err = a.retriever.SearchAll(ctx, query, rag.SearchOptions{
				KnowledgeLimit: 2, ChordLimit: 2, TrackLimit: 2, MaxTotalTokens: a.cfg.MaxRAGTokens,
			})
		case PhaseAct:
			block.Retrieval, err = a.retriever.SearchAll(ctx, query, rag.SearchOptions{
				KnowledgeLimit: 1, ChordLimit: 3, TrackLimit: 2, MaxTotalTokens: a.cfg.MaxRAGTokens,
			})
		default:
			return Block{}, fmt.Errorf("unknown phase %q", phase)
		}
		if err != nil {
			return Block{}, fmt.Errorf("%s retrieval: %w", phase, err)
		}
		block.RAGTokens = block.Retrieval.TotalTokens
	}

	block.Text = render(block)
	a.logger.Debug(module, "Context assembled", map[string]interface{}{
		"phase":        phase,
		"memories":     len(block.Memories),
		"memoryTokens": block.MemoryTokens,
		"ragTokens":    block.RAGTokens,
	})
	return block, nil
}

// senseRetrieval refreshes the track index from the request and returns the
// tracks most related to query, trimmed to the retrieval budget.
func (a *Assembler) senseRetrieval(ctx context.Context, query string, actx agent.Context) (rag.Bundle, error) {
	if err := a.retriever.VectorizeTracks(ctx, actx.ExistingTracks); err != nil {
		return rag.Bundle{}, err
	}
	hits, err := a.retriever.SearchTrackInfo(ctx, query, 5)
	if err != nil {
		return rag.Bundle{}, err
	}

	b := rag.Bundle{}
	for _, h := range hits {
		cost := rag.BundleTokens(rag.Bundle{TrackInfo: []rag.TrackHit{h}})
		if b.TotalTokens+cost > a.cfg.MaxRAGTokens && len(b.TrackInfo) > 0 {
			break
		}
		b.TrackInfo = append(b.TrackInfo, h)
		b.TotalTokens += cost
	}
	return b, nil
}

func render(b Block) string {
	var sb strings.Builder
	writeMemories(&sb, b.Memories)
	rag.WriteSections(&sb, b.Retrieval)
	return sb.String()
}

func writeMemories(sb *strings.Builder, recalls []memory.Recall) {
	if len(recalls) == 0 {
		return
	}
	sb.WriteString("=== RELATED MEMORY ===\n")
	for _, r := range recalls {
		sb.WriteString("- ")
		sb.WriteString(describe(r))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func describe(r memory.Recall) string {
	if r.Tier == memory.LongTerm {
		var summary string
		if err := json.Unmarshal([]byte(r.Text), &summary); err == nil {
			return "Earlier session: " + summary
		}
		return "Earlier session: " + r.Text
	}

	var c memory.Content
	if err := json.Unmarshal([]byte(r.Text), &c); err != nil {
		return r.Text
	}
	if r.Type == memory.TypeAction {
		return fmt.Sprintf("Executed action: %s -> %s", c.Action, c.Result)
	}
	return fmt.Sprintf("Past conversation: %s -> %s", c.UserMessage, truncate(c.AssistantResponse, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Estimate is the token estimate of the rendered block text.
func (b Block) Estimate() int {
	return token.Estimate(b.Text)
}
