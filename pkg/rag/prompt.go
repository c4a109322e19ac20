package rag

import (
	"fmt"
	"strings"
)

// BuildRAGPrompt renders a search bundle as reference sections followed by
// the user question.
func BuildRAGPrompt(query string, b Bundle) string {
	var sb strings.Builder
	sb.WriteString("Use the following reference information to answer the user's request.\n\n")

	writeKnowledgeSection(&sb, b.Knowledge)
	writeChordSection(&sb, b.ChordProgressions)
	writeTrackSection(&sb, b.TrackInfo)

	sb.WriteString("=== USER REQUEST ===\n")
	sb.WriteString(query)
	sb.WriteString("\n\nGive a concrete, practical answer based on the information above.")
	return sb.String()
}

// WriteSections renders only the reference sections of b.
func WriteSections(sb *strings.Builder, b Bundle) {
	writeKnowledgeSection(sb, b.Knowledge)
	writeChordSection(sb, b.ChordProgressions)
	writeTrackSection(sb, b.TrackInfo)
}

func writeKnowledgeSection(sb *strings.Builder, hits []KnowledgeHit) {
	if len(hits) == 0 {
		return
	}
	sb.WriteString("=== MUSIC KNOWLEDGE ===\n")
	for _, h := range hits {
		fmt.Fprintf(sb, "%s:\n%s\n\n", h.Item.Title, h.Item.Content)
	}
}

func writeChordSection(sb *strings.Builder, hits []ChordHit) {
	if len(hits) == 0 {
		return
	}
	sb.WriteString("=== CHORD PROGRESSION LIBRARY ===\n")
	for _, h := range hits {
		p := h.Progression
		fmt.Fprintf(sb, "[%s] %s: %s (%s)\n", p.ID, p.Name, strings.Join(p.Chords, " - "), p.Description)
	}
	sb.WriteString("\n")
}

func writeTrackSection(sb *strings.Builder, hits []TrackHit) {
	if len(hits) == 0 {
		return
	}
	sb.WriteString("=== CURRENT TRACKS ===\n")
	for _, h := range hits {
		t := h.Track
		fmt.Fprintf(sb, "- %s (%s): %d notes, volume %v, pan %v\n", t.Name, t.Type, t.NoteCount, t.Volume, t.Pan)
	}
	sb.WriteString("\n")
}
