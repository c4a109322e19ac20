package pipeline

import (
	"fmt"
	"strings"

	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/agent/assembler"
	"daw-agent-be/pkg/project"
)

var actionTypes = []string{
	agent.ActionAddTrack, agent.ActionUpdateTrack, agent.ActionDeleteTrack,
	agent.ActionAddMidiNotes, agent.ActionUpdateMidiNotes, agent.ActionDeleteMidiNotes,
	agent.ActionUpdateProjectSettings, agent.ActionUseChordProgression,
}

// ═══════════════════════════════════════════════════════════════
// SENSE
// ═══════════════════════════════════════════════════════════════

func buildSensePrompt(userPrompt string, actx agent.Context, block assembler.Block) string {
	var sb strings.Builder
	sb.WriteString("You are a DAW assistant. First make sure you understand the current situation.\n\n")

	writeProject(&sb, actx, true)
	writeTracks(&sb, actx.ExistingTracks)
	writeCurrentTrack(&sb, actx.CurrentTrack)
	sb.WriteString(block.Text)
	writeRequest(&sb, userPrompt)

	sb.WriteString("Describe the situation briefly in 3-4 sentences:\n")
	sb.WriteString("- the current state of the project\n")
	sb.WriteString("- what the user is asking for\n")
	sb.WriteString("- what should happen next\n")
	return sb.String()
}

// ═══════════════════════════════════════════════════════════════
// PLAN
// ═══════════════════════════════════════════════════════════════

func buildPlanPrompt(userPrompt string, actx agent.Context, block assembler.Block, analysis string) string {
	var sb strings.Builder
	sb.WriteString("Based on the analysis, draw up a short execution plan.\n\n")

	if analysis != "" {
		sb.WriteString("=== ANALYSIS ===\n")
		sb.WriteString(truncateRunes(strings.TrimSpace(analysis), 600))
		sb.WriteString("\n\n")
	}
	writeProject(&sb, actx, false)
	writeTracks(&sb, actx.ExistingTracks)
	sb.WriteString(block.Text)
	writeRequest(&sb, userPrompt)

	fmt.Fprintf(&sb, "Available operations: %s\n\n", strings.Join(actionTypes, ", "))
	sb.WriteString("Explain the plan in 3-5 sentences:\n")
	sb.WriteString("1. what will be done\n")
	sb.WriteString("2. on which tracks\n")
	sb.WriteString("3. the musical effect to expect\n")
	sb.WriteString("If you can, close with a JSON object of the form {\"actions\": [...], \"summary\": \"...\", \"nextSteps\": \"...\"}.\n")
	return sb.String()
}

// ═══════════════════════════════════════════════════════════════
// ACT
// ═══════════════════════════════════════════════════════════════

const actSchema = `{
  "actions": [
    {
      "type": "addMidiNotes | updateTrack | ...",
      "params": { "trackId": "exact track id", "notes": [...] },
      "description": "one-line description of the operation"
    }
  ],
  "summary": "one-line summary of what was done",
  "nextSteps": "short suggestion for what to do next"
}`

func buildActPrompt(userPrompt string, actx agent.Context, block assembler.Block, plan agent.Plan) string {
	var sb strings.Builder
	sb.WriteString("Generate the JSON actions that carry out the plan.\n\n")

	sb.WriteString("=== PLAN ===\n")
	summary := plan.Summary
	if summary == "" {
		summary = "A plan was drawn up."
	}
	sb.WriteString(summary)
	sb.WriteString("\n\n")

	writeProject(&sb, actx, false)
	writeTracks(&sb, actx.ExistingTracks)
	sb.WriteString(block.Text)
	writeRequest(&sb, userPrompt)

	sb.WriteString("IMPORTANT: output JSON only. Keep explanations inside summary and nextSteps.\n\n")
	sb.WriteString("JSON format:\n")
	sb.WriteString(actSchema)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Operation types: %s\n", strings.Join(actionTypes, ", "))
	sb.WriteString("Notes use {\"pitch\": MIDI number, \"time\": seconds, \"duration\": seconds, \"velocity\": 0-1}.\n")
	sb.WriteString("To create a track and fill it in one go, use \"new-piano-track\" as the trackId of the notes.\n")
	return sb.String()
}

// ═══════════════════════════════════════════════════════════════
// SHARED SECTIONS
// ═══════════════════════════════════════════════════════════════

func writeProject(sb *strings.Builder, actx agent.Context, withCount bool) {
	info := actx.ProjectInfo
	name := info.Name
	if name == "" {
		name = "Unknown"
	}
	tempo := info.Tempo
	if tempo <= 0 {
		tempo = 120
	}
	key := info.Key
	if key == "" {
		key = "C"
	}
	sig := info.TimeSignature
	if sig == "" {
		sig = "4/4"
	}

	sb.WriteString("=== PROJECT ===\n")
	fmt.Fprintf(sb, "Project: %s, tempo: %vBPM, key: %s, time signature: %s", name, tempo, key, sig)
	if withCount {
		fmt.Fprintf(sb, ", tracks: %d", len(actx.ExistingTracks))
	}
	sb.WriteString("\n\n")
}

func writeTracks(sb *strings.Builder, tracks []project.Track) {
	sb.WriteString("=== TRACKS ===\n")
	if len(tracks) == 0 {
		sb.WriteString("none\n\n")
		return
	}
	for _, t := range tracks {
		fmt.Fprintf(sb, "- ID: %q, name: %q, type: %s, notes: %d\n", t.ID, t.Name, t.Type, len(t.Notes))
	}
	sb.WriteString("\n")
}

func writeCurrentTrack(sb *strings.Builder, t *project.Track) {
	sb.WriteString("=== CURRENT TRACK ===\n")
	if t == nil {
		sb.WriteString("none\n\n")
		return
	}
	fmt.Fprintf(sb, "ID: %q, name: %q, type: %s, notes: %d\n\n", t.ID, t.Name, t.Type, len(t.Notes))
}

func writeRequest(sb *strings.Builder, prompt string) {
	sb.WriteString("=== USER REQUEST ===\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\n")
}
