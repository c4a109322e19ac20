package executor

import (
	"strings"

	"daw-agent-be/pkg/project"
	"daw-agent-be/pkg/rag"

	"github.com/google/uuid"
)

const (
	middleC       = 60
	beatsPerChord = 4
	chordVelocity = 0.8
	fallbackTempo = 120.0
)

// Semitone offsets from C for each chord symbol the library uses.
var chordPatterns = map[string][]int{
	"C":     {0, 4, 7},
	"Cm":    {0, 3, 7},
	"C7":    {0, 4, 7, 10},
	"Cmaj7": {0, 4, 7, 11},
	"Am":    {9, 0, 4},
	"F":     {5, 9, 0},
	"G":     {7, 11, 2},
	"G7":    {7, 11, 2, 5},
	"Dm7":   {2, 5, 9, 0},
	"C5":    {0, 7},
	"F5":    {5, 0},
	"G5":    {7, 2},
}

var keyOffsets = map[string]int{
	"C": 0, "C#": 1, "Db": 1, "D": 2, "D#": 3, "Eb": 3, "E": 4, "F": 5,
	"F#": 6, "Gb": 6, "G": 7, "G#": 8, "Ab": 8, "A": 9, "A#": 10, "Bb": 10, "B": 11,
}

// keyOffset reads the tonic from keys such as "C", "F# minor" or "Bbm".
func keyOffset(key string) int {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0
	}
	if len(key) >= 2 {
		if off, ok := keyOffsets[key[:2]]; ok {
			return off
		}
	}
	return keyOffsets[key[:1]]
}

// ChordPitches returns the MIDI pitches of chord transposed into key. Unknown
// symbols fall back to a C major triad.
func ChordPitches(chord, key string) []int {
	pattern, ok := chordPatterns[chord]
	if !ok {
		return []int{middleC, middleC + 4, middleC + 7}
	}
	offset := keyOffset(key)
	pitches := make([]int, len(pattern))
	for i, p := range pattern {
		pitches[i] = p + offset + middleC
	}
	return pitches
}

// ProgressionNotes lays a progression out as block chords of four beats each.
func ProgressionNotes(p rag.ChordProgression, info project.Info) []project.Note {
	tempo := info.Tempo
	if tempo <= 0 {
		tempo = fallbackTempo
	}
	chordDuration := 60 / tempo * beatsPerChord

	var notes []project.Note
	for i, chord := range p.Chords {
		start := float64(i) * chordDuration
		for _, pitch := range ChordPitches(chord, info.Key) {
			notes = append(notes, project.Note{
				ID:       "note-" + uuid.NewString(),
				Pitch:    pitch,
				Time:     start,
				Duration: chordDuration,
				Velocity: chordVelocity,
			})
		}
	}
	return notes
}
