// Package project holds the music project model the agent mutates and the
// callback contract it mutates it through.
package project

import "context"

// Colours used to mark provisional tracks in the editor.
const (
	PendingColor = "#10B981"
	DefaultColor = "#3B82F6"
)

type Note struct {
	ID        string  `json:"id"`
	Pitch     int     `json:"pitch"`
	Time      float64 `json:"time"`
	Duration  float64 `json:"duration"`
	Velocity  float64 `json:"velocity"`
	IsPending bool    `json:"isPending,omitempty"`
}

type Track struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Instrument string  `json:"instrument,omitempty"`
	Color      string  `json:"color,omitempty"`
	Volume     float64 `json:"volume"`
	Pan        float64 `json:"pan"`
	Muted      bool    `json:"muted,omitempty"`
	Solo       bool    `json:"solo,omitempty"`
	Notes      []Note  `json:"notes"`
	IsPending  bool    `json:"isPending,omitempty"`
}

// Note returns the note with id, if the track has one.
func (t Track) Note(id string) (Note, bool) {
	for _, n := range t.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

// Clone deep-copies the track.
func (t Track) Clone() Track {
	out := t
	if t.Notes != nil {
		out.Notes = append([]Note(nil), t.Notes...)
	}
	return out
}

type Info struct {
	Name          string  `json:"name"`
	Tempo         float64 `json:"tempo"`
	Key           string  `json:"key"`
	TimeSignature string  `json:"timeSignature"`
}

// TrackPatch is a partial track update; nil fields are left alone.
type TrackPatch struct {
	Name       *string  `json:"name,omitempty"`
	Type       *string  `json:"type,omitempty"`
	Instrument *string  `json:"instrument,omitempty"`
	Color      *string  `json:"color,omitempty"`
	Volume     *float64 `json:"volume,omitempty"`
	Pan        *float64 `json:"pan,omitempty"`
	Muted      *bool    `json:"muted,omitempty"`
	Solo       *bool    `json:"solo,omitempty"`
	IsPending  *bool    `json:"isPending,omitempty"`
}

// PatchFrom builds a patch that restores every scalar field of t.
func PatchFrom(t Track) TrackPatch {
	return TrackPatch{
		Name:       ptr(t.Name),
		Type:       ptr(t.Type),
		Instrument: ptr(t.Instrument),
		Color:      ptr(t.Color),
		Volume:     ptr(t.Volume),
		Pan:        ptr(t.Pan),
		Muted:      ptr(t.Muted),
		Solo:       ptr(t.Solo),
		IsPending:  ptr(t.IsPending),
	}
}

// Apply returns t with the patch applied.
func (p TrackPatch) Apply(t Track) Track {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Instrument != nil {
		t.Instrument = *p.Instrument
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Volume != nil {
		t.Volume = *p.Volume
	}
	if p.Pan != nil {
		t.Pan = *p.Pan
	}
	if p.Muted != nil {
		t.Muted = *p.Muted
	}
	if p.Solo != nil {
		t.Solo = *p.Solo
	}
	if p.IsPending != nil {
		t.IsPending = *p.IsPending
	}
	return t
}

// Settings is a partial project-settings update.
type Settings struct {
	Name          *string  `json:"name,omitempty"`
	Tempo         *float64 `json:"tempo,omitempty"`
	Key           *string  `json:"key,omitempty"`
	TimeSignature *string  `json:"timeSignature,omitempty"`
}

// Mutator is the set of callbacks through which the agent changes a project.
// Implementations own the project state; the agent only uses AddTrack's
// returned id for bookkeeping.
type Mutator interface {
	AddTrack(ctx context.Context, track Track) (Track, error)
	UpdateTrack(ctx context.Context, trackID string, patch TrackPatch) error
	DeleteTrack(ctx context.Context, trackID string) error
	// RestoreTrack re-inserts a deleted track at index, or at the end when
	// index is past it.
	RestoreTrack(ctx context.Context, track Track, index int) error
	AddMidiNotes(ctx context.Context, trackID string, notes []Note) error
	UpdateMidiNotes(ctx context.Context, trackID string, notes []Note) error
	DeleteMidiNotes(ctx context.Context, trackID string, noteIDs []string) error
	ApproveMidiNotes(ctx context.Context, trackID string, notes []Note) error
	RejectMidiNotes(ctx context.Context, trackID string, noteIDs []string) error
	UpdateProjectSettings(ctx context.Context, settings Settings) error
}

func ptr[T any](v T) *T {
	return &v
}
