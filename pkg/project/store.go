package project

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrTrackNotFound = errors.New("track not found")
	ErrTrackExists   = errors.New("track already exists")
	ErrNoteNotFound  = errors.New("note not found")
	ErrNoteExists    = errors.New("note already exists")
)

// Store is an in-memory project that implements Mutator. The service keeps
// one as the server-side mirror of the editor's project.
type Store struct {
	mu     sync.RWMutex
	info   Info
	tracks []Track
}

var _ Mutator = &Store{}

func NewStore(info Info, tracks ...Track) *Store {
	s := &Store{info: info}
	for _, t := range tracks {
		s.tracks = append(s.tracks, normalize(t))
	}
	return s
}

func normalize(t Track) Track {
	t = t.Clone()
	if t.Notes == nil {
		t.Notes = []Note{}
	}
	return t
}

// Replace swaps in a whole new project state.
func (s *Store) Replace(info Info, tracks []Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	s.tracks = s.tracks[:0]
	for _, t := range tracks {
		s.tracks = append(s.tracks, normalize(t))
	}
}

func (s *Store) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Tracks returns a deep copy of every track, in order.
func (s *Store) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t.Clone())
	}
	return out
}

func (s *Store) Track(id string) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.tracks[i].Clone(), true
	}
	return Track{}, false
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) AddTrack(_ context.Context, track Track) (Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if track.ID == "" {
		track.ID = "track-" + uuid.NewString()
	}
	if s.indexOf(track.ID) >= 0 {
		return Track{}, fmt.Errorf("%w: %s", ErrTrackExists, track.ID)
	}
	track = normalize(track)
	for i := range track.Notes {
		if track.Notes[i].ID == "" {
			track.Notes[i].ID = "note-" + uuid.NewString()
		}
	}
	s.tracks = append(s.tracks, track)
	return track.Clone(), nil
}

func (s *Store) UpdateTrack(_ context.Context, trackID string, patch TrackPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(trackID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	s.tracks[i] = patch.Apply(s.tracks[i])
	return nil
}

func (s *Store) DeleteTrack(_ context.Context, trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(trackID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
	return nil
}

func (s *Store) RestoreTrack(_ context.Context, track Track, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(track.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrTrackExists, track.ID)
	}
	if index < 0 || index > len(s.tracks) {
		index = len(s.tracks)
	}
	s.tracks = append(s.tracks, Track{})
	copy(s.tracks[index+1:], s.tracks[index:])
	s.tracks[index] = normalize(track)
	return nil
}

func (s *Store) AddMidiNotes(_ context.Context, trackID string, notes []Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(trackID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	for _, n := range notes {
		if n.ID == "" {
			n.ID = "note-" + uuid.NewString()
		}
		if _, exists := s.tracks[i].Note(n.ID); exists {
			return fmt.Errorf("%w: %s", ErrNoteExists, n.ID)
		}
		s.tracks[i].Notes = append(s.tracks[i].Notes, n)
	}
	return nil
}

func (s *Store) UpdateMidiNotes(_ context.Context, trackID string, notes []Note) error {
	return s.replaceNotes(trackID, notes)
}

func (s *Store) ApproveMidiNotes(_ context.Context, trackID string, notes []Note) error {
	return s.replaceNotes(trackID, notes)
}

func (s *Store) replaceNotes(trackID string, notes []Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(trackID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	for _, n := range notes {
		found := false
		for j := range s.tracks[i].Notes {
			if s.tracks[i].Notes[j].ID == n.ID {
				s.tracks[i].Notes[j] = n
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrNoteNotFound, n.ID)
		}
	}
	return nil
}

func (s *Store) DeleteMidiNotes(_ context.Context, trackID string, noteIDs []string) error {
	return s.removeNotes(trackID, noteIDs)
}

func (s *Store) RejectMidiNotes(_ context.Context, trackID string, noteIDs []string) error {
	return s.removeNotes(trackID, noteIDs)
}

func (s *Store) removeNotes(trackID string, noteIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(trackID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	drop := make(map[string]struct{}, len(noteIDs))
	for _, id := range noteIDs {
		drop[id] = struct{}{}
	}
	kept := make([]Note, 0, len(s.tracks[i].Notes))
	for _, n := range s.tracks[i].Notes {
		if _, ok := drop[n.ID]; !ok {
			kept = append(kept, n)
		}
	}
	s.tracks[i].Notes = kept
	return nil
}

func (s *Store) UpdateProjectSettings(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.Name != nil {
		s.info.Name = *settings.Name
	}
	if settings.Tempo != nil {
		if *settings.Tempo <= 0 {
			return fmt.Errorf("invalid tempo %v", *settings.Tempo)
		}
		s.info.Tempo = *settings.Tempo
	}
	if settings.Key != nil {
		s.info.Key = *settings.Key
	}
	if settings.TimeSignature != nil {
		s.info.TimeSignature = *settings.TimeSignature
	}
	return nil
}
