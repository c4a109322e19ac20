// Package executor dispatches validated agent actions to the project and
// records each resulting mutation in the approval ledger.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/agent/ledger"
	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/memory"
	"daw-agent-be/pkg/project"
	"daw-agent-be/pkg/rag"

	"github.com/google/uuid"
)

const module = "EXECUTOR"

const (
	actionImportance = 0.5
	chordImportance  = 0.7

	defaultTrackName = "New Track"
	defaultTrackType = "midi"
	defaultVolume    = 75.0
	defaultDuration  = 0.5
	defaultVelocity  = 0.8

	// PlaceholderTrackID stands for the track created earlier in the run.
	PlaceholderTrackID = "new-piano-track"
)

var (
	ErrUnknownTrack       = errors.New("track not found in request context")
	ErrUnknownProgression = errors.New("chord progression not found")
	errSkipped            = errors.New("unsupported action type")
)

// ChordLibrary resolves chord progressions by id.
type ChordLibrary interface {
	Progression(id string) (rag.ChordProgression, bool)
}

// Recorder stores executed actions as short-term memory.
type Recorder interface {
	AddToShortTermMemory(item memory.MemoryItem) memory.MemoryItem
}

type Option func(*Executor)

func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

type Executor struct {
	mutator  project.Mutator
	ledger   *ledger.Ledger
	chords   ChordLibrary
	recorder Recorder
	logger   logger.ILogger
	events   *events.Dispatcher
}

func New(mutator project.Mutator, l *ledger.Ledger, chords ChordLibrary, log logger.ILogger, opts ...Option) *Executor {
	e := &Executor{
		mutator: mutator,
		ledger:  l,
		chords:  chords,
		logger:  log,
		events:  events.NewDispatcher(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Events() *events.Dispatcher {
	return e.events
}

// run tracks project state as the actions of one request mutate it.
type run struct {
	actx        agent.Context
	tracks      map[string]project.Track
	order       []string
	lastCreated string
}

func newRun(actx agent.Context) *run {
	r := &run{actx: actx, tracks: make(map[string]project.Track)}
	for _, t := range actx.ExistingTracks {
		r.put(t)
	}
	if actx.CurrentTrack != nil {
		if _, ok := r.tracks[actx.CurrentTrack.ID]; !ok {
			r.put(*actx.CurrentTrack)
		}
	}
	return r
}

func (r *run) put(t project.Track) {
	if _, ok := r.tracks[t.ID]; !ok {
		r.order = append(r.order, t.ID)
	}
	r.tracks[t.ID] = t.Clone()
}

// remove forgets a track and returns the position it held.
func (r *run) remove(id string) int {
	delete(r.tracks, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return i
		}
	}
	return len(r.order)
}

// resolveTrack maps placeholder ids onto the track created earlier in the run.
func (r *run) resolveTrack(id string) string {
	placeholder := id == "" || id == PlaceholderTrackID || strings.HasPrefix(id, "new-track")
	if !placeholder {
		return id
	}
	if r.lastCreated != "" {
		return r.lastCreated
	}
	if id == "" && r.actx.CurrentTrack != nil {
		return r.actx.CurrentTrack.ID
	}
	return id
}

func (r *run) track(id string) (project.Track, error) {
	t, ok := r.tracks[id]
	if !ok {
		return project.Track{}, fmt.Errorf("%w: %q", ErrUnknownTrack, id)
	}
	return t, nil
}

// Execute applies actions in order. A failing action is reported and the
// remaining actions still run.
func (e *Executor) Execute(ctx context.Context, actions []agent.Action, actx agent.Context) []agent.ActionOutcome {
	r := newRun(actx)
	outcomes := make([]agent.ActionOutcome, 0, len(actions))

	for _, action := range actions {
		trackID, err := e.executeOne(ctx, r, action)
		outcome := agent.ActionOutcome{Action: action, TrackID: trackID}

		switch {
		case errors.Is(err, errSkipped):
			outcome.Status = agent.OutcomeSkipped
			e.logger.Warn(module, "Unknown action type skipped", map[string]interface{}{"type": action.Type})
		case err != nil:
			outcome.Status = agent.OutcomeFailed
			outcome.Error = err.Error()
			e.logger.Error(module, "Action failed", map[string]interface{}{
				"type":  action.Type,
				"error": err.Error(),
			})
			e.events.Emit(events.New(events.ActionError, map[string]interface{}{
				"action": action,
				"error":  err.Error(),
			}))
		default:
			outcome.Status = agent.OutcomeExecuted
			e.events.Emit(events.New(events.ActionExecuted, map[string]interface{}{
				"action":  action,
				"success": true,
			}))
			e.record(action, trackID)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (e *Executor) record(action agent.Action, trackID string) {
	if e.recorder == nil {
		return
	}
	importance := actionImportance
	result := "executed"
	if trackID != "" {
		result = "applied to track " + trackID
	}
	if action.Type == agent.ActionUseChordProgression {
		importance = chordImportance
		if p, ok := e.chords.Progression(action.String("progressionId")); ok {
			result = fmt.Sprintf("Applied %s to track %s", p.Name, trackID)
		}
	}
	e.recorder.AddToShortTermMemory(memory.MemoryItem{
		Type:       memory.TypeAction,
		Importance: importance,
		Content: memory.Content{
			Action: actionLabel(action),
			Result: result,
		},
	})
}

func actionLabel(a agent.Action) string {
	switch a.Type {
	case agent.ActionUseChordProgression:
		return a.Type + ": " + a.String("progressionId")
	case agent.ActionAddTrack:
		return a.Type + ": " + firstNonEmpty(a.String("trackName"), a.String("name"), a.String("instrument"))
	}
	if a.Description != "" {
		return a.Type + ": " + a.Description
	}
	return a.Type
}

func (e *Executor) executeOne(ctx context.Context, r *run, action agent.Action) (string, error) {
	switch action.Type {
	case agent.ActionAddTrack:
		return e.addTrack(ctx, r, action)
	case agent.ActionUpdateTrack:
		return e.updateTrack(ctx, r, action)
	case agent.ActionDeleteTrack:
		return e.deleteTrack(ctx, r, action)
	case agent.ActionAddMidiNotes:
		var p notesParams
		if err := action.Decode(&p); err != nil {
			return "", err
		}
		return e.addNotes(ctx, r, r.resolveTrack(p.TrackID), p.Notes)
	case agent.ActionUpdateMidiNotes:
		return e.updateNotes(ctx, r, action)
	case agent.ActionDeleteMidiNotes:
		return e.deleteNotes(ctx, r, action)
	case agent.ActionUpdateProjectSettings:
		var s project.Settings
		if err := action.Decode(&s); err != nil {
			return "", err
		}
		return "", e.mutator.UpdateProjectSettings(ctx, s)
	case agent.ActionUseChordProgression:
		return e.useChordProgression(ctx, r, action)
	}
	return "", fmt.Errorf("%w: %s", errSkipped, action.Type)
}

type addTrackParams struct {
	TrackName  string   `json:"trackName"`
	Name       string   `json:"name"`
	Instrument string   `json:"instrument"`
	Type       string   `json:"type"`
	Volume     *float64 `json:"volume"`
	Pan        *float64 `json:"pan"`
}

func (e *Executor) addTrack(ctx context.Context, r *run, action agent.Action) (string, error) {
	var p addTrackParams
	if err := action.Decode(&p); err != nil {
		return "", err
	}

	track := project.Track{
		Name:       firstNonEmpty(p.TrackName, p.Name, p.Instrument, defaultTrackName),
		Type:       firstNonEmpty(p.Type, defaultTrackType),
		Instrument: p.Instrument,
		Color:      project.PendingColor,
		Volume:     defaultVolume,
		Notes:      []project.Note{},
		IsPending:  true,
	}
	if p.Volume != nil {
		track.Volume = *p.Volume
	}
	if p.Pan != nil {
		track.Pan = *p.Pan
	}

	created, err := e.mutator.AddTrack(ctx, track)
	if err != nil {
		return "", fmt.Errorf("add track: %w", err)
	}
	r.put(created)
	r.lastCreated = created.ID

	if err := e.ledger.AddTrackChange(ledger.ChangeAdd, created.ID, nil, &created); err != nil {
		return created.ID, fmt.Errorf("track %s applied but not tracked: %w", created.ID, err)
	}
	e.logger.Info(module, "Track added", map[string]interface{}{"trackId": created.ID, "name": created.Name})
	return created.ID, nil
}

type updateTrackParams struct {
	TrackID string             `json:"trackId"`
	Updates project.TrackPatch `json:"updates"`
}

func (e *Executor) updateTrack(ctx context.Context, r *run, action agent.Action) (string, error) {
	var p updateTrackParams
	if err := action.Decode(&p); err != nil {
		return "", err
	}
	patch := p.Updates
	if patch == (project.TrackPatch{}) {
		// flat form: the fields sit next to trackId
		if err := action.Decode(&patch); err != nil {
			return "", err
		}
	}

	id := r.resolveTrack(p.TrackID)
	original, err := r.track(id)
	if err != nil {
		return id, err
	}

	pending := true
	patch.IsPending = &pending
	// the ledger keeps the requested colour; the project shows the marker
	requested := patch.Apply(original)
	color := project.PendingColor
	patch.Color = &color
	if err := e.mutator.UpdateTrack(ctx, id, patch); err != nil {
		return id, fmt.Errorf("update track: %w", err)
	}

	r.tracks[id] = patch.Apply(original)
	if err := e.ledger.AddTrackChange(ledger.ChangeUpdate, id, &original, &requested); err != nil {
		return id, fmt.Errorf("track %s updated but not tracked: %w", id, err)
	}
	return id, nil
}

func (e *Executor) deleteTrack(ctx context.Context, r *run, action agent.Action) (string, error) {
	id := r.resolveTrack(action.String("trackId"))
	original, err := r.track(id)
	if err != nil {
		return id, err
	}
	if err := e.mutator.DeleteTrack(ctx, id); err != nil {
		return id, fmt.Errorf("delete track: %w", err)
	}
	index := r.remove(id)
	if err := e.ledger.AddTrackDeletion(id, &original, index); err != nil {
		return id, fmt.Errorf("track %s deleted but not tracked: %w", id, err)
	}
	return id, nil
}

type notesParams struct {
	TrackID string         `json:"trackId"`
	Notes   []project.Note `json:"notes"`
}

func (e *Executor) addNotes(ctx context.Context, r *run, trackID string, notes []project.Note) (string, error) {
	track, err := r.track(trackID)
	if err != nil {
		return trackID, err
	}

	prepared := make([]project.Note, len(notes))
	for i, n := range notes {
		if n.ID == "" {
			n.ID = "note-" + uuid.NewString()
		}
		if n.Duration <= 0 {
			n.Duration = defaultDuration
		}
		if n.Velocity <= 0 {
			n.Velocity = defaultVelocity
		}
		n.IsPending = true
		prepared[i] = n
	}

	if err := e.mutator.AddMidiNotes(ctx, trackID, prepared); err != nil {
		return trackID, fmt.Errorf("add notes: %w", err)
	}
	track.Notes = append(track.Notes, prepared...)
	r.tracks[trackID] = track

	var untracked error
	for i := range prepared {
		if err := e.ledger.AddNoteChange(ledger.ChangeAdd, trackID, prepared[i].ID, nil, &prepared[i]); err != nil {
			untracked = err
		}
	}
	if untracked != nil {
		return trackID, fmt.Errorf("notes added but not tracked: %w", untracked)
	}
	return trackID, nil
}

func (e *Executor) updateNotes(ctx context.Context, r *run, action agent.Action) (string, error) {
	var p notesParams
	if err := action.Decode(&p); err != nil {
		return "", err
	}
	id := r.resolveTrack(p.TrackID)
	track, err := r.track(id)
	if err != nil {
		return id, err
	}

	originals := make([]project.Note, len(p.Notes))
	updated := make([]project.Note, len(p.Notes))
	for i, n := range p.Notes {
		orig, ok := track.Note(n.ID)
		if !ok {
			return id, fmt.Errorf("update notes: %w: %s", project.ErrNoteNotFound, n.ID)
		}
		originals[i] = orig
		n.IsPending = true
		updated[i] = n
	}

	if err := e.mutator.UpdateMidiNotes(ctx, id, updated); err != nil {
		return id, fmt.Errorf("update notes: %w", err)
	}
	for _, n := range updated {
		for j := range track.Notes {
			if track.Notes[j].ID == n.ID {
				track.Notes[j] = n
			}
		}
	}
	r.tracks[id] = track

	var untracked error
	for i := range updated {
		if err := e.ledger.AddNoteChange(ledger.ChangeUpdate, id, updated[i].ID, &originals[i], &updated[i]); err != nil {
			untracked = err
		}
	}
	if untracked != nil {
		return id, fmt.Errorf("notes updated but not tracked: %w", untracked)
	}
	return id, nil
}

type deleteNotesParams struct {
	TrackID string   `json:"trackId"`
	NoteIDs []string `json:"noteIds"`
}

func (e *Executor) deleteNotes(ctx context.Context, r *run, action agent.Action) (string, error) {
	var p deleteNotesParams
	if err := action.Decode(&p); err != nil {
		return "", err
	}
	id := r.resolveTrack(p.TrackID)
	track, err := r.track(id)
	if err != nil {
		return id, err
	}

	var originals []project.Note
	for _, noteID := range p.NoteIDs {
		if n, ok := track.Note(noteID); ok {
			originals = append(originals, n)
		} else {
			e.logger.Warn(module, "Deleting note missing from request context", map[string]interface{}{
				"trackId": id,
				"noteId":  noteID,
			})
		}
	}

	if err := e.mutator.DeleteMidiNotes(ctx, id, p.NoteIDs); err != nil {
		return id, fmt.Errorf("delete notes: %w", err)
	}

	drop := make(map[string]struct{}, len(p.NoteIDs))
	for _, n := range p.NoteIDs {
		drop[n] = struct{}{}
	}
	kept := track.Notes[:0:0]
	for _, n := range track.Notes {
		if _, gone := drop[n.ID]; !gone {
			kept = append(kept, n)
		}
	}
	track.Notes = kept
	r.tracks[id] = track

	var untracked error
	for i := range originals {
		if err := e.ledger.AddNoteChange(ledger.ChangeDelete, id, originals[i].ID, &originals[i], nil); err != nil {
			untracked = err
		}
	}
	if untracked != nil {
		return id, fmt.Errorf("notes deleted but not tracked: %w", untracked)
	}
	return id, nil
}

func (e *Executor) useChordProgression(ctx context.Context, r *run, action agent.Action) (string, error) {
	progressionID := action.String("progressionId")
	p, ok := e.chords.Progression(progressionID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProgression, progressionID)
	}
	notes := ProgressionNotes(p, r.actx.ProjectInfo)
	return e.addNotes(ctx, r, r.resolveTrack(action.String("trackId")), notes)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
