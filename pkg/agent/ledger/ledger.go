// Package ledger records tentative project mutations for one approval
// session and commits or reverts them as a unit.
package ledger

import (
	"errors"
	"sync"
	"time"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/project"

	"github.com/google/uuid"
)

const module = "LEDGER"

var ErrSessionNotOpen = errors.New("approval session is not open")

type State string

const (
	StateNoSession State = "noSession"
	StateOpen      State = "open"
	StateApproving State = "approving"
	StateRejecting State = "rejecting"
)

type EntityKind string

const (
	KindTrack EntityKind = "track"
	KindNote  EntityKind = "note"
)

type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one pending mutation. Track changes carry track states, note
// changes carry note states plus the owning track id.
type Change struct {
	EntityID      string         `json:"entityId"`
	Kind          EntityKind     `json:"entityKind"`
	Type          ChangeType     `json:"changeType"`
	TrackID       string         `json:"trackId,omitempty"`
	OriginalTrack *project.Track `json:"originalTrack,omitempty"`
	NewTrack      *project.Track `json:"newTrack,omitempty"`
	OriginalNote  *project.Note  `json:"originalNote,omitempty"`
	NewNote       *project.Note  `json:"newNote,omitempty"`
	// Index is the track's position before a delete, when known.
	Index     *int      `json:"index,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (c Change) key() string {
	return string(c.Kind) + ":" + c.EntityID
}

// View is a read-only copy of the ledger.
type View struct {
	State     State    `json:"state"`
	SessionID string   `json:"sessionId,omitempty"`
	Changes   []Change `json:"changes"`
}

// Report summarizes an approve or reject pass.
type Report struct {
	SessionID string   `json:"sessionId"`
	Tracks    int      `json:"tracks"`
	Notes     int      `json:"notes"`
	Failures  []string `json:"failures,omitempty"`
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger holds the pending changes of the single open approval session.
// mu guards state and entries; opMu serializes session start, approve and
// reject so they never overlap.
type Ledger struct {
	mutator project.Mutator
	logger  logger.ILogger
	events  *events.Dispatcher
	now     func() time.Time

	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	sessionID string
	order     []string
	entries   map[string]*Change
}

func New(mutator project.Mutator, log logger.ILogger, opts ...Option) *Ledger {
	l := &Ledger{
		mutator: mutator,
		logger:  log,
		events:  events.NewDispatcher(),
		now:     time.Now,
		state:   StateNoSession,
		entries: make(map[string]*Change),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Events() *events.Dispatcher {
	return l.events
}

// StartSession discards any residual entries and opens a fresh session.
func (l *Ledger) StartSession() string {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	residual := len(l.order)
	l.resetLocked()
	l.sessionID = "approval-" + uuid.NewString()
	l.state = StateOpen
	id := l.sessionID
	l.mu.Unlock()

	if residual > 0 {
		l.logger.Warn(module, "Discarded residual pending changes", map[string]interface{}{"count": residual})
	}
	l.logger.Info(module, "Approval session started", map[string]interface{}{"sessionId": id})
	l.events.Emit(events.New(events.ApprovalSessionStarted, map[string]interface{}{"sessionId": id}))
	return id
}

func (l *Ledger) resetLocked() {
	l.order = nil
	l.entries = make(map[string]*Change)
}

func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Ledger) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

func (l *Ledger) HasPendingChanges() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order) > 0
}

func (l *Ledger) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return View{State: l.state, SessionID: l.sessionID, Changes: l.snapshotLocked()}
}

func (l *Ledger) snapshotLocked() []Change {
	out := make([]Change, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, *l.entries[k])
	}
	return out
}

// AddTrackChange records a tentative track mutation. original is the state
// before the change and is nil for adds.
func (l *Ledger) AddTrackChange(changeType ChangeType, trackID string, original, updated *project.Track) error {
	return l.add(Change{
		EntityID:      trackID,
		Kind:          KindTrack,
		Type:          changeType,
		TrackID:       trackID,
		OriginalTrack: cloneTrack(original),
		NewTrack:      cloneTrack(updated),
	})
}

// AddTrackDeletion records a track delete along with the position the track
// held, so a reject puts it back in place.
func (l *Ledger) AddTrackDeletion(trackID string, original *project.Track, index int) error {
	return l.add(Change{
		EntityID:      trackID,
		Kind:          KindTrack,
		Type:          ChangeDelete,
		TrackID:       trackID,
		OriginalTrack: cloneTrack(original),
		Index:         &index,
	})
}

// AddNoteChange records a tentative note mutation on trackID.
func (l *Ledger) AddNoteChange(changeType ChangeType, trackID, noteID string, original, updated *project.Note) error {
	return l.add(Change{
		EntityID:     noteID,
		Kind:         KindNote,
		Type:         changeType,
		TrackID:      trackID,
		OriginalNote: cloneNote(original),
		NewNote:      cloneNote(updated),
	})
}

func (l *Ledger) add(c Change) error {
	l.mu.Lock()
	if l.state != StateOpen {
		state := l.state
		l.mu.Unlock()
		l.logger.Debug(module, "Pending change ignored", map[string]interface{}{
			"entityId": c.EntityID,
			"state":    state,
		})
		return ErrSessionNotOpen
	}

	c.Timestamp = l.now()
	k := c.key()
	prev, exists := l.entries[k]
	switch {
	case !exists:
		l.entries[k] = &c
		l.order = append(l.order, k)
	default:
		merged, keep := merge(*prev, c)
		switch {
		case !keep:
			l.removeLocked(k)
			if c.Kind == KindTrack {
				l.removeNotesLocked(c.EntityID)
			}
		case merged.Type == ChangeDelete && prev.Type != ChangeDelete:
			// the delete is the latest step, so it reverts before anything
			// recorded after the first change
			l.removeLocked(k)
			l.entries[k] = &merged
			l.order = append(l.order, k)
		default:
			*prev = merged
		}
	}
	sessionID := l.sessionID
	l.mu.Unlock()

	l.events.Emit(events.New(events.PendingChangeAdded, map[string]interface{}{
		"sessionId":  sessionID,
		"entityId":   c.EntityID,
		"entityKind": string(c.Kind),
		"changeType": string(c.Type),
		"trackId":    c.TrackID,
	}))
	return nil
}

func (l *Ledger) removeLocked(k string) {
	delete(l.entries, k)
	for i, v := range l.order {
		if v == k {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// removeNotesLocked drops every note entry on trackID.
func (l *Ledger) removeNotesLocked(trackID string) {
	kept := l.order[:0]
	for _, k := range l.order {
		if c := l.entries[k]; c.Kind == KindNote && c.TrackID == trackID {
			delete(l.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	l.order = kept
}

// merge folds next into prev for the same entity. keep is false when the two
// cancel out.
func merge(prev, next Change) (merged Change, keep bool) {
	merged = prev
	merged.Timestamp = next.Timestamp
	merged.NewTrack = next.NewTrack
	merged.NewNote = next.NewNote
	if next.TrackID != "" {
		merged.TrackID = next.TrackID
	}
	if next.Index != nil {
		merged.Index = next.Index
	}

	switch prev.Type {
	case ChangeAdd:
		if next.Type == ChangeDelete {
			return Change{}, false
		}
		return merged, true
	case ChangeUpdate:
		if next.Type == ChangeDelete {
			merged.Type = ChangeDelete
		}
		return merged, true
	default:
		// delete followed by add restores the entity as an update
		if next.Type == ChangeAdd {
			merged.Type = ChangeUpdate
		}
		return merged, true
	}
}

func cloneTrack(t *project.Track) *project.Track {
	if t == nil {
		return nil
	}
	c := t.Clone()
	return &c
}

func cloneNote(n *project.Note) *project.Note {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}
