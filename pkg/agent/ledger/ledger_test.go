package ledger

import (
	"context"
	"errors"
	"testing"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/project"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingMutator fails every call that targets failID.
type failingMutator struct {
	*project.Store
	failID string
}

func (m *failingMutator) DeleteTrack(ctx context.Context, id string) error {
	if id == m.failID {
		return errors.New("boom")
	}
	return m.Store.DeleteTrack(ctx, id)
}

func (m *failingMutator) UpdateTrack(ctx context.Context, id string, p project.TrackPatch) error {
	if id == m.failID {
		return errors.New("boom")
	}
	return m.Store.UpdateTrack(ctx, id, p)
}

// hookMutator runs onDelete inside DeleteTrack.
type hookMutator struct {
	*project.Store
	onDelete func()
}

func (m *hookMutator) DeleteTrack(ctx context.Context, id string) error {
	if m.onDelete != nil {
		m.onDelete()
	}
	return m.Store.DeleteTrack(ctx, id)
}

func pendingTrack(id, name string) project.Track {
	return project.Track{ID: id, Name: name, Type: "midi", Color: project.PendingColor, IsPending: true, Notes: []project.Note{}}
}

func addPendingTrack(t *testing.T, store *project.Store, l *Ledger, id string) {
	t.Helper()
	track, err := store.AddTrack(context.Background(), pendingTrack(id, "Track "+id))
	require.NoError(t, err)
	require.NoError(t, l.AddTrackChange(ChangeAdd, track.ID, nil, &track))
}

func TestAddRequiresOpenSession(t *testing.T) {
	l := New(project.NewStore(project.Info{}), logger.NewNopLogger())
	err := l.AddTrackChange(ChangeAdd, "t1", nil, &project.Track{ID: "t1"})
	assert.ErrorIs(t, err, ErrSessionNotOpen)
	assert.False(t, l.HasPendingChanges())
	assert.Equal(t, StateNoSession, l.State())
}

func TestStartSessionClearsResidualEntries(t *testing.T) {
	l := New(project.NewStore(project.Info{}), logger.NewNopLogger())
	first := l.StartSession()
	require.NoError(t, l.AddTrackChange(ChangeAdd, "t1", nil, &project.Track{ID: "t1"}))
	require.True(t, l.HasPendingChanges())

	second := l.StartSession()
	assert.NotEqual(t, first, second)
	assert.False(t, l.HasPendingChanges())
	assert.Equal(t, StateOpen, l.State())
}

func TestRejectAddTrackRestoresEmptyProject(t *testing.T) {
	ctx := context.Background()
	store := project.NewStore(project.Info{Tempo: 120})
	before := store.Tracks()

	l := New(store, logger.NewNopLogger())
	l.StartSession()
	addPendingTrack(t, store, l, "t1")
	require.True(t, l.HasPendingChanges())

	report := l.RejectAll(ctx)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, report.Tracks)
	assert.Equal(t, before, store.Tracks())
	assert.False(t, l.HasPendingChanges())
	assert.Equal(t, StateNoSession, l.State())
}

func TestApproveAddTrackClearsPendingMarker(t *testing.T) {
	ctx := context.Background()
	store := project.NewStore(project.Info{})
	l := New(store, logger.NewNopLogger())
	l.StartSession()
	addPendingTrack(t, store, l, "t1")

	report := l.ApproveAll(ctx)
	assert.Empty(t, report.Failures)

	track, ok := store.Track("t1")
	require.True(t, ok)
	assert.False(t, track.IsPending)
	assert.Equal(t, project.DefaultColor, track.Color)
	assert.False(t, l.HasPendingChanges())
}

func TestApproveUpdateRestoresOriginalColor(t *testing.T) {
	ctx := context.Background()
	original := project.Track{ID: "t1", Name: "Bass", Color: "#FF0000", Volume: 70}
	store := project.NewStore(project.Info{}, original)
	l := New(store, logger.NewNopLogger())
	l.StartSession()

	pending := true
	color := project.PendingColor
	volume := 50.0
	require.NoError(t, store.UpdateTrack(ctx, "t1", project.TrackPatch{IsPending: &pending, Color: &color, Volume: &volume}))
	updated, _ := store.Track("t1")
	require.NoError(t, l.AddTrackChange(ChangeUpdate, "t1", &original, &updated))

	l.ApproveAll(ctx)
	track, _ := store.Track("t1")
	assert.Equal(t, "#FF0000", track.Color)
	assert.Equal(t, 50.0, track.Volume)
	assert.False(t, track.IsPending)
}

func TestCommittedColor(t *testing.T) {
	red := &project.Track{Color: "#FF0000"}
	blue := &project.Track{Color: "#0000FF"}
	marked := &project.Track{Color: project.PendingColor}

	assert.Equal(t, "#FF0000", committedColor(Change{OriginalTrack: blue, NewTrack: red}))
	assert.Equal(t, "#0000FF", committedColor(Change{OriginalTrack: blue, NewTrack: marked}))
	assert.Equal(t, "#0000FF", committedColor(Change{OriginalTrack: blue}))
	assert.Equal(t, "#FF0000", committedColor(Change{NewTrack: red}))
	assert.Equal(t, project.DefaultColor, committedColor(Change{NewTrack: marked}))
	assert.Equal(t, project.DefaultColor, committedColor(Change{OriginalTrack: marked, NewTrack: &project.Track{}}))
}

func TestNoteRoundTrips(t *testing.T) {
	ctx := context.Background()
	n := project.Note{ID: "n1", Pitch: 60, Time: 0, Duration: 0.5, Velocity: 0.8}

	setup := func() (*project.Store, *Ledger) {
		store := project.NewStore(project.Info{}, project.Track{ID: "t1", Name: "Piano"})
		l := New(store, logger.NewNopLogger())
		l.StartSession()
		provisional := n
		provisional.IsPending = true
		require.NoError(t, store.AddMidiNotes(ctx, "t1", []project.Note{provisional}))
		require.NoError(t, l.AddNoteChange(ChangeAdd, "t1", n.ID, nil, &provisional))
		return store, l
	}

	t.Run("approve", func(t *testing.T) {
		store, l := setup()
		l.ApproveAll(ctx)
		track, _ := store.Track("t1")
		got, ok := track.Note("n1")
		require.True(t, ok)
		assert.Equal(t, n, got)
	})

	t.Run("reject", func(t *testing.T) {
		store, l := setup()
		l.RejectAll(ctx)
		track, _ := store.Track("t1")
		_, ok := track.Note("n1")
		assert.False(t, ok)
	})
}

func TestRejectRevertsUpdatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	bass := project.Track{ID: "bass", Name: "Bass", Volume: 70, Notes: []project.Note{{ID: "n1", Pitch: 40}, {ID: "n2", Pitch: 43}}}
	drums := project.Track{ID: "drums", Name: "Drums", Notes: []project.Note{}}
	store := project.NewStore(project.Info{}, bass, drums)
	l := New(store, logger.NewNopLogger())
	l.StartSession()

	volume := 20.0
	require.NoError(t, store.UpdateTrack(ctx, "bass", project.TrackPatch{Volume: &volume}))
	require.NoError(t, l.AddTrackChange(ChangeUpdate, "bass", &bass, nil))

	moved := project.Note{ID: "n1", Pitch: 52}
	require.NoError(t, store.UpdateMidiNotes(ctx, "bass", []project.Note{moved}))
	require.NoError(t, l.AddNoteChange(ChangeUpdate, "bass", "n1", &bass.Notes[0], &moved))

	require.NoError(t, store.DeleteMidiNotes(ctx, "bass", []string{"n2"}))
	require.NoError(t, l.AddNoteChange(ChangeDelete, "bass", "n2", &bass.Notes[1], nil))

	require.NoError(t, store.DeleteTrack(ctx, "drums"))
	require.NoError(t, l.AddTrackChange(ChangeDelete, "drums", &drums, nil))

	report := l.RejectAll(ctx)
	assert.Empty(t, report.Failures)

	got, ok := store.Track("bass")
	require.True(t, ok)
	assert.Equal(t, 70.0, got.Volume)
	n1, _ := got.Note("n1")
	assert.Equal(t, 40, n1.Pitch)
	_, ok = got.Note("n2")
	assert.True(t, ok)

	_, ok = store.Track("drums")
	assert.True(t, ok)
}

func TestRejectNotesOnAddedTrack(t *testing.T) {
	ctx := context.Background()
	store := project.NewStore(project.Info{})
	l := New(store, logger.NewNopLogger())
	l.StartSession()
	addPendingTrack(t, store, l, "t1")

	note := project.Note{ID: "n1", Pitch: 60, IsPending: true}
	require.NoError(t, store.AddMidiNotes(ctx, "t1", []project.Note{note}))
	require.NoError(t, l.AddNoteChange(ChangeAdd, "t1", "n1", nil, &note))

	report := l.RejectAll(ctx)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, report.Tracks)
	assert.Equal(t, 1, report.Notes)
	assert.Empty(t, store.Tracks())
}

func TestRejectRestoresTrackBeforeItsNotes(t *testing.T) {
	ctx := context.Background()
	keys := project.Track{ID: "keys", Name: "Keys", Notes: []project.Note{{ID: "k1", Pitch: 48}}}
	store := project.NewStore(project.Info{}, keys, project.Track{ID: "pad", Name: "Pad"})
	before := store.Tracks()
	l := New(store, logger.NewNopLogger())
	l.StartSession()

	note := project.Note{ID: "n1", Pitch: 60, IsPending: true}
	require.NoError(t, store.AddMidiNotes(ctx, "keys", []project.Note{note}))
	require.NoError(t, l.AddNoteChange(ChangeAdd, "keys", "n1", nil, &note))

	withNote, _ := store.Track("keys")
	require.NoError(t, store.DeleteTrack(ctx, "keys"))
	require.NoError(t, l.AddTrackDeletion("keys", &withNote, 0))

	report := l.RejectAll(ctx)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, report.Tracks)
	assert.Equal(t, 1, report.Notes)
	assert.Equal(t, before, store.Tracks())
}

func TestRejectDeletesRestoreOrder(t *testing.T) {
	ctx := context.Background()
	store := project.NewStore(project.Info{},
		project.Track{ID: "a", Name: "A"}, project.Track{ID: "b", Name: "B"}, project.Track{ID: "c", Name: "C"})
	before := store.Tracks()
	l := New(store, logger.NewNopLogger())
	l.StartSession()

	for _, id := range []string{"a", "c"} {
		tracks := store.Tracks()
		for i, tr := range tracks {
			if tr.ID == id {
				require.NoError(t, store.DeleteTrack(ctx, id))
				require.NoError(t, l.AddTrackDeletion(id, &tr, i))
			}
		}
	}
	require.Len(t, store.Tracks(), 1)

	report := l.RejectAll(ctx)
	assert.Empty(t, report.Failures)
	assert.Equal(t, before, store.Tracks())
}

func TestMergeRules(t *testing.T) {
	orig := project.Track{ID: "t1", Name: "Original"}
	second := project.Track{ID: "t1", Name: "Second"}
	third := project.Track{ID: "t1", Name: "Third"}

	tests := []struct {
		name     string
		first    ChangeType
		firstOrg *project.Track
		next     ChangeType
		wantLen  int
		wantType ChangeType
	}{
		{"add then update stays add", ChangeAdd, nil, ChangeUpdate, 1, ChangeAdd},
		{"add then delete cancels", ChangeAdd, nil, ChangeDelete, 0, ""},
		{"update then update", ChangeUpdate, &orig, ChangeUpdate, 1, ChangeUpdate},
		{"update then delete", ChangeUpdate, &orig, ChangeDelete, 1, ChangeDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(project.NewStore(project.Info{}), logger.NewNopLogger())
			l.StartSession()
			require.NoError(t, l.AddTrackChange(tt.first, "t1", tt.firstOrg, &second))
			require.NoError(t, l.AddTrackChange(tt.next, "t1", &second, &third))

			view := l.View()
			require.Len(t, view.Changes, tt.wantLen)
			if tt.wantLen == 0 {
				assert.False(t, l.HasPendingChanges())
				return
			}
			c := view.Changes[0]
			assert.Equal(t, tt.wantType, c.Type)
			if tt.firstOrg != nil {
				assert.Equal(t, "Original", c.OriginalTrack.Name)
			} else {
				assert.Nil(t, c.OriginalTrack)
			}
			assert.Equal(t, "Third", c.NewTrack.Name)
		})
	}

	t.Run("add then delete drops note changes on the track", func(t *testing.T) {
		l := New(project.NewStore(project.Info{}), logger.NewNopLogger())
		l.StartSession()
		require.NoError(t, l.AddNoteChange(ChangeUpdate, "other", "n0", &project.Note{ID: "n0"}, &project.Note{ID: "n0", Pitch: 1}))
		require.NoError(t, l.AddTrackChange(ChangeAdd, "t1", nil, &second))
		require.NoError(t, l.AddNoteChange(ChangeAdd, "t1", "n1", nil, &project.Note{ID: "n1"}))
		require.NoError(t, l.AddNoteChange(ChangeAdd, "t1", "n2", nil, &project.Note{ID: "n2"}))
		require.NoError(t, l.AddTrackChange(ChangeDelete, "t1", &second, nil))

		view := l.View()
		require.Len(t, view.Changes, 1)
		assert.Equal(t, "n0", view.Changes[0].EntityID)
	})

	t.Run("delete moves behind later changes", func(t *testing.T) {
		l := New(project.NewStore(project.Info{}), logger.NewNopLogger())
		l.StartSession()
		require.NoError(t, l.AddTrackChange(ChangeUpdate, "t1", &orig, &second))
		require.NoError(t, l.AddNoteChange(ChangeAdd, "t1", "n1", nil, &project.Note{ID: "n1"}))
		require.NoError(t, l.AddTrackDeletion("t1", &second, 2))

		view := l.View()
		require.Len(t, view.Changes, 2)
		last := view.Changes[1]
		assert.Equal(t, KindTrack, last.Kind)
		assert.Equal(t, ChangeDelete, last.Type)
		assert.Equal(t, "Original", last.OriginalTrack.Name)
		require.NotNil(t, last.Index)
		assert.Equal(t, 2, *last.Index)
	})
}

func TestRevertIsBestEffort(t *testing.T) {
	ctx := context.Background()
	store := project.NewStore(project.Info{})
	mut := &failingMutator{Store: store, failID: "bad"}
	l := New(mut, logger.NewNopLogger())
	l.StartSession()

	for _, id := range []string{"a", "bad", "c"} {
		track, err := store.AddTrack(ctx, pendingTrack(id, id))
		require.NoError(t, err)
		require.NoError(t, l.AddTrackChange(ChangeAdd, id, nil, &track))
	}

	report := l.RejectAll(ctx)
	assert.Len(t, report.Failures, 1)
	assert.Equal(t, 3, report.Tracks)
	assert.False(t, l.HasPendingChanges())

	remaining := store.Tracks()
	require.Len(t, remaining, 1)
	assert.Equal(t, "bad", remaining[0].ID)
}

func TestApproveIsBestEffort(t *testing.T) {
	ctx := context.Background()
	store := project.NewStore(project.Info{})
	l := New(&failingMutator{Store: store, failID: "bad"}, logger.NewNopLogger())
	l.StartSession()
	addPendingTrack(t, store, l, "bad")
	addPendingTrack(t, store, l, "good")

	report := l.ApproveAll(ctx)
	assert.Len(t, report.Failures, 1)

	good, _ := store.Track("good")
	assert.False(t, good.IsPending)
}

func TestAddsRefusedWhileRejecting(t *testing.T) {
	ctx := context.Background()
	store := project.NewStore(project.Info{})
	mut := &hookMutator{Store: store}
	l := New(mut, logger.NewNopLogger())

	var midRejectErr error
	var midRejectState State
	mut.onDelete = func() {
		midRejectState = l.State()
		midRejectErr = l.AddTrackChange(ChangeAdd, "late", nil, &project.Track{ID: "late"})
	}

	l.StartSession()
	addPendingTrack(t, store, l, "t1")
	l.RejectAll(ctx)

	assert.Equal(t, StateRejecting, midRejectState)
	assert.ErrorIs(t, midRejectErr, ErrSessionNotOpen)
	assert.False(t, l.HasPendingChanges())
}

func TestLedgerEvents(t *testing.T) {
	ctx := context.Background()
	store := project.NewStore(project.Info{})
	l := New(store, logger.NewNopLogger())

	var seen []string
	l.Events().Subscribe(func(e events.Event) { seen = append(seen, e.EventType()) })

	l.StartSession()
	addPendingTrack(t, store, l, "t1")
	l.ApproveAll(ctx)

	assert.Equal(t, []string{
		events.ApprovalSessionStarted,
		events.PendingChangeAdded,
		events.AllChangesApproved,
	}, seen)
}
