package executor

import (
	"context"
	"testing"

	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/agent/ledger"
	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/memory"
	"daw-agent-be/pkg/project"
	"daw-agent-be/pkg/rag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type library map[string]rag.ChordProgression

func (l library) Progression(id string) (rag.ChordProgression, bool) {
	p, ok := l[id]
	return p, ok
}

type recorder struct{ items []memory.MemoryItem }

func (r *recorder) AddToShortTermMemory(item memory.MemoryItem) memory.MemoryItem {
	r.items = append(r.items, item)
	return item
}

type fixture struct {
	store    *project.Store
	ledger   *ledger.Ledger
	exec     *Executor
	recorder *recorder
}

func newFixture(tracks ...project.Track) fixture {
	store := project.NewStore(project.Info{Tempo: 120, Key: "C"}, tracks...)
	l := ledger.New(store, logger.NewNopLogger())
	l.StartSession()
	rec := &recorder{}
	chords := library{"pop_1": {ID: "pop_1", Name: "Pop", Chords: []string{"C", "G", "Am", "F"}}}
	return fixture{
		store:    store,
		ledger:   l,
		exec:     New(store, l, chords, logger.NewNopLogger(), WithRecorder(rec)),
		recorder: rec,
	}
}

func (f fixture) context() agent.Context {
	return agent.Context{ProjectInfo: f.store.Info(), ExistingTracks: f.store.Tracks()}
}

func TestAddTrackThenNotesOnPlaceholder(t *testing.T) {
	f := newFixture()
	actions := []agent.Action{
		{Type: agent.ActionAddTrack, Params: map[string]interface{}{"trackName": "Lead", "instrument": "Piano"}},
		{Type: agent.ActionAddMidiNotes, Params: map[string]interface{}{
			"trackId": PlaceholderTrackID,
			"notes":   []interface{}{map[string]interface{}{"pitch": 60.0, "time": 0.0, "duration": 0.5, "velocity": 0.8}},
		}},
	}

	outcomes := f.exec.Execute(context.Background(), actions, f.context())
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, agent.OutcomeExecuted, o.Status, o.Error)
	}

	tracks := f.store.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, "Lead", tracks[0].Name)
	assert.True(t, tracks[0].IsPending)
	assert.Equal(t, project.PendingColor, tracks[0].Color)
	require.Len(t, tracks[0].Notes, 1)
	assert.True(t, tracks[0].Notes[0].IsPending)
	assert.NotEmpty(t, tracks[0].Notes[0].ID)
	assert.Equal(t, tracks[0].ID, outcomes[1].TrackID)

	view := f.ledger.View()
	require.Len(t, view.Changes, 2)
	assert.Equal(t, ledger.KindTrack, view.Changes[0].Kind)
	assert.Equal(t, ledger.KindNote, view.Changes[1].Kind)
	assert.Equal(t, tracks[0].ID, view.Changes[1].TrackID)

	assert.Len(t, f.recorder.items, 2)
}

func TestExecutionIsBestEffort(t *testing.T) {
	f := newFixture()
	var errorsSeen int
	f.exec.Events().Subscribe(func(e events.Event) {
		if e.EventType() == events.ActionError {
			errorsSeen++
		}
	})

	actions := []agent.Action{
		{Type: agent.ActionDeleteTrack, Params: map[string]interface{}{"trackId": "missing"}},
		{Type: "applyEffect", Params: map[string]interface{}{"effect": "reverb"}},
		{Type: agent.ActionAddTrack, Params: map[string]interface{}{"name": "Pad"}},
	}
	outcomes := f.exec.Execute(context.Background(), actions, f.context())
	require.Len(t, outcomes, 3)
	assert.Equal(t, agent.OutcomeFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Error, "track not found")
	assert.Equal(t, agent.OutcomeSkipped, outcomes[1].Status)
	assert.Equal(t, agent.OutcomeExecuted, outcomes[2].Status)
	assert.Equal(t, 1, errorsSeen)
	assert.Len(t, f.store.Tracks(), 1)
}

func trackIDs(tracks []project.Track) []string {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestUpdateAndDeleteRevertThroughLedger(t *testing.T) {
	lead := project.Track{ID: "lead", Name: "Lead", Color: "#654321", Volume: 80, Notes: []project.Note{}}
	bass := project.Track{ID: "bass", Name: "Bass", Color: "#123456", Volume: 70,
		Notes: []project.Note{{ID: "n1", Pitch: 40, Duration: 1, Velocity: 0.7}}}
	f := newFixture(lead, bass)
	before := f.store.Tracks()

	actions := []agent.Action{
		{Type: agent.ActionUpdateTrack, Params: map[string]interface{}{"trackId": "bass", "updates": map[string]interface{}{"volume": 40.0}}},
		{Type: agent.ActionUpdateMidiNotes, Params: map[string]interface{}{"trackId": "bass", "notes": []interface{}{
			map[string]interface{}{"id": "n1", "pitch": 45.0, "duration": 1.0, "velocity": 0.7},
		}}},
		{Type: agent.ActionDeleteMidiNotes, Params: map[string]interface{}{"trackId": "bass", "noteIds": []interface{}{"n1"}}},
		{Type: agent.ActionDeleteTrack, Params: map[string]interface{}{"trackId": "lead"}},
	}
	ctx := context.Background()
	outcomes := f.exec.Execute(ctx, actions, f.context())
	for _, o := range outcomes {
		require.Equal(t, agent.OutcomeExecuted, o.Status, o.Error)
	}

	mid, _ := f.store.Track("bass")
	assert.Equal(t, 40.0, mid.Volume)
	assert.True(t, mid.IsPending)
	assert.Empty(t, mid.Notes)
	assert.Equal(t, []string{"bass"}, trackIDs(f.store.Tracks()))

	report := f.ledger.RejectAll(ctx)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{"lead", "bass"}, trackIDs(f.store.Tracks()))
	assert.Equal(t, before, f.store.Tracks())
}

func TestApproveKeepsRequestedColor(t *testing.T) {
	tests := []struct {
		name    string
		updates map[string]interface{}
		want    string
	}{
		{"colour requested", map[string]interface{}{"color": "#FF0000", "volume": 40.0}, "#FF0000"},
		{"colour untouched", map[string]interface{}{"volume": 40.0}, "#0000FF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(project.Track{ID: "bass", Name: "Bass", Color: "#0000FF", Volume: 70})
			ctx := context.Background()
			outcomes := f.exec.Execute(ctx, []agent.Action{
				{Type: agent.ActionUpdateTrack, Params: map[string]interface{}{"trackId": "bass", "updates": tt.updates}},
			}, f.context())
			require.Equal(t, agent.OutcomeExecuted, outcomes[0].Status, outcomes[0].Error)

			mid, _ := f.store.Track("bass")
			assert.Equal(t, project.PendingColor, mid.Color)

			report := f.ledger.ApproveAll(ctx)
			assert.Empty(t, report.Failures)
			got, _ := f.store.Track("bass")
			assert.Equal(t, tt.want, got.Color)
			assert.Equal(t, 40.0, got.Volume)
			assert.False(t, got.IsPending)
		})
	}
}

func TestRejectDropsNotesAddedBeforeTrackDelete(t *testing.T) {
	keys := project.Track{ID: "keys", Name: "Keys", Color: "#222222", Volume: 60,
		Notes: []project.Note{{ID: "k1", Pitch: 48, Duration: 1, Velocity: 0.6}}}
	drums := project.Track{ID: "drums", Name: "Drums", Notes: []project.Note{}}
	f := newFixture(keys, drums)
	before := f.store.Tracks()
	ctx := context.Background()

	outcomes := f.exec.Execute(ctx, []agent.Action{
		{Type: agent.ActionAddMidiNotes, Params: map[string]interface{}{"trackId": "keys", "notes": []interface{}{
			map[string]interface{}{"id": "n1", "pitch": 60.0, "time": 0.0, "duration": 0.5, "velocity": 0.8},
		}}},
		{Type: agent.ActionDeleteTrack, Params: map[string]interface{}{"trackId": "keys"}},
	}, f.context())
	for _, o := range outcomes {
		require.Equal(t, agent.OutcomeExecuted, o.Status, o.Error)
	}

	report := f.ledger.RejectAll(ctx)
	assert.Empty(t, report.Failures)
	got, ok := f.store.Track("keys")
	require.True(t, ok)
	_, ok = got.Note("n1")
	assert.False(t, ok)
	assert.Equal(t, before, f.store.Tracks())
}

func TestAddThenDeleteTrackLeavesNothingPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	outcomes := f.exec.Execute(ctx, []agent.Action{
		{Type: agent.ActionAddTrack, Params: map[string]interface{}{"trackName": "Piano"}},
		{Type: agent.ActionAddMidiNotes, Params: map[string]interface{}{"trackId": PlaceholderTrackID, "notes": []interface{}{
			map[string]interface{}{"pitch": 60.0, "duration": 0.5, "velocity": 0.8},
		}}},
		{Type: agent.ActionDeleteTrack, Params: map[string]interface{}{"trackId": PlaceholderTrackID}},
	}, f.context())
	for _, o := range outcomes {
		require.Equal(t, agent.OutcomeExecuted, o.Status, o.Error)
	}

	assert.False(t, f.ledger.HasPendingChanges())
	report := f.ledger.ApproveAll(ctx)
	assert.Empty(t, report.Failures)
	assert.Empty(t, f.store.Tracks())
}

func TestFlatUpdateTrackParams(t *testing.T) {
	f := newFixture(project.Track{ID: "t1", Name: "Keys"})
	outcomes := f.exec.Execute(context.Background(), []agent.Action{
		{Type: agent.ActionUpdateTrack, Params: map[string]interface{}{"trackId": "t1", "name": "Rhodes"}},
	}, f.context())
	require.Equal(t, agent.OutcomeExecuted, outcomes[0].Status, outcomes[0].Error)

	got, _ := f.store.Track("t1")
	assert.Equal(t, "Rhodes", got.Name)
}

func TestUseChordProgression(t *testing.T) {
	f := newFixture(project.Track{ID: "piano", Name: "Piano"})
	outcomes := f.exec.Execute(context.Background(), []agent.Action{
		{Type: agent.ActionUseChordProgression, Params: map[string]interface{}{"progressionId": "pop_1", "trackId": "piano"}},
		{Type: agent.ActionUseChordProgression, Params: map[string]interface{}{"progressionId": "nope", "trackId": "piano"}},
	}, f.context())

	assert.Equal(t, agent.OutcomeExecuted, outcomes[0].Status, outcomes[0].Error)
	assert.Equal(t, agent.OutcomeFailed, outcomes[1].Status)

	track, _ := f.store.Track("piano")
	// C, G, Am and F are triads
	assert.Len(t, track.Notes, 12)
	assert.Equal(t, 60, track.Notes[0].Pitch)
	assert.InDelta(t, 2.0, track.Notes[0].Duration, 1e-9)
	assert.InDelta(t, 2.0, track.Notes[3].Time, 1e-9)

	require.Len(t, f.recorder.items, 1)
	assert.Equal(t, 0.7, f.recorder.items[0].Importance)
	assert.Equal(t, "useChordProgression: pop_1", f.recorder.items[0].Content.Action)
}

func TestChordPitches(t *testing.T) {
	assert.Equal(t, []int{60, 64, 67}, ChordPitches("C", "C"))
	assert.Equal(t, []int{67, 71, 74}, ChordPitches("C", "G major"))
	assert.Equal(t, []int{61, 65, 68}, ChordPitches("C", "Db"))
	assert.Equal(t, []int{69, 60, 64}, ChordPitches("Am", ""))
	assert.Equal(t, []int{60, 64, 67}, ChordPitches("X#9", "D"))
}

func TestProgressionNotesTiming(t *testing.T) {
	p := rag.ChordProgression{Chords: []string{"C5", "G5"}}
	notes := ProgressionNotes(p, project.Info{Tempo: 60})
	require.Len(t, notes, 4)
	assert.Equal(t, 0.0, notes[0].Time)
	assert.Equal(t, 4.0, notes[2].Time)
	assert.Equal(t, 4.0, notes[2].Duration)
	assert.Equal(t, 0.8, notes[0].Velocity)
}

func TestNotesRejectedWhenSessionClosed(t *testing.T) {
	f := newFixture(project.Track{ID: "t1"})
	f.ledger.ApproveAll(context.Background())

	outcomes := f.exec.Execute(context.Background(), []agent.Action{
		{Type: agent.ActionAddMidiNotes, Params: map[string]interface{}{"trackId": "t1", "notes": []interface{}{map[string]interface{}{"pitch": 60.0}}}},
	}, f.context())
	assert.Equal(t, agent.OutcomeFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Error, "not tracked")
}
