package agent

import (
	"testing"

	"daw-agent-be/pkg/project"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   bool
	}{
		{"addTrack with name", Action{Type: ActionAddTrack, Params: map[string]interface{}{"trackName": "Lead"}}, true},
		{"addTrack with instrument only", Action{Type: ActionAddTrack, Params: map[string]interface{}{"instrument": "Piano"}}, true},
		{"addTrack empty", Action{Type: ActionAddTrack, Params: map[string]interface{}{}}, false},
		{"addMidiNotes complete", Action{Type: ActionAddMidiNotes, Params: map[string]interface{}{"trackId": "t1", "notes": []interface{}{map[string]interface{}{"pitch": 60.0}}}}, true},
		{"addMidiNotes no notes", Action{Type: ActionAddMidiNotes, Params: map[string]interface{}{"trackId": "t1", "notes": []interface{}{}}}, false},
		{"addMidiNotes no track", Action{Type: ActionAddMidiNotes, Params: map[string]interface{}{"notes": []interface{}{1.0}}}, false},
		{"deleteMidiNotes", Action{Type: ActionDeleteMidiNotes, Params: map[string]interface{}{"trackId": "t1", "noteIds": []interface{}{"n1"}}}, true},
		{"updateTrack nil params", Action{Type: ActionUpdateTrack}, false},
		{"deleteTrack", Action{Type: ActionDeleteTrack, Params: map[string]interface{}{"trackId": "t1"}}, true},
		{"chord progression", Action{Type: ActionUseChordProgression, Params: map[string]interface{}{"progressionId": "pop_1"}}, true},
		{"unknown type passes", Action{Type: "applyEffect"}, true},
		{"missing type", Action{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.action))
		})
	}
}

func TestValidateActionsKeepsOrder(t *testing.T) {
	actions := []Action{
		{Type: ActionDeleteTrack, Params: map[string]interface{}{"trackId": "a"}},
		{Type: ActionDeleteTrack},
		{Type: ActionDeleteTrack, Params: map[string]interface{}{"trackId": "b"}},
	}
	valid, dropped := ValidateActions(actions)
	require.Len(t, valid, 2)
	assert.Equal(t, "a", valid[0].String("trackId"))
	assert.Equal(t, "b", valid[1].String("trackId"))
	assert.Len(t, dropped, 1)
}

func TestActionDecode(t *testing.T) {
	a := Action{Type: ActionAddMidiNotes, Params: map[string]interface{}{
		"trackId": "t1",
		"notes":   []interface{}{map[string]interface{}{"pitch": 64.0, "time": 0.5, "duration": 1.0, "velocity": 0.8}},
	}}
	var p struct {
		TrackID string         `json:"trackId"`
		Notes   []project.Note `json:"notes"`
	}
	require.NoError(t, a.Decode(&p))
	assert.Equal(t, "t1", p.TrackID)
	require.Len(t, p.Notes, 1)
	assert.Equal(t, 64, p.Notes[0].Pitch)
}

func TestContextTrack(t *testing.T) {
	cur := project.Track{ID: "cur"}
	c := Context{ExistingTracks: []project.Track{{ID: "a"}}, CurrentTrack: &cur}

	_, ok := c.Track("a")
	assert.True(t, ok)
	_, ok = c.Track("cur")
	assert.True(t, ok)
	_, ok = c.Track("zzz")
	assert.False(t, ok)
}
