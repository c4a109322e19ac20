// Package agent holds the types shared by the orchestration pipeline: the
// actions a model proposes, the project context a request carries and the
// result handed back to the caller.
package agent

import (
	"encoding/json"
	"fmt"

	"daw-agent-be/pkg/project"
)

const (
	ActionAddTrack              = "addTrack"
	ActionUpdateTrack           = "updateTrack"
	ActionDeleteTrack           = "deleteTrack"
	ActionAddMidiNotes          = "addMidiNotes"
	ActionUpdateMidiNotes       = "updateMidiNotes"
	ActionDeleteMidiNotes       = "deleteMidiNotes"
	ActionUpdateProjectSettings = "updateProjectSettings"
	ActionUseChordProgression   = "useChordProgression"
)

// Action is one proposed project mutation.
type Action struct {
	Type        string                 `json:"type"`
	Params      map[string]interface{} `json:"params"`
	Description string                 `json:"description,omitempty"`
}

// String returns the string parameter key, or "" when absent or not a string.
func (a Action) String(key string) string {
	if a.Params == nil {
		return ""
	}
	s, _ := a.Params[key].(string)
	return s
}

// Has reports whether key is present and non-empty.
func (a Action) Has(key string) bool {
	if a.Params == nil {
		return false
	}
	v, ok := a.Params[key]
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case string:
		return x != ""
	case []interface{}:
		return len(x) > 0
	}
	return true
}

// Decode re-encodes the whole parameter map into out.
func (a Action) Decode(out interface{}) error {
	data, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", a.Type, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s params: %w", a.Type, err)
	}
	return nil
}

// Context is the project state supplied with every orchestration request.
type Context struct {
	ProjectInfo    project.Info    `json:"projectInfo"`
	ExistingTracks []project.Track `json:"existingTracks"`
	CurrentTrack   *project.Track  `json:"currentTrack,omitempty"`
}

// Track finds a track in the request context by id.
func (c Context) Track(id string) (project.Track, bool) {
	for _, t := range c.ExistingTracks {
		if t.ID == id {
			return t, true
		}
	}
	if c.CurrentTrack != nil && c.CurrentTrack.ID == id {
		return *c.CurrentTrack, true
	}
	return project.Track{}, false
}

// Plan is the structured output of the Plan and Act phases.
type Plan struct {
	Actions   []Action `json:"actions"`
	Summary   string   `json:"summary"`
	NextSteps string   `json:"nextSteps"`
}

// Result is returned from one orchestration run.
type Result struct {
	Actions           []Action        `json:"actions"`
	Summary           string          `json:"summary"`
	NextSteps         string          `json:"nextSteps"`
	Success           bool            `json:"success"`
	Error             string          `json:"error,omitempty"`
	HasPendingChanges bool            `json:"hasPendingChanges"`
	ApprovalSessionID string          `json:"approvalSessionId,omitempty"`
	Dropped           []Action        `json:"droppedActions,omitempty"`
	Outcomes          []ActionOutcome `json:"outcomes,omitempty"`
}

type OutcomeStatus string

const (
	OutcomeExecuted OutcomeStatus = "executed"
	OutcomeFailed   OutcomeStatus = "failed"
	OutcomeSkipped  OutcomeStatus = "skipped"
)

// ActionOutcome reports what happened to one action.
type ActionOutcome struct {
	Action  Action        `json:"action"`
	Status  OutcomeStatus `json:"status"`
	Error   string        `json:"error,omitempty"`
	TrackID string        `json:"trackId,omitempty"`
}
