package pipeline

import (
	"encoding/json"
	"regexp"
	"strings"

	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/agent/executor"
	"daw-agent-be/pkg/project"
)

const (
	summaryLimit     = 200
	defaultSummary   = "Actions were generated"
	defaultNextSteps = "Review the pending changes"
)

var (
	fencedJSON  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	quotedName  = regexp.MustCompile(`["「“]([^"」”]+)["」”]`)
	cMajorScale = []int{60, 62, 64, 65, 67, 69, 71, 72}
)

// flexString accepts a JSON string or an array of strings.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = flexString(strings.Join(list, "; "))
	return nil
}

type wirePlan struct {
	Actions   *[]agent.Action `json:"actions"`
	Summary   flexString      `json:"summary"`
	NextSteps flexString      `json:"nextSteps"`
}

// ParsePlan reads a Plan or Act response. A JSON object carrying an actions
// array wins; otherwise the text is read for track or note intents and a
// single-action plan is synthesized. structured reports which path was used.
func ParsePlan(text string, actx agent.Context) (plan agent.Plan, structured bool) {
	if p, ok := parseJSONPlan(text); ok {
		return p, true
	}
	return parseNaturalLanguage(text, actx), false
}

func parseJSONPlan(text string) (agent.Plan, bool) {
	var candidates []string
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if raw := extractJSON(text); raw != "" {
		candidates = append(candidates, raw)
	}

	for _, raw := range candidates {
		var wp wirePlan
		if err := json.Unmarshal([]byte(raw), &wp); err != nil || wp.Actions == nil {
			continue
		}
		plan := agent.Plan{
			Actions:   *wp.Actions,
			Summary:   string(wp.Summary),
			NextSteps: string(wp.NextSteps),
		}
		if plan.Summary == "" {
			plan.Summary = defaultSummary
		}
		if plan.NextSteps == "" {
			plan.NextSteps = defaultNextSteps
		}
		return plan, true
	}
	return agent.Plan{}, false
}

// extractJSON returns the text between the first '{' and the last '}'.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

func parseNaturalLanguage(text string, actx agent.Context) agent.Plan {
	lower := strings.ToLower(text)
	plan := agent.Plan{
		Actions:   []agent.Action{},
		Summary:   truncateRunes(text, summaryLimit),
		NextSteps: defaultNextSteps,
	}

	mentionsTrack := containsAny(lower, "track", "トラック")
	switch {
	case mentionsTrack && containsAny(lower, "add", "create", "追加", "作成"):
		plan.Actions = append(plan.Actions, agent.Action{
			Type: agent.ActionAddTrack,
			Params: map[string]interface{}{
				"instrument": detectInstrument(lower),
				"trackName":  trackName(text),
			},
			Description: "Add a new track",
		})
	case containsAny(lower, "note", "ノート", "melody", "メロディ", "scale", "スケール"):
		plan.Actions = append(plan.Actions, agent.Action{
			Type: agent.ActionAddMidiNotes,
			Params: map[string]interface{}{
				"trackId": targetTrack(actx),
				"notes":   fallbackNotes(lower),
			},
			Description: "Add MIDI notes",
		})
	}
	return plan
}

var instruments = []struct {
	needles []string
	name    string
}{
	{[]string{"piano", "ピアノ"}, "Piano"},
	{[]string{"guitar", "ギター"}, "Guitar"},
	{[]string{"bass", "ベース"}, "Bass"},
	{[]string{"drum", "ドラム"}, "Drums"},
	{[]string{"violin", "バイオリン"}, "Violin"},
	{[]string{"trumpet", "トランペット"}, "Trumpet"},
}

func detectInstrument(lower string) string {
	for _, in := range instruments {
		if containsAny(lower, in.needles...) {
			return in.name
		}
	}
	return "Piano"
}

func trackName(text string) string {
	if m := quotedName.FindStringSubmatch(text); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	return "New Track"
}

// targetTrack picks where fallback notes go: the current track, then a piano
// track, then the first track, then the placeholder for a track created in
// the same run.
func targetTrack(actx agent.Context) string {
	if actx.CurrentTrack != nil && actx.CurrentTrack.ID != "" {
		return actx.CurrentTrack.ID
	}
	for _, t := range actx.ExistingTracks {
		if isPiano(t) {
			return t.ID
		}
	}
	if len(actx.ExistingTracks) > 0 {
		return actx.ExistingTracks[0].ID
	}
	return executor.PlaceholderTrackID
}

func isPiano(t project.Track) bool {
	return containsAny(strings.ToLower(t.Name+" "+t.Instrument+" "+t.Type), "piano", "ピアノ")
}

func fallbackNotes(lower string) []interface{} {
	if !containsAny(lower, "scale", "スケール", "音階") {
		return []interface{}{noteParam(60, 0, 1)}
	}
	notes := make([]interface{}, 0, len(cMajorScale))
	for i, pitch := range cMajorScale {
		notes = append(notes, noteParam(pitch, float64(i)*0.5, 0.5))
	}
	return notes
}

func noteParam(pitch int, at, duration float64) map[string]interface{} {
	return map[string]interface{}{
		"pitch":    pitch,
		"time":     at,
		"duration": duration,
		"velocity": 0.8,
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
