package agent

var requiredParams = map[string][][]string{
	ActionAddTrack:            {{"trackName", "name", "instrument", "type"}},
	ActionAddMidiNotes:        {{"trackId"}, {"notes"}},
	ActionUpdateMidiNotes:     {{"trackId"}, {"notes"}},
	ActionDeleteMidiNotes:     {{"trackId"}, {"noteIds"}},
	ActionUpdateTrack:         {{"trackId"}},
	ActionDeleteTrack:         {{"trackId"}},
	ActionUseChordProgression: {{"progressionId"}},
}

// Validate reports whether a carries the parameters its type requires. Each
// group lists alternatives, one of which must be present. Unknown types pass.
func Validate(a Action) bool {
	groups, known := requiredParams[a.Type]
	if !known {
		return a.Type != ""
	}
	for _, alternatives := range groups {
		ok := false
		for _, key := range alternatives {
			if a.Has(key) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// ValidateActions splits actions into those that pass Validate and those
// that are dropped, keeping order.
func ValidateActions(actions []Action) (valid, dropped []Action) {
	for _, a := range actions {
		if Validate(a) {
			valid = append(valid, a)
		} else {
			dropped = append(dropped, a)
		}
	}
	return valid, dropped
}
