package pipeline

import (
	"regexp"
	"strings"
)

var displayFilters = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json.*?```"),
	regexp.MustCompile(`(?s)\{.*?"actions".*?\}`),
	regexp.MustCompile(`(?s)\{.*?"type".*?"params".*?\}`),
	regexp.MustCompile(`(?s)[\[{]\s*"(?:pitch|velocity|time|duration|id)".*?[\]}]`),
	regexp.MustCompile(`\{ "id": "note-[^}]*\}`),
	regexp.MustCompile(`pitch: \d+, velocity: [\d.]+, (?:start|time): [\d.]+, duration: [\d.]+`),
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// FilterDisplayText strips JSON blocks, inline action objects and note
// parameter lists from model output shown to the user.
func FilterDisplayText(text string) string {
	for _, re := range displayFilters {
		text = re.ReplaceAllString(text, "")
	}
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
