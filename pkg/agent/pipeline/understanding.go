package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"daw-agent-be/pkg/agent"
	"daw-agent-be/pkg/project"
)

// Basic DAW vocabulary in English and Japanese. Two hits are enough to
// accept a Sense response outright.
var basicTerms = []string{
	"track", "トラック", "note", "ノート", "music", "音楽", "melody", "メロディ",
	"piano", "ピアノ", "drum", "ドラム", "bass", "ベース", "chord", "コード",
	"tempo", "テンポ", "key", "キー", "project", "プロジェクト", "create", "作成",
	"add", "追加", "play", "再生", "sound", "音", "arrange", "アレンジ",
}

var technicalID = regexp.MustCompile(`(?i)^(track|note|project)-[a-f0-9-]+$`)

const (
	minBasicMatches   = 2
	basicRatioFloor   = 0.1
	semanticThreshold = 0.15
)

type Understanding struct {
	Understood bool     `json:"understood"`
	Ratio      float64  `json:"ratio"`
	Keywords   []string `json:"keywords"`
	Matched    []string `json:"matchedKeywords"`
	Reason     string   `json:"reason"`
}

// EvaluateUnderstanding judges whether a Sense response shows the model
// grasped the request context.
func EvaluateUnderstanding(response string, actx agent.Context) Understanding {
	if isEmptyContext(actx) {
		return Understanding{Understood: true, Ratio: 1, Reason: "no_context"}
	}

	lower := strings.ToLower(response)
	basic := matchTerms(lower, basicTerms)
	basicRatio := float64(len(basic)) / float64(len(basicTerms))

	if len(basic) >= minBasicMatches {
		return Understanding{Understood: true, Ratio: basicRatio, Keywords: basicTerms, Matched: basic, Reason: "basic_terms"}
	}

	keywords := SemanticKeywords(actx)
	if len(keywords) == 0 {
		return Understanding{
			Understood: basicRatio >= basicRatioFloor,
			Ratio:      basicRatio,
			Keywords:   basicTerms,
			Matched:    basic,
			Reason:     "basic_ratio",
		}
	}

	matched := matchTerms(lower, keywords)
	ratio := float64(len(matched)) / float64(len(keywords))
	return Understanding{
		Understood: ratio >= semanticThreshold,
		Ratio:      ratio,
		Keywords:   keywords,
		Matched:    matched,
		Reason:     "semantic_ratio",
	}
}

func matchTerms(lower string, terms []string) []string {
	matched := []string{}
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			matched = append(matched, term)
		}
	}
	return matched
}

func isEmptyContext(actx agent.Context) bool {
	return len(actx.ExistingTracks) == 0 && actx.CurrentTrack == nil && actx.ProjectInfo == (project.Info{})
}

// SemanticKeywords lists the human-meaningful words of a request context:
// track names and types plus project name, tempo, key and time signature.
// Opaque identifiers are left out.
func SemanticKeywords(actx agent.Context) []string {
	var keywords []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !technicalID.MatchString(s) {
			keywords = append(keywords, s)
		}
	}

	if t := actx.CurrentTrack; t != nil {
		add(t.Name)
		add(t.Type)
	}
	for _, t := range actx.ExistingTracks {
		add(t.Name)
		add(t.Type)
	}

	info := actx.ProjectInfo
	add(info.Name)
	if info.Tempo > 0 {
		keywords = append(keywords, "tempo", strconv.FormatFloat(info.Tempo, 'f', -1, 64))
	}
	add(info.Key)
	add(info.TimeSignature)
	return keywords
}
