package main

import (
	"fmt"
	"os"

	"daw-agent-be/pkg/project"

	"gopkg.in/yaml.v3"
)

// scenario is a scripted agent run loaded from YAML.
type scenario struct {
	Prompt         string          `yaml:"prompt"`
	CurrentTrackID string          `yaml:"currentTrackId"`
	AutoApprove    bool            `yaml:"autoApprove"`
	Decision       string          `yaml:"decision"` // approve, reject or empty
	Project        scenarioProject `yaml:"project"`
	Responses      struct {
		Sense string `yaml:"sense"`
		Plan  string `yaml:"plan"`
		Act   string `yaml:"act"`
	} `yaml:"responses"`
}

type scenarioProject struct {
	Name          string          `yaml:"name"`
	Tempo         float64         `yaml:"tempo"`
	Key           string          `yaml:"key"`
	TimeSignature string          `yaml:"timeSignature"`
	Tracks        []scenarioTrack `yaml:"tracks"`
}

type scenarioTrack struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Type       string  `yaml:"type"`
	Instrument string  `yaml:"instrument"`
	Volume     float64 `yaml:"volume"`
	Pan        float64 `yaml:"pan"`
}

func loadScenario(path string) (scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var s scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if s.Prompt == "" {
		return scenario{}, fmt.Errorf("scenario %s has no prompt", path)
	}
	switch s.Decision {
	case "", "approve", "reject":
	default:
		return scenario{}, fmt.Errorf("scenario decision must be approve or reject, got %q", s.Decision)
	}
	return s, nil
}

func (p scenarioProject) info() project.Info {
	info := project.Info{Name: p.Name, Tempo: p.Tempo, Key: p.Key, TimeSignature: p.TimeSignature}
	if info.Tempo == 0 {
		info.Tempo = 120
	}
	return info
}

func (p scenarioProject) tracks() []project.Track {
	out := make([]project.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		out = append(out, project.Track{
			ID:         t.ID,
			Name:       t.Name,
			Type:       t.Type,
			Instrument: t.Instrument,
			Volume:     t.Volume,
			Pan:        t.Pan,
		})
	}
	return out
}
