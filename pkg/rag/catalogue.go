package rag

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

type KnowledgeItem struct {
	ID       string    `yaml:"id" json:"id"`
	Title    string    `yaml:"title" json:"title"`
	Content  string    `yaml:"content" json:"content"`
	Tags     []string  `yaml:"tags" json:"tags"`
	Category string    `yaml:"category" json:"category"`
	Vector   []float32 `yaml:"-" json:"-"`
}

type ChordProgression struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Chords      []string  `yaml:"chords" json:"chords"`
	Description string    `yaml:"description" json:"description"`
	Genre       string    `yaml:"genre" json:"genre"`
	Difficulty  string    `yaml:"difficulty" json:"difficulty"`
	Vector      []float32 `yaml:"-" json:"-"`
}

// Catalogue is the static knowledge loaded at startup.
type Catalogue struct {
	Knowledge         []KnowledgeItem    `yaml:"knowledge"`
	ChordProgressions []ChordProgression `yaml:"chordProgressions"`
}

// ParseCatalogue decodes a YAML catalogue and checks ids are present and unique.
func ParseCatalogue(data []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalogue{}, fmt.Errorf("decode catalogue: %w", err)
	}

	seen := make(map[string]struct{})
	for _, k := range c.Knowledge {
		if k.ID == "" {
			return Catalogue{}, fmt.Errorf("knowledge item %q has no id", k.Title)
		}
		if _, dup := seen[k.ID]; dup {
			return Catalogue{}, fmt.Errorf("duplicate catalogue id %q", k.ID)
		}
		seen[k.ID] = struct{}{}
	}
	for _, p := range c.ChordProgressions {
		if p.ID == "" {
			return Catalogue{}, fmt.Errorf("chord progression %q has no id", p.Name)
		}
		if _, dup := seen[p.ID]; dup {
			return Catalogue{}, fmt.Errorf("duplicate catalogue id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return c, nil
}

// DefaultCatalogue returns the embedded music knowledge and chord library.
func DefaultCatalogue() Catalogue {
	c, err := ParseCatalogue(defaultCatalogue)
	if err != nil {
		panic(err)
	}
	return c
}
