package lipsync

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Utterance is a speech backend payload: an audio URL and its viseme timing.
type Utterance struct {
	AudioURL string  `json:"audioUrl" yaml:"audioUrl"`
	Visemes  []Event `json:"visemes" yaml:"visemes"`
}

// ParseUtterance decodes JSON or YAML holding either a bare event list or an
// {audioUrl, visemes} object. Events are returned unvalidated.
func ParseUtterance(data []byte) (*Utterance, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse track: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return &Utterance{}, nil
	}

	doc := root.Content[0]
	var u Utterance
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&u.Visemes); err != nil {
			return nil, fmt.Errorf("decode visemes: %w", err)
		}
	case yaml.MappingNode:
		if err := doc.Decode(&u); err != nil {
			return nil, fmt.Errorf("decode utterance: %w", err)
		}
	default:
		return nil, fmt.Errorf("parse track: unexpected document kind %d", doc.Kind)
	}
	return &u, nil
}

// LoadTrackFile reads an utterance file and ingests its visemes.
// A non-nil error may accompany a usable track when events were dropped.
func LoadTrackFile(path string) (*Utterance, Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read track file: %w", err)
	}
	u, err := ParseUtterance(data)
	if err != nil {
		return nil, nil, err
	}
	track, err := NewTrack(u.Visemes)
	return u, track, err
}
