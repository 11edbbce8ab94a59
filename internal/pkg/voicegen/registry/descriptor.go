// Package registry classifies voice model identifiers and holds the voice
// catalogue offered to the user.
package registry

import (
	"strings"
)

// Backend is the synthesis protocol a model requires.
type Backend int

const (
	// Conventional models synthesize from text alone.
	Conventional Backend = iota
	// TagAware models interpret inline control tags such as "[laughter]".
	TagAware
	// ReferenceConditioned models clone the timbre of a reference clip.
	ReferenceConditioned
)

func (b Backend) String() string {
	switch b {
	case TagAware:
		return "tag-aware"
	case ReferenceConditioned:
		return "reference-conditioned"
	default:
		return "conventional"
	}
}

type Language int

const (
	Multilingual Language = iota
	Spanish
	English
	French
)

func (l Language) String() string {
	switch l {
	case Spanish:
		return "spanish"
	case English:
		return "english"
	case French:
		return "french"
	default:
		return "multilingual"
	}
}

// Descriptor describes what a voice model needs from the synthesis layer.
type Descriptor struct {
	ID       string
	Language Language
	Backend  Backend
}

// Classify maps a model id to its backend. Unrecognised ids are Conventional.
func Classify(modelID string) Backend {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "bark"):
		return TagAware
	case strings.Contains(id, "xtts_v2"):
		return ReferenceConditioned
	default:
		return Conventional
	}
}

// Resolve builds the descriptor for modelID. The language comes from the
// second path segment of ids shaped like "tts_models/<lang>/<dataset>/<model>".
func Resolve(modelID string) Descriptor {
	return Descriptor{
		ID:       modelID,
		Language: languageOf(modelID),
		Backend:  Classify(modelID),
	}
}

func languageOf(modelID string) Language {
	parts := strings.Split(strings.ToLower(modelID), "/")
	if len(parts) < 2 {
		return Multilingual
	}
	switch parts[1] {
	case "es":
		return Spanish
	case "en":
		return English
	case "fr":
		return French
	default:
		return Multilingual
	}
}
