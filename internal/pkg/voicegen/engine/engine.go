// Package engine defines the synthesis capability providers and owns the
// lifecycle of loaded engine instances.
package engine

import (
	"context"
	"time"

	"voicegen/internal/pkg/voicegen/audio"
)

// Input is one synthesis call. ReferencePath and Language are only set for
// reference-conditioned models.
type Input struct {
	Text          string
	ReferencePath string
	Language      string
}

// Handle is a loaded model instance.
type Handle interface {
	// Synthesize writes a WAV file for in to outPath.
	Synthesize(ctx context.Context, in Input, outPath string) error
	Close() error
}

// Loader instantiates engines for model ids.
type Loader interface {
	Load(ctx context.Context, modelID string, device Device) (Handle, error)
}

type LoaderFunc func(ctx context.Context, modelID string, device Device) (Handle, error)

func (f LoaderFunc) Load(ctx context.Context, modelID string, device Device) (Handle, error) {
	return f(ctx, modelID, device)
}

// TagAwareProvider synthesizes text that may carry inline control tags.
type TagAwareProvider interface {
	Generate(ctx context.Context, text, voicePreset string) (*audio.Audio, error)
}

// SubmodulePlacer is implemented by tag-aware providers whose internal
// sub-models can be moved between devices.
type SubmodulePlacer interface {
	PlaceSubmodules(ctx context.Context, device Device) error
}

// Config carries everything a backend factory may need.
type Config struct {
	ModelsDir   string
	CoquiURL    string
	XTTSURL     string
	BarkURL     string
	HTTPTimeout time.Duration
}
