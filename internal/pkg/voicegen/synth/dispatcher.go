// Package synth turns a synthesis request into a delivered audio file. It
// picks the protocol the model needs, obtains the engine from the model
// cache and hands the waveform to the finalizer.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voicegen/internal/pkg/voicegen/apperr"
	"voicegen/internal/pkg/voicegen/audio"
	"voicegen/internal/pkg/voicegen/engine"
	"voicegen/internal/pkg/voicegen/refstore"
	"voicegen/internal/pkg/voicegen/registry"
)

const DefaultVoicePreset = "v2/es_speaker_2"

// Request is one synthesis job. Reference is required for
// reference-conditioned models and ignored otherwise. Language is the
// user's language selection, e.g. "Español".
type Request struct {
	Text       string
	ModelID    string
	Reference  *refstore.Clip
	Language   string
	OutputPath string
}

type Result struct {
	OutputPath string
	ModelID    string
	Backend    registry.Backend
	Device     engine.Device
	Elapsed    time.Duration
}

// Dispatcher serves one request at a time. It owns the model cache it is
// given.
type Dispatcher struct {
	cache       *engine.Cache
	tagAware    engine.TagAwareProvider
	finalizer   *audio.Finalizer
	voicePreset string
	logger      zerolog.Logger
}

type Option func(*Dispatcher)

// WithVoicePreset sets the preset passed to tag-aware models.
func WithVoicePreset(preset string) Option {
	return func(d *Dispatcher) {
		if preset != "" {
			d.voicePreset = preset
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New builds a dispatcher. tagAware may be nil when no tag-aware backend is
// configured; requests for such models then fail.
func New(cache *engine.Cache, tagAware engine.TagAwareProvider, finalizer *audio.Finalizer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cache:       cache,
		tagAware:    tagAware,
		finalizer:   finalizer,
		voicePreset: DefaultVoicePreset,
		logger:      log.Logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Cache exposes the model cache, mainly so callers can close it on exit.
func (d *Dispatcher) Cache() *engine.Cache {
	return d.cache
}

// Synthesize validates req, runs the backend the model requires and writes
// the delivered file. Validation failures never reach a provider. Any later
// failure is a Synthesis error wrapping its cause.
func (d *Dispatcher) Synthesize(ctx context.Context, req Request) (*Result, error) {
	desc, err := d.validate(req)
	if err != nil {
		return nil, err
	}

	logger := d.logger.With().
		Str("request_id", uuid.NewString()).
		Str("model", desc.ID).
		Str("backend", desc.Backend.String()).
		Logger()

	start := time.Now()
	var (
		src    audio.Source
		device engine.Device
	)

	switch desc.Backend {
	case registry.TagAware:
		device = d.cache.Device()
		src, err = d.tagAwareSource(ctx, logger, req, device)
	case registry.ReferenceConditioned:
		device, src, err = d.engineSource(ctx, desc.ID, engine.Input{
			Text:          req.Text,
			ReferencePath: req.Reference.Path,
			Language:      registry.LanguageCode(req.Language),
		})
	default:
		device, src, err = d.engineSource(ctx, desc.ID, engine.Input{Text: req.Text})
	}
	if err != nil {
		logger.Error().Err(err).Msg("Synthesis failed")
		return nil, apperr.Wrap(apperr.KindSynthesis, "synthesize", err)
	}

	out, err := d.finalizer.Finalize(ctx, src, req.OutputPath)
	if err != nil {
		logger.Error().Err(err).Msg("Synthesis failed")
		return nil, apperr.Wrap(apperr.KindSynthesis, "synthesize", err)
	}

	elapsed := time.Since(start)
	logger.Info().
		Str("device", string(device)).
		Str("output", out).
		Dur("elapsed", elapsed).
		Msg("Synthesis complete")

	return &Result{
		OutputPath: out,
		ModelID:    desc.ID,
		Backend:    desc.Backend,
		Device:     device,
		Elapsed:    elapsed,
	}, nil
}

func (d *Dispatcher) validate(req Request) (registry.Descriptor, error) {
	if strings.TrimSpace(req.Text) == "" {
		return registry.Descriptor{}, apperr.New(apperr.KindValidation, "validate request", "text is empty")
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return registry.Descriptor{}, apperr.New(apperr.KindValidation, "validate request", "output path is empty")
	}
	if _, format := audio.ResolveTarget(req.OutputPath); format != "" {
		if _, err := d.finalizer.EncoderFor(format); err != nil {
			return registry.Descriptor{}, apperr.Wrap(apperr.KindValidation, "validate request", err)
		}
	}
	if strings.TrimSpace(req.ModelID) == "" {
		return registry.Descriptor{}, apperr.New(apperr.KindValidation, "validate request", "no model selected")
	}
	desc := registry.Resolve(req.ModelID)
	if desc.Backend == registry.ReferenceConditioned && (req.Reference == nil || req.Reference.Path == "") {
		return desc, apperr.Errorf(apperr.KindValidation, "validate request",
			"model %s needs a reference clip", desc.ID)
	}
	return desc, nil
}

// engineSource loads the engine for modelID and returns a source that runs
// it into the finalizer's temporary file.
func (d *Dispatcher) engineSource(ctx context.Context, modelID string, in engine.Input) (engine.Device, audio.Source, error) {
	loaded, err := d.cache.Get(ctx, modelID)
	if err != nil {
		return "", nil, err
	}
	src := audio.SourceFunc(func(ctx context.Context, path string) error {
		if err := loaded.Handle.Synthesize(ctx, in, path); err != nil {
			return fmt.Errorf("%s: %w", modelID, err)
		}
		return nil
	})
	return loaded.Device, src, nil
}

// tagAwareSource generates the waveform up front so the finalizer only
// writes samples. The reference clip is never used.
func (d *Dispatcher) tagAwareSource(ctx context.Context, logger zerolog.Logger, req Request, device engine.Device) (audio.Source, error) {
	if d.tagAware == nil {
		return nil, errors.New("no tag-aware backend configured")
	}

	if placer, ok := d.tagAware.(engine.SubmodulePlacer); ok {
		if err := placer.PlaceSubmodules(ctx, device); err != nil {
			logger.Warn().Err(err).Str("device", string(device)).Msg("Could not move sub-models to device, continuing")
		}
	}

	a, err := d.tagAware.Generate(ctx, req.Text, d.voicePreset)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if a == nil || len(a.Samples) == 0 {
		return nil, errors.New("generate: provider returned no audio")
	}
	return audio.SamplesSource{Audio: a}, nil
}
