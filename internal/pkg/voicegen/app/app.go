// Package app assembles the voicegen components from a loaded configuration.
package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"voicegen/internal/pkg/voicegen/audio"
	"voicegen/internal/pkg/voicegen/backends/onnxvits"
	"voicegen/internal/pkg/voicegen/config"
	"voicegen/internal/pkg/voicegen/engine"
	"voicegen/internal/pkg/voicegen/refstore"
	"voicegen/internal/pkg/voicegen/registry"
	"voicegen/internal/pkg/voicegen/synth"

	_ "voicegen/internal/pkg/voicegen/backends/bark"
	_ "voicegen/internal/pkg/voicegen/backends/coqui"
)

const tagAwareBackend = "bark"

type App struct {
	Config     *config.Config
	Catalog    *registry.Catalog
	Clips      *refstore.Store
	Devices    engine.DeviceSelector
	Dispatcher *synth.Dispatcher
}

type Option func(*options)

type options struct {
	probe engine.Probe
}

// WithProbe replaces the host accelerator probe.
func WithProbe(p engine.Probe) Option {
	return func(o *options) {
		o.probe = p
	}
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{probe: engine.HostProbe{}}
	for _, opt := range opts {
		opt(&o)
	}

	override, err := engine.ParseDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	devices := engine.DeviceSelector{Override: override, Probe: o.probe}

	catalog := registry.DefaultCatalog()
	if cfg.CatalogFile != "" {
		if catalog, err = registry.LoadCatalog(cfg.CatalogFile); err != nil {
			return nil, err
		}
	}

	clips, err := refstore.Open(cfg.ClipsDir)
	if err != nil {
		return nil, err
	}

	engineCfg := engine.Config{
		ModelsDir:   cfg.ModelsDir,
		CoquiURL:    cfg.CoquiURL,
		XTTSURL:     cfg.XTTSURL,
		BarkURL:     cfg.BarkURL,
		HTTPTimeout: cfg.HTTPTimeout,
	}

	conventional, err := engine.New(cfg.ConventionalBackend, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("conventional backend: %w", err)
	}
	reference, err := engine.New(cfg.ReferenceBackend, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("reference backend: %w", err)
	}

	var tagAware engine.TagAwareProvider
	if cfg.BarkURL != "" {
		if tagAware, err = engine.NewTagAware(tagAwareBackend, engineCfg); err != nil {
			return nil, fmt.Errorf("tag-aware backend: %w", err)
		}
	} else {
		log.Warn().Msg("bark_url is empty, tag-aware models are unavailable")
	}

	cache := engine.NewCache(engine.Router{
		Conventional:         conventional,
		ReferenceConditioned: reference,
	}, devices)

	dispatcher := synth.New(cache, tagAware, newFinalizer(cfg), synth.WithVoicePreset(cfg.BarkVoicePreset))

	log.Debug().
		Str("conventional", cfg.ConventionalBackend).
		Str("reference", cfg.ReferenceBackend).
		Str("device", string(devices.Select())).
		Str("clips", clips.Dir()).
		Msg("Application assembled")

	return &App{
		Config:     cfg,
		Catalog:    catalog,
		Clips:      clips,
		Devices:    devices,
		Dispatcher: dispatcher,
	}, nil
}

func newFinalizer(cfg *config.Config) *audio.Finalizer {
	opts := []audio.FinalizerOption{audio.WithTempDir(cfg.TempDir)}
	if cfg.Encoder == "ffmpeg" {
		opts = append(opts, audio.WithFFmpeg(cfg.FFmpegPath, cfg.MP3Bitrate))
	}
	return audio.NewFinalizer(opts...)
}

// Close discards the loaded engine and releases the ONNX runtime.
func (a *App) Close() error {
	a.Dispatcher.Cache().Close()
	return onnxvits.Shutdown()
}
