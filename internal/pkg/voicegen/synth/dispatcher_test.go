package synth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicegen/internal/pkg/voicegen/apperr"
	"voicegen/internal/pkg/voicegen/audio"
	"voicegen/internal/pkg/voicegen/engine"
	"voicegen/internal/pkg/voicegen/refstore"
	"voicegen/internal/pkg/voicegen/registry"
)

const (
	vitsModel = "tts_models/es/css10/vits"
	xttsModel = "tts_models/multilingual/multi-dataset/xtts_v2"
	barkModel = "tts_models/multilingual/multi-dataset/bark"
)

func tone(n, rate int) *audio.Audio {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.4 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	return audio.NewAudioWithSampleRate(samples, rate)
}

type fakeHandle struct {
	inputs []engine.Input
	err    error
}

func (h *fakeHandle) Synthesize(_ context.Context, in engine.Input, outPath string) error {
	h.inputs = append(h.inputs, in)
	if h.err != nil {
		return h.err
	}
	return tone(11025, 22050).SaveWAV(outPath)
}

func (h *fakeHandle) Close() error { return nil }

type fakeLoader struct {
	handle *fakeHandle
	loads  []string
	err    error
}

func (l *fakeLoader) Load(_ context.Context, modelID string, _ engine.Device) (engine.Handle, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.loads = append(l.loads, modelID)
	return l.handle, nil
}

type fakeTagAware struct {
	texts    []string
	presets  []string
	placed   []engine.Device
	placeErr error
	err      error
}

func (p *fakeTagAware) Generate(_ context.Context, text, preset string) (*audio.Audio, error) {
	p.texts = append(p.texts, text)
	p.presets = append(p.presets, preset)
	if p.err != nil {
		return nil, p.err
	}
	return tone(12000, 24000), nil
}

func (p *fakeTagAware) PlaceSubmodules(_ context.Context, device engine.Device) error {
	p.placed = append(p.placed, device)
	return p.placeErr
}

type fixture struct {
	loader   *fakeLoader
	tagAware *fakeTagAware
	tempDir  string
	outDir   string
	logs     *bytes.Buffer
	d        *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		loader:   &fakeLoader{handle: &fakeHandle{}},
		tagAware: &fakeTagAware{},
		tempDir:  t.TempDir(),
		outDir:   t.TempDir(),
		logs:     &bytes.Buffer{},
	}
	cache := engine.NewCache(f.loader, engine.DeviceSelector{Override: engine.DeviceCPU})
	f.d = New(cache, f.tagAware, audio.NewFinalizer(audio.WithTempDir(f.tempDir)),
		WithLogger(zerolog.New(f.logs)))
	return f
}

func (f *fixture) out(name string) string {
	return filepath.Join(f.outDir, name)
}

// assertMP3 decodes the whole file.
func assertMP3(t *testing.T, path string, wantRate int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	d, err := gomp3.NewDecoder(f)
	require.NoError(t, err)
	pcm, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.NotEmpty(t, pcm)
	assert.Equal(t, wantRate, d.SampleRate())
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConventionalProducesMP3(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Synthesize(context.Background(), Request{
		Text:       "Hola mundo",
		ModelID:    vitsModel,
		OutputPath: f.out("hola"),
	})
	require.NoError(t, err)

	assert.Equal(t, f.out("hola.mp3"), res.OutputPath)
	assert.Equal(t, registry.Conventional, res.Backend)
	assert.Equal(t, engine.DeviceCPU, res.Device)
	assertMP3(t, res.OutputPath, 22050)
	assertEmptyDir(t, f.tempDir)

	require.Len(t, f.loader.handle.inputs, 1)
	assert.Equal(t, engine.Input{Text: "Hola mundo"}, f.loader.handle.inputs[0])
	assert.Empty(t, f.tagAware.texts)
	assert.Contains(t, f.logs.String(), `"request_id"`)
}

func TestReferenceConditionedWithoutReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Synthesize(context.Background(), Request{
		Text:       "Bonjour",
		ModelID:    xttsModel,
		Language:   "Francés",
		OutputPath: f.out("bonjour.mp3"),
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.loader.loads)
	assert.Empty(t, f.loader.handle.inputs)
	assertEmptyDir(t, f.outDir)
}

func TestReferenceConditionedPassesClipAndLanguage(t *testing.T) {
	f := newFixture(t)
	clip := &refstore.Clip{Name: "yo.wav", Path: "/clips/yo.wav"}

	res, err := f.d.Synthesize(context.Background(), Request{
		Text:       "Bonjour",
		ModelID:    xttsModel,
		Language:   "Francés",
		Reference:  clip,
		OutputPath: f.out("bonjour.mp3"),
	})
	require.NoError(t, err)
	assert.Equal(t, registry.ReferenceConditioned, res.Backend)
	assert.Equal(t, []engine.Input{{Text: "Bonjour", ReferencePath: "/clips/yo.wav", Language: "fr"}}, f.loader.handle.inputs)
}

func TestReferenceConditionedUnknownLanguageDefaultsToSpanish(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Synthesize(context.Background(), Request{
		Text:       "Hallo",
		ModelID:    xttsModel,
		Language:   "Klingon",
		Reference:  &refstore.Clip{Path: "/clips/a.wav"},
		OutputPath: f.out("a.mp3"),
	})
	require.NoError(t, err)
	require.Len(t, f.loader.handle.inputs, 1)
	assert.Equal(t, "es", f.loader.handle.inputs[0].Language)
}

func TestTagAwarePassesTextVerbatim(t *testing.T) {
	f := newFixture(t)
	clip := &refstore.Clip{Path: "/clips/ignored.wav"}

	res, err := f.d.Synthesize(context.Background(), Request{
		Text:       "[laughter] Hola",
		ModelID:    barkModel,
		Reference:  clip,
		OutputPath: f.out("risa.mp3"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"[laughter] Hola"}, f.tagAware.texts)
	assert.Equal(t, []string{DefaultVoicePreset}, f.tagAware.presets)
	assert.Equal(t, []engine.Device{engine.DeviceCPU}, f.tagAware.placed)
	assert.Equal(t, registry.TagAware, res.Backend)
	assert.Empty(t, f.loader.loads)
	assertMP3(t, res.OutputPath, 24000)
}

func TestTagAwarePlacementFailureOnlyWarns(t *testing.T) {
	f := newFixture(t)
	f.tagAware.placeErr = errors.New("mps not supported")

	_, err := f.d.Synthesize(context.Background(), Request{
		Text:       "Hola",
		ModelID:    barkModel,
		OutputPath: f.out("hola.mp3"),
	})
	require.NoError(t, err)
	assert.Contains(t, f.logs.String(), "mps not supported")
	assert.Contains(t, f.logs.String(), `"level":"warn"`)
}

func TestVoicePresetOption(t *testing.T) {
	tagAware := &fakeTagAware{}
	cache := engine.NewCache(&fakeLoader{handle: &fakeHandle{}}, engine.DeviceSelector{})
	d := New(cache, tagAware, audio.NewFinalizer(audio.WithTempDir(t.TempDir())),
		WithVoicePreset("v2/en_speaker_6"), WithLogger(zerolog.Nop()))

	_, err := d.Synthesize(context.Background(), Request{
		Text:       "Hello",
		ModelID:    barkModel,
		OutputPath: filepath.Join(t.TempDir(), "hello.wav"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2/en_speaker_6"}, tagAware.presets)
}

func TestWhitespaceTextIsRejectedForEveryBackend(t *testing.T) {
	for _, model := range []string{vitsModel, xttsModel, barkModel} {
		t.Run(model, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.d.Synthesize(context.Background(), Request{
				Text:       "  \t\n ",
				ModelID:    model,
				Reference:  &refstore.Clip{Path: "/clips/a.wav"},
				OutputPath: f.out("x.mp3"),
			})
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Empty(t, f.loader.loads)
			assert.Empty(t, f.tagAware.texts)
		})
	}
}

func TestEmptyOutputPathIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.Synthesize(context.Background(), Request{Text: "Hola", ModelID: vitsModel})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.loader.loads)
}

func TestModelLoadFailureIsSynthesisError(t *testing.T) {
	f := newFixture(t)
	f.loader.err = errors.New("checkpoint missing")

	_, err := f.d.Synthesize(context.Background(), Request{
		Text:       "Hola",
		ModelID:    vitsModel,
		OutputPath: f.out("hola.mp3"),
	})
	require.ErrorIs(t, err, apperr.ErrSynthesis)
	assert.ErrorIs(t, err, apperr.ErrModelLoad)
	assert.ErrorContains(t, err, "checkpoint missing")
	assertEmptyDir(t, f.outDir)
}

func TestEngineFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	f.loader.handle.err = errors.New("out of memory")

	_, err := f.d.Synthesize(context.Background(), Request{
		Text:       "Hola",
		ModelID:    vitsModel,
		OutputPath: f.out("hola.mp3"),
	})
	require.ErrorIs(t, err, apperr.ErrSynthesis)
	assert.ErrorContains(t, err, "out of memory")
	assertEmptyDir(t, f.tempDir)
	assertEmptyDir(t, f.outDir)
}

func TestUnsupportedOutputFormatIsRejectedUpFront(t *testing.T) {
	for _, model := range []string{vitsModel, barkModel} {
		t.Run(model, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.d.Synthesize(context.Background(), Request{
				Text:       "Hola",
				ModelID:    model,
				OutputPath: f.out("hola.ogg"),
			})
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.ErrorContains(t, err, "ogg")
			assert.Empty(t, f.loader.loads)
			assert.Empty(t, f.tagAware.texts)
			assertEmptyDir(t, f.outDir)
		})
	}
}

func TestEncodingFailureKeepsKind(t *testing.T) {
	loader := &fakeLoader{handle: &fakeHandle{}}
	cache := engine.NewCache(loader, engine.DeviceSelector{Override: engine.DeviceCPU})
	broken := audio.EncoderFunc(func(context.Context, string, string) error {
		return errors.New("encoder crashed")
	})
	d := New(cache, nil, audio.NewFinalizer(audio.WithTempDir(t.TempDir()), audio.WithEncoder("mp3", broken)),
		WithLogger(zerolog.Nop()))
	outDir := t.TempDir()

	_, err := d.Synthesize(context.Background(), Request{
		Text:       "Hola",
		ModelID:    vitsModel,
		OutputPath: filepath.Join(outDir, "hola.mp3"),
	})
	require.ErrorIs(t, err, apperr.ErrSynthesis)
	assert.ErrorIs(t, err, apperr.ErrEncoding)
	assert.ErrorContains(t, err, "encoder crashed")
	assertEmptyDir(t, outDir)
}

func TestTagAwareFailure(t *testing.T) {
	f := newFixture(t)
	f.tagAware.err = errors.New("sidecar down")

	_, err := f.d.Synthesize(context.Background(), Request{
		Text:       "Hola",
		ModelID:    barkModel,
		OutputPath: f.out("hola.mp3"),
	})
	require.ErrorIs(t, err, apperr.ErrSynthesis)
	assert.ErrorContains(t, err, "sidecar down")
}

func TestTagAwareNotConfigured(t *testing.T) {
	cache := engine.NewCache(&fakeLoader{handle: &fakeHandle{}}, engine.DeviceSelector{})
	d := New(cache, nil, audio.NewFinalizer(), WithLogger(zerolog.Nop()))

	_, err := d.Synthesize(context.Background(), Request{
		Text:       "Hola",
		ModelID:    barkModel,
		OutputPath: filepath.Join(t.TempDir(), "hola.mp3"),
	})
	require.ErrorIs(t, err, apperr.ErrSynthesis)
}

func TestSameModelIsLoadedOnce(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"a.mp3", "b.mp3"} {
		_, err := f.d.Synthesize(context.Background(), Request{
			Text:       "Hola",
			ModelID:    vitsModel,
			OutputPath: f.out(name),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{vitsModel}, f.loader.loads)
	assert.Equal(t, 1, f.d.Cache().Loads())
}
