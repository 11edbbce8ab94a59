package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicegen/internal/pkg/voicegen/apperr"
)

func sine(seconds float64, rate int) *Audio {
	n := int(seconds * float64(rate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return NewAudioWithSampleRate(samples, rate)
}

// decodeMP3 decodes the whole file and returns its sample rate and length
// in seconds.
func decodeMP3(t *testing.T, path string) (int, float64) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	d, err := gomp3.NewDecoder(f)
	require.NoError(t, err)
	pcm, err := io.ReadAll(d)
	require.NoError(t, err)
	require.NotEmpty(t, pcm)

	// 16-bit stereo frames
	return d.SampleRate(), float64(len(pcm)/4) / float64(d.SampleRate())
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveAndLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	src := sine(0.25, 16000)
	require.NoError(t, src.SaveWAV(path))

	got, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, got.SampleRate)
	require.Len(t, got.Samples, len(src.Samples))
	assert.InDelta(t, src.Samples[100], got.Samples[100], 0.001)

	rate, err := ReadWAVInfo(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
}

func TestLoadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wave file at all"), 0o644))

	_, err := LoadWAV(path)
	assert.Error(t, err)
}

func TestResolveTarget(t *testing.T) {
	path, format := ResolveTarget("/tmp/out")
	assert.Equal(t, "/tmp/out.mp3", path)
	assert.Equal(t, "mp3", format)

	path, format = ResolveTarget("/tmp/out.WAV")
	assert.Equal(t, "/tmp/out.WAV", path)
	assert.Equal(t, "wav", format)
}

func TestFinalizeMP3RemovesIntermediate(t *testing.T) {
	tempDir := t.TempDir()
	outDir := t.TempDir()
	f := NewFinalizer(WithTempDir(tempDir))

	out, err := f.Finalize(context.Background(), SamplesSource{Audio: sine(1, 22050)}, filepath.Join(outDir, "hola.mp3"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "hola.mp3"), out)

	rate, seconds := decodeMP3(t, out)
	assert.Equal(t, 22050, rate)
	assert.InDelta(t, 1.0, seconds, 0.15)

	assert.Empty(t, listDir(t, tempDir))
	assert.Equal(t, []string{"hola.mp3"}, listDir(t, outDir))
}

func TestFinalizeMP3IsDecodableAtEveryRate(t *testing.T) {
	tests := map[int]int{
		8000:  44100,
		11025: 44100,
		12000: 44100,
		16000: 44100,
		20000: 44100,
		22050: 22050,
		24000: 24000,
		32000: 32000,
		44100: 44100,
		48000: 48000,
	}
	for in, want := range tests {
		t.Run(fmt.Sprintf("%dHz", in), func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "tone.mp3")
			f := NewFinalizer(WithTempDir(t.TempDir()))

			_, err := f.Finalize(context.Background(), SamplesSource{Audio: sine(1, in)}, out)
			require.NoError(t, err)

			rate, seconds := decodeMP3(t, out)
			assert.Equal(t, want, rate)
			assert.InDelta(t, 1.0, seconds, 0.15)
		})
	}
}

func TestFinalizeEncodingFailureCleansUp(t *testing.T) {
	tempDir := t.TempDir()
	outDir := t.TempDir()
	failing := EncoderFunc(func(_ context.Context, _, dst string) error {
		require.NoError(t, os.WriteFile(dst, []byte("half an mp3"), 0o644))
		return errors.New("encoder crashed")
	})
	f := NewFinalizer(WithTempDir(tempDir), WithEncoder("mp3", failing))

	_, err := f.Finalize(context.Background(), SamplesSource{Audio: sine(0.1, 22050)}, filepath.Join(outDir, "out.mp3"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrEncoding))
	assert.Contains(t, err.Error(), "encoder crashed")

	assert.Empty(t, listDir(t, tempDir))
	assert.Empty(t, listDir(t, outDir))
}

func TestFinalizeSourceFailureCleansUp(t *testing.T) {
	tempDir := t.TempDir()
	outDir := t.TempDir()
	var written string
	src := SourceFunc(func(_ context.Context, path string) error {
		written = path
		require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
		return errors.New("backend exploded")
	})

	_, err := NewFinalizer(WithTempDir(tempDir)).Finalize(context.Background(), src, filepath.Join(outDir, "out.mp3"))
	require.EqualError(t, err, "backend exploded")
	assert.Equal(t, tempDir, filepath.Dir(written))
	assert.NoFileExists(t, written)
	assert.Empty(t, listDir(t, outDir))
}

func TestFinalizeUnsupportedFormat(t *testing.T) {
	outDir := t.TempDir()
	_, err := NewFinalizer().Finalize(context.Background(), SamplesSource{Audio: sine(0.1, 22050)}, filepath.Join(outDir, "out.ogg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrEncoding))
	assert.Empty(t, listDir(t, outDir))
}

func TestFFmpegEncoderMissingBinary(t *testing.T) {
	dir := t.TempDir()
	wavPath := filepath.Join(dir, "in.wav")
	require.NoError(t, sine(0.1, 22050).SaveWAV(wavPath))

	enc := FFmpegEncoder{Binary: filepath.Join(dir, "no-such-ffmpeg"), Format: "mp3"}
	err := enc.Encode(context.Background(), wavPath, filepath.Join(dir, "out.mp3"))
	assert.Error(t, err)
}

func TestEncoderForPrefersFFmpeg(t *testing.T) {
	f := NewFinalizer(WithFFmpeg("/usr/bin/ffmpeg", "192k"))
	enc, err := f.EncoderFor("ogg")
	require.NoError(t, err)
	ff, ok := enc.(FFmpegEncoder)
	require.True(t, ok)
	assert.Equal(t, "ogg", ff.Format)
	assert.Equal(t, "192k", ff.Bitrate)
}
