package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"voicegen/internal/pkg/voicegen/apperr"
)

const DefaultFormat = "mp3"

// Source produces the raw waveform of a synthesis as a WAV file at path.
type Source interface {
	WriteWAV(ctx context.Context, path string) error
}

type SourceFunc func(ctx context.Context, path string) error

func (f SourceFunc) WriteWAV(ctx context.Context, path string) error { return f(ctx, path) }

// SamplesSource writes in-memory samples.
type SamplesSource struct {
	Audio *Audio
}

func (s SamplesSource) WriteWAV(_ context.Context, path string) error {
	if s.Audio == nil {
		return errors.New("no audio")
	}
	return s.Audio.SaveWAV(path)
}

// Finalizer turns a synthesis waveform into the delivered file. The WAV
// intermediate never outlives a Finalize call.
type Finalizer struct {
	tempDir  string
	ffmpeg   FFmpegEncoder
	prefer   string
	encoders map[string]Encoder
}

type FinalizerOption func(*Finalizer)

// WithTempDir places intermediates in dir instead of the OS temp directory.
func WithTempDir(dir string) FinalizerOption {
	return func(f *Finalizer) {
		f.tempDir = dir
	}
}

// WithFFmpeg routes every format through ffmpeg.
func WithFFmpeg(binary, bitrate string) FinalizerOption {
	return func(f *Finalizer) {
		f.prefer = "ffmpeg"
		f.ffmpeg.Binary = binary
		f.ffmpeg.Bitrate = bitrate
	}
}

// WithEncoder overrides the encoder used for format.
func WithEncoder(format string, enc Encoder) FinalizerOption {
	return func(f *Finalizer) {
		f.encoders[strings.ToLower(format)] = enc
	}
}

func NewFinalizer(opts ...FinalizerOption) *Finalizer {
	f := &Finalizer{
		prefer:   "native",
		encoders: make(map[string]Encoder),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// EncoderFor returns the encoder for a delivery format such as "mp3".
func (f *Finalizer) EncoderFor(format string) (Encoder, error) {
	format = strings.ToLower(format)
	if enc, ok := f.encoders[format]; ok {
		return enc, nil
	}
	if f.prefer == "ffmpeg" {
		if _, ok := ffmpegMuxers[format]; ok {
			enc := f.ffmpeg
			enc.Format = format
			return enc, nil
		}
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	switch format {
	case "mp3":
		return MP3Encoder{}, nil
	case "wav":
		return WAVEncoder{}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q (native encoder supports mp3 and wav; set encoder=ffmpeg for others)", format)
}

// ResolveTarget appends the default extension when target has none.
func ResolveTarget(target string) (path, format string) {
	ext := filepath.Ext(target)
	if ext == "" {
		return target + "." + DefaultFormat, DefaultFormat
	}
	return target, strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Finalize lets src write a temporary WAV, transcodes it to target and
// removes the intermediate. It returns the delivered path. On failure no
// partial target is left behind. Errors from src are returned unchanged.
func (f *Finalizer) Finalize(ctx context.Context, src Source, target string) (string, error) {
	target, format := ResolveTarget(target)

	enc, err := f.EncoderFor(format)
	if err != nil {
		return "", apperr.Wrap(apperr.KindEncoding, "finalize", err)
	}

	if dir := filepath.Dir(target); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", apperr.Wrap(apperr.KindIO, "finalize", fmt.Errorf("failed to create output directory: %w", err))
		}
	}

	tmp, err := os.CreateTemp(f.tempDir, "voicegen-*.wav")
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "finalize", fmt.Errorf("failed to create temporary file: %w", err))
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", tmpPath).Msg("Failed to remove temporary waveform")
		}
	}()
	if err := tmp.Close(); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "finalize", err)
	}

	if err := src.WriteWAV(ctx, tmpPath); err != nil {
		return "", err
	}

	partial := target + ".partial"
	if err := enc.Encode(ctx, tmpPath, partial); err != nil {
		os.Remove(partial)
		return "", apperr.Wrap(apperr.KindEncoding, "finalize", err)
	}
	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return "", apperr.Wrap(apperr.KindIO, "finalize", fmt.Errorf("failed to move output into place: %w", err))
	}

	log.Debug().Str("output", target).Str("format", format).Msg("Audio finalized")
	return target, nil
}
