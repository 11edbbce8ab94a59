package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// Encoder transcodes a WAV file into a delivery format.
type Encoder interface {
	Encode(ctx context.Context, wavPath, dst string) error
}

type EncoderFunc func(ctx context.Context, wavPath, dst string) error

func (f EncoderFunc) Encode(ctx context.Context, wavPath, dst string) error {
	return f(ctx, wavPath, dst)
}

// Rates the shine encoder writes valid streams for. MPEG-2.5 rates and
// 16 kHz produce undecodable frames.
var mp3SampleRates = []int{22050, 24000, 32000, 44100, 48000}

const mp3FallbackRate = 44100

// MP3Encoder is a pure Go MP3 encoder. Input at any other rate is resampled
// to 44.1 kHz first.
type MP3Encoder struct{}

func (MP3Encoder) Encode(ctx context.Context, wavPath, dst string) (err error) {
	a, err := LoadWAV(wavPath)
	if err != nil {
		return fmt.Errorf("mp3: %w", err)
	}
	if len(a.Samples) == 0 {
		return fmt.Errorf("mp3: %s contains no samples", wavPath)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pcm := a.Int16()
	rate := a.SampleRate
	if !supportedMP3Rate(rate) {
		pcm = resampleMono(pcm, rate, mp3FallbackRate)
		rate = mp3FallbackRate
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("mp3: failed to create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("mp3: failed to close output: %w", cerr)
		}
	}()

	enc := mp3.NewEncoder(rate, NumChannels)
	if err := enc.Write(f, pcm); err != nil {
		return fmt.Errorf("mp3: encode: %w", err)
	}
	return nil
}

func supportedMP3Rate(rate int) bool {
	for _, r := range mp3SampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// WAVEncoder re-encodes the intermediate as 16-bit mono PCM.
type WAVEncoder struct{}

func (WAVEncoder) Encode(ctx context.Context, wavPath, dst string) error {
	a, err := LoadWAV(wavPath)
	if err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.SaveWAV(dst)
}

var ffmpegMuxers = map[string]string{
	"mp3":  "mp3",
	"wav":  "wav",
	"flac": "flac",
	"ogg":  "ogg",
	"opus": "opus",
	"m4a":  "ipod",
	"aac":  "adts",
}

// FFmpegEncoder shells out to ffmpeg for any format it can mux.
type FFmpegEncoder struct {
	Binary  string
	Format  string
	Bitrate string
}

func (e FFmpegEncoder) Encode(ctx context.Context, wavPath, dst string) error {
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	muxer, ok := ffmpegMuxers[e.Format]
	if !ok {
		return fmt.Errorf("ffmpeg: unsupported format %q", e.Format)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", wavPath}
	if e.Bitrate != "" && e.Format != "wav" && e.Format != "flac" {
		args = append(args, "-b:a", e.Bitrate)
	}
	args = append(args, "-f", muxer, dst)

	cmd := exec.CommandContext(ctx, bin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}
