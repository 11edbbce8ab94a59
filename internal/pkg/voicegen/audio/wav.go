package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	DefaultSampleRate = 22050
	NumChannels       = 1
	BitsPerSample     = 16
	pcmFormat         = 1
)

// Audio is a mono waveform with samples in [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
}

func NewAudio(samples []float32) *Audio {
	return NewAudioWithSampleRate(samples, DefaultSampleRate)
}

func NewAudioWithSampleRate(samples []float32, sampleRate int) *Audio {
	return &Audio{
		Samples:    samples,
		SampleRate: sampleRate,
	}
}

func NewAudioFromInt16(samples []int16, sampleRate int) *Audio {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / math.MaxInt16
	}
	return NewAudioWithSampleRate(out, sampleRate)
}

// Int16 returns the samples as clamped 16-bit PCM.
func (a *Audio) Int16() []int16 {
	out := make([]int16, len(a.Samples))
	for i, sample := range a.Samples {
		clamped := sample
		if clamped > 1.0 {
			clamped = 1.0
		} else if clamped < -1.0 {
			clamped = -1.0
		}
		out[i] = int16(clamped * math.MaxInt16)
	}
	return out
}

func (a *Audio) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// SaveWAV writes a as a mono 16-bit PCM WAV file. A partially written file is
// removed on failure.
func (a *Audio) SaveWAV(path string) error {
	return WriteWAV(path, a.Int16(), a.SampleRate)
}

// WriteWAV writes 16-bit mono PCM samples to path.
func WriteWAV(path string, samples []int16, sampleRate int) (err error) {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, sampleRate, BitsPerSample, NumChannels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: NumChannels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish WAV: %w", err)
	}
	return nil
}

// LoadWAV reads a PCM WAV file. Multi-channel input is mixed down to mono.
func LoadWAV(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return ReadWAV(f)
}

func ReadWAV(r io.ReadSeeker) (*Audio, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = BitsPerSample
	}
	scale := float32(math.Pow(2, float64(bitDepth-1)))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return NewAudioWithSampleRate(samples, int(dec.SampleRate)), nil
}

// ReadWAVInfo returns the sample rate of a WAV file without decoding it.
func ReadWAVInfo(path string) (sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("not a valid WAV file")
	}
	return int(dec.SampleRate), nil
}

// resampleMono resamples using linear interpolation.
func resampleMono(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
