// Package onnxvits runs exported single-speaker VITS models locally with
// ONNX Runtime. A model id such as "tts_models/es/css10/vits" maps to the
// directory <models_dir>/tts_models/es/css10/vits, which must hold
// model.onnx and tokens.txt.
package onnxvits

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"

	"voicegen/internal/pkg/voicegen/audio"
	"voicegen/internal/pkg/voicegen/engine"
)

func init() {
	engine.Register("onnx", NewEngineLoader)
}

var (
	_ engine.Loader = (*Loader)(nil)
	_ engine.Handle = (*Engine)(nil)
)

const (
	modelFile  = "model.onnx"
	tokensFile = "tokens.txt"

	defaultNoiseScale  = 0.667
	defaultLengthScale = 1.0
	defaultNoiseScaleW = 0.8
)

var (
	inputNames  = []string{"x", "x_length", "noise_scale", "length_scale", "noise_scale_w"}
	outputNames = []string{"y"}
)

type Loader struct {
	modelsDir string
}

func NewLoader(modelsDir string) (*Loader, error) {
	if modelsDir == "" {
		return nil, fmt.Errorf("onnx: models directory must not be empty")
	}
	return &Loader{modelsDir: modelsDir}, nil
}

func NewEngineLoader(cfg engine.Config) (engine.Loader, error) {
	return NewLoader(cfg.ModelsDir)
}

// ModelDir returns where the files for modelID are expected.
func (l *Loader) ModelDir(modelID string) string {
	return filepath.Join(l.modelsDir, filepath.FromSlash(modelID))
}

func (l *Loader) Load(ctx context.Context, modelID string, device engine.Device) (engine.Handle, error) {
	dir := l.ModelDir(modelID)
	modelPath := filepath.Join(dir, modelFile)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx: model %s not found: %w", modelID, err)
	}

	tokenizer, err := NewTokenizer(filepath.Join(dir, tokensFile))
	if err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ensureEnvironment(); err != nil {
		return nil, err
	}

	meta := readMetadata(modelPath)
	tokenizer.SetAddBlank(meta.addBlank)

	opts, err := sessionOptions(device)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.Debug().
		Str("model", modelID).
		Int("sample_rate", meta.sampleRate).
		Bool("add_blank", meta.addBlank).
		Int("vocab", tokenizer.VocabSize()).
		Msg("ONNX model loaded")

	return &Engine{
		modelID:    modelID,
		session:    session,
		tokenizer:  tokenizer,
		sampleRate: meta.sampleRate,
	}, nil
}

// sessionOptions requests the accelerator for device. Failing to attach
// one is not fatal; the session then runs on the CPU.
func sessionOptions(device engine.Device) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	switch device {
	case engine.DeviceCUDA:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			log.Warn().Err(err).Msg("CUDA provider unavailable, using CPU")
			break
		}
		defer cudaOpts.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			log.Warn().Err(err).Msg("Failed to enable CUDA, using CPU")
		}
	case engine.DeviceMPS:
		if err := opts.AppendExecutionProviderCoreML(0); err != nil {
			log.Warn().Err(err).Msg("Failed to enable CoreML, using CPU")
		}
	}
	return opts, nil
}

type modelMetadata struct {
	sampleRate int
	addBlank   bool
}

func readMetadata(modelPath string) modelMetadata {
	meta := modelMetadata{sampleRate: audio.DefaultSampleRate}

	m, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		log.Debug().Err(err).Msg("No ONNX model metadata, using defaults")
		return meta
	}
	defer m.Destroy()

	if v, ok, err := m.LookupCustomMetadataMap("sample_rate"); err == nil && ok {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			meta.sampleRate = rate
		}
	}
	if v, ok, err := m.LookupCustomMetadataMap("add_blank"); err == nil && ok {
		meta.addBlank = v == "1" || v == "true"
	}
	return meta
}

type Engine struct {
	modelID    string
	session    *ort.DynamicAdvancedSession
	tokenizer  *Tokenizer
	sampleRate int
}

// Synthesize ignores ReferencePath and Language; VITS checkpoints here are
// single speaker and single language.
func (e *Engine) Synthesize(ctx context.Context, in engine.Input, outPath string) error {
	tokens := e.tokenizer.Encode(cleanText(in.Text))
	if len(tokens) == 0 {
		return fmt.Errorf("failed to tokenize text")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	xTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(tokens))), tokens)
	if err != nil {
		return fmt.Errorf("failed to create x tensor: %w", err)
	}
	defer xTensor.Destroy()

	lengthTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(len(tokens))})
	if err != nil {
		return fmt.Errorf("failed to create x_length tensor: %w", err)
	}
	defer lengthTensor.Destroy()

	scales := []float32{defaultNoiseScale, defaultLengthScale, defaultNoiseScaleW}
	inputs := []ort.Value{xTensor, lengthTensor}
	for _, s := range scales {
		tensor, err := ort.NewTensor(ort.NewShape(1), []float32{s})
		if err != nil {
			return fmt.Errorf("failed to create scale tensor: %w", err)
		}
		defer tensor.Destroy()
		inputs = append(inputs, tensor)
	}

	outputs := make([]ort.Value, 1)
	if err := e.session.Run(inputs, outputs); err != nil {
		return fmt.Errorf("failed to run inference: %w", err)
	}
	if outputs[0] == nil {
		return fmt.Errorf("no output from model")
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return fmt.Errorf("unexpected output tensor type")
	}

	samples := make([]float32, len(outputTensor.GetData()))
	copy(samples, outputTensor.GetData())

	return audio.NewAudioWithSampleRate(samples, e.sampleRate).SaveWAV(outPath)
}

func (e *Engine) Close() error {
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return err
		}
		e.session = nil
	}
	return nil
}
