// Package bark is a client for a Bark synthesis sidecar.
//
// The sidecar wraps the Bark generation pipeline behind two endpoints:
//
//	POST /generate  {"text": ..., "history_prompt": ...}  -> 16-bit PCM WAV
//	POST /device    {"device": ..., "modules": [...]}     -> 204 / 200
//
// Text is forwarded byte for byte; inline tags such as "[laughter]" are
// interpreted by Bark itself.
package bark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicegen/internal/pkg/voicegen/audio"
	"voicegen/internal/pkg/voicegen/engine"
)

func init() {
	engine.RegisterTagAware("bark", NewEngineProvider)
}

var (
	_ engine.TagAwareProvider = (*Provider)(nil)
	_ engine.SubmodulePlacer  = (*Provider)(nil)
)

const (
	defaultTimeout   = 10 * time.Minute
	generateEndpoint = "/generate"
	deviceEndpoint   = "/device"
	errBodyLimit     = 512
)

// Submodules are the Bark stages the sidecar can relocate.
var Submodules = []string{"semantic", "coarse", "fine"}

type Provider struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Provider)

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("bark: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func NewEngineProvider(cfg engine.Config) (engine.TagAwareProvider, error) {
	return New(cfg.BarkURL, WithTimeout(cfg.HTTPTimeout))
}

type generateRequest struct {
	Text          string `json:"text"`
	HistoryPrompt string `json:"history_prompt,omitempty"`
}

type deviceRequest struct {
	Device  string   `json:"device"`
	Modules []string `json:"modules"`
}

// Generate synthesizes text with the given voice preset
// (e.g. "v2/es_speaker_2").
func (p *Provider) Generate(ctx context.Context, text, voicePreset string) (*audio.Audio, error) {
	body, err := p.post(ctx, generateEndpoint, generateRequest{Text: text, HistoryPrompt: voicePreset}, "audio/wav")
	if err != nil {
		return nil, err
	}
	a, err := audio.ReadWAV(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bark: decode waveform: %w", err)
	}
	if a.SampleRate <= 0 {
		return nil, errors.New("bark: response declares no sample rate")
	}
	return a, nil
}

// PlaceSubmodules asks the sidecar to move every Bark stage to device.
func (p *Provider) PlaceSubmodules(ctx context.Context, device engine.Device) error {
	_, err := p.post(ctx, deviceEndpoint, deviceRequest{Device: string(device), Modules: Submodules}, "application/json")
	return err
}

func (p *Provider) post(ctx context.Context, endpoint string, payload any, accept string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bark: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bark: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bark: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return nil, fmt.Errorf("bark: POST %s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bark: read response: %w", err)
	}
	return body, nil
}
