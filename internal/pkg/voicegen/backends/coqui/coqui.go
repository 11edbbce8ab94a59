// Package coqui drives locally running Coqui TTS servers over HTTP.
//
// Two server flavours are supported, chosen per model id:
//
//   - the standard Coqui TTS server (tts-server), which serves one model.
//     Synthesis is GET /api/tts; GET /details reports the served model.
//   - the XTTS v2 API server, used for reference-conditioned models.
//     Synthesis is POST /tts_to_audio/ with the reference clip path in
//     speaker_wav; GET /studio_speakers is used as a readiness probe.
//
// Both servers pick their compute device at start-up, so the device passed
// to Load is advisory only.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"voicegen/internal/pkg/voicegen/engine"
	"voicegen/internal/pkg/voicegen/registry"
)

func init() {
	engine.Register("coqui", NewEngineLoader)
}

var (
	_ engine.Loader = (*Loader)(nil)
	_ engine.Handle = (*Engine)(nil)
)

const (
	defaultTimeout         = 120 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// errBodyLimit bounds how much of an error response is quoted back.
	errBodyLimit = 512
)

type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

type Option func(*Loader)

func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		l.httpClient = c
	}
}

// Loader hands out engines bound to one model id. Conventional models go to
// the standard server, reference-conditioned models to the XTTS server.
type Loader struct {
	standardURL string
	xttsURL     string
	httpClient  *http.Client
}

// New creates a Loader. Either URL may be empty when the matching model
// family is not used.
func New(standardURL, xttsURL string, opts ...Option) (*Loader, error) {
	if standardURL == "" && xttsURL == "" {
		return nil, errors.New("coqui: at least one server URL is required")
	}
	l := &Loader{
		standardURL: strings.TrimRight(standardURL, "/"),
		xttsURL:     strings.TrimRight(xttsURL, "/"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

func NewEngineLoader(cfg engine.Config) (engine.Loader, error) {
	return New(cfg.CoquiURL, cfg.XTTSURL, WithTimeout(cfg.HTTPTimeout))
}

type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Load checks that the right server is up and, for the standard server,
// that it serves modelID.
func (l *Loader) Load(ctx context.Context, modelID string, device engine.Device) (engine.Handle, error) {
	mode := APIModeStandard
	base := l.standardURL
	if registry.Classify(modelID) == registry.ReferenceConditioned {
		mode = APIModeXTTS
		base = l.xttsURL
	}
	if base == "" {
		return nil, fmt.Errorf("coqui: no %s server configured for %s", mode, modelID)
	}

	log.Debug().
		Str("model", modelID).
		Str("mode", string(mode)).
		Str("device", string(device)).
		Msg("Device selection is made by the Coqui server")

	switch mode {
	case APIModeXTTS:
		if err := l.ping(ctx, base+studioSpeakersEndpoint); err != nil {
			return nil, err
		}
	default:
		details, err := l.details(ctx, base)
		if err != nil {
			return nil, err
		}
		if details.ModelName != "" && !strings.EqualFold(details.ModelName, modelID) {
			return nil, fmt.Errorf("coqui: server at %s serves %q, not %q", base, details.ModelName, modelID)
		}
	}

	return &Engine{
		modelID:    modelID,
		serverURL:  base,
		mode:       mode,
		httpClient: l.httpClient,
	}, nil
}

func (l *Loader) ping(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create probe request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}
	return nil
}

func (l *Loader) details(ctx context.Context, base string) (*detailsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create details request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var d detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}
	return &d, nil
}

// Engine is a model served by a Coqui server.
type Engine struct {
	modelID    string
	serverURL  string
	mode       APIMode
	httpClient *http.Client
}

// ttsRequest is the JSON body of POST /tts_to_audio/.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (e *Engine) Synthesize(ctx context.Context, in engine.Input, outPath string) error {
	var (
		req *http.Request
		err error
	)
	switch e.mode {
	case APIModeXTTS:
		req, err = e.xttsRequest(ctx, in)
	default:
		req, err = e.standardRequest(ctx, in)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return fmt.Errorf("coqui: %s %s returned status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("coqui: read WAV response: %w", err)
	}
	if !isWAV(wav) {
		return fmt.Errorf("coqui: response is not a WAV file (%d bytes)", len(wav))
	}
	if err := os.WriteFile(outPath, wav, 0o644); err != nil {
		return fmt.Errorf("coqui: write waveform: %w", err)
	}
	return nil
}

func (e *Engine) xttsRequest(ctx context.Context, in engine.Input) (*http.Request, error) {
	if in.ReferencePath == "" {
		return nil, errors.New("coqui: XTTS synthesis requires a reference clip")
	}
	data, err := json.Marshal(ttsRequest{
		Text:       in.Text,
		SpeakerWav: in.ReferencePath,
		Language:   in.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (e *Engine) standardRequest(ctx context.Context, in engine.Input) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", in.Text)
	if in.Language != "" {
		params.Set("language_id", in.Language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

func (e *Engine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}
