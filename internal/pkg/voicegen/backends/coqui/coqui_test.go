package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicegen/internal/pkg/voicegen/audio"
	"voicegen/internal/pkg/voicegen/engine"
)

const (
	vitsModel = "tts_models/es/css10/vits"
	xttsModel = "tts_models/multilingual/multi-dataset/xtts_v2"
)

func testWAV(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, audio.WriteWAV(path, make([]int16, 2205), 22050))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func newStandardServer(t *testing.T, modelName string, gotText *string) *httptest.Server {
	wav := testWAV(t)
	mux := http.NewServeMux()
	mux.HandleFunc(detailsEndpoint, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detailsResponse{ModelName: modelName})
	})
	mux.HandleFunc(apiTTSEndpoint, func(w http.ResponseWriter, r *http.Request) {
		*gotText = r.URL.Query().Get("text")
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStandardSynthesis(t *testing.T) {
	var gotText string
	srv := newStandardServer(t, vitsModel, &gotText)

	l, err := New(srv.URL+"/", "")
	require.NoError(t, err)

	h, err := l.Load(context.Background(), vitsModel, engine.DeviceCPU)
	require.NoError(t, err)
	defer h.Close()

	out := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, h.Synthesize(context.Background(), engine.Input{Text: "Hola mundo"}, out))
	assert.Equal(t, "Hola mundo", gotText)

	a, err := audio.LoadWAV(out)
	require.NoError(t, err)
	assert.Equal(t, 22050, a.SampleRate)
}

func TestStandardLoadRejectsOtherModel(t *testing.T) {
	var gotText string
	srv := newStandardServer(t, "tts_models/en/ljspeech/tacotron2-DDC", &gotText)

	l, err := New(srv.URL, "")
	require.NoError(t, err)

	_, err = l.Load(context.Background(), vitsModel, engine.DeviceCPU)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tacotron2-DDC")
}

func TestXTTSSynthesis(t *testing.T) {
	wav := testWAV(t)
	var got ttsRequest
	mux := http.NewServeMux()
	mux.HandleFunc(studioSpeakersEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc(ttsEndpoint, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write(wav)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l, err := New("", srv.URL)
	require.NoError(t, err)

	h, err := l.Load(context.Background(), xttsModel, engine.DeviceMPS)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.wav")
	in := engine.Input{Text: "Bonjour", ReferencePath: "/clips/ana.wav", Language: "fr"}
	require.NoError(t, h.Synthesize(context.Background(), in, out))
	assert.Equal(t, ttsRequest{Text: "Bonjour", SpeakerWav: "/clips/ana.wav", Language: "fr"}, got)
	assert.FileExists(t, out)

	err = h.Synthesize(context.Background(), engine.Input{Text: "Bonjour"}, out)
	assert.Error(t, err)
}

func TestLoadWithoutServer(t *testing.T) {
	l, err := New("http://127.0.0.1:1", "")
	require.NoError(t, err)

	_, err = l.Load(context.Background(), xttsModel, engine.DeviceCPU)
	assert.Error(t, err)

	_, err = New("", "")
	assert.Error(t, err)
}

func TestSynthesisErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(detailsEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc(apiTTSEndpoint, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l, err := New(srv.URL, "")
	require.NoError(t, err)
	h, err := l.Load(context.Background(), vitsModel, engine.DeviceCPU)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.wav")
	err = h.Synthesize(context.Background(), engine.Input{Text: "Hola"}, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
	assert.NoFileExists(t, out)
}

func TestSynthesisRejectsNonWAV(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(detailsEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc(apiTTSEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l, err := New(srv.URL, "")
	require.NoError(t, err)
	h, err := l.Load(context.Background(), vitsModel, engine.DeviceCPU)
	require.NoError(t, err)

	err = h.Synthesize(context.Background(), engine.Input{Text: "Hola"}, filepath.Join(t.TempDir(), "out.wav"))
	assert.ErrorContains(t, err, "not a WAV")
}

func TestRegistered(t *testing.T) {
	assert.True(t, engine.IsRegistered("coqui"))
}
