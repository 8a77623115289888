package murf

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"persona-relay/relay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_ReturnsEncodedAudio(t *testing.T) {
	var got map[string]any
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/speech/generate", r.URL.Path)
		gotKey = r.Header.Get("api-key")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"audioFile":"https://murf.example/a.wav","encodedAudio":"UklGRg==","audioLengthInSeconds":1.2}`))
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "murf-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	out, err := c.Synthesize(context.Background(), relay.SynthesisRequest{
		Text:   "Hello there",
		Voice:  "en-US-ken",
		Format: "wav",
		Speed:  12.6,
	})

	require.NoError(t, err)
	assert.Equal(t, "UklGRg==", out.Base64)
	assert.Empty(t, out.Audio)
	assert.Equal(t, "wav", out.Format)

	assert.Equal(t, "murf-key", gotKey)
	assert.Equal(t, "en-US-ken", got["voiceId"])
	assert.Equal(t, "Hello there", got["text"])
	assert.Equal(t, "WAV", got["format"])
	assert.Equal(t, float64(13), got["rate"])
	assert.Equal(t, true, got["encodeAsBase64"])
}

func TestSynthesize_MissingEncodedAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"audioFile":"https://murf.example/a.mp3"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := c.Synthesize(context.Background(), relay.SynthesisRequest{Text: "abc", Format: "mp3"})

	assert.True(t, relay.IsKind(err, relay.KindMalformedResponse))
}

func TestSynthesize_UpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errorMessage":"Invalid api key"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := c.Synthesize(context.Background(), relay.SynthesisRequest{Text: "abc", Format: "mp3"})

	var re *relay.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, relay.KindUpstream, re.Kind)
	assert.Equal(t, http.StatusForbidden, re.HTTPStatus())
	assert.Equal(t, `{"errorMessage":"Invalid api key"}`, re.Detail)
}

func TestLimits(t *testing.T) {
	c := NewClient(Options{DefaultVoice: "en-UK-hazel"})
	l := c.Limits()

	assert.Equal(t, 3000, l.MaxTextLength)
	assert.Equal(t, -50.0, l.MinSpeed)
	assert.Equal(t, 50.0, l.MaxSpeed)
	assert.False(t, l.Sanitize)
	assert.Equal(t, "en-UK-hazel", l.DefaultVoice)
	assert.False(t, c.Configured())
	assert.Equal(t, "MURF_API_KEY", c.CredentialName())
}
