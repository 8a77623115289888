package murf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"persona-relay/relay"

	"github.com/bytedance/sonic"
)

const (
	DefaultBaseURL = "https://api.murf.ai"
	DefaultVoice   = "en-US-natalie"

	providerName = "Murf"
)

type Options struct {
	APIKey       string
	BaseURL      string
	DefaultVoice string
	HTTPClient   *http.Client
}

// Client calls the synchronous generate endpoint and asks for the audio
// inline as base64.
type Client struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	httpClient   *http.Client
}

func NewClient(opts Options) *Client {
	c := &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		defaultVoice: strings.TrimSpace(opts.DefaultVoice),
		httpClient:   opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.defaultVoice == "" {
		c.defaultVoice = DefaultVoice
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

func (c *Client) Name() string           { return providerName }
func (c *Client) Configured() bool       { return c != nil && c.apiKey != "" }
func (c *Client) CredentialName() string { return "MURF_API_KEY" }

// Limits uses Murf's rate scale (-50..50) as the speed range.
func (c *Client) Limits() relay.SpeechLimits {
	return relay.SpeechLimits{
		MaxTextLength: 3000,
		MinTextLength: 3,
		MinSpeed:      -50,
		MaxSpeed:      50,
		DefaultSpeed:  0,
		Sanitize:      false,
		DefaultVoice:  c.defaultVoice,
	}
}

type generateRequest struct {
	VoiceID        string `json:"voiceId"`
	Text           string `json:"text"`
	Format         string `json:"format"`
	Rate           int    `json:"rate"`
	EncodeAsBase64 bool   `json:"encodeAsBase64"`
}

type generateResponse struct {
	AudioFile            string  `json:"audioFile"`
	EncodedAudio         string  `json:"encodedAudio"`
	AudioLengthInSeconds float64 `json:"audioLengthInSeconds"`
}

func (c *Client) Synthesize(ctx context.Context, req relay.SynthesisRequest) (*relay.Synthesis, error) {
	payload, err := sonic.Marshal(generateRequest{
		VoiceID:        req.Voice,
		Text:           req.Text,
		Format:         strings.ToUpper(req.Format),
		Rate:           int(math.Round(req.Speed)),
		EncodeAsBase64: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal murf request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create murf request: %w", err)
	}
	httpReq.Header.Set("api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Inline audio can be large; the limit is sized for the 3000 char cap.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 48<<20))
	if err != nil {
		return nil, fmt.Errorf("read murf response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, relay.UpstreamStatusError(providerName, resp.StatusCode, string(body))
	}

	var parsed generateResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, relay.MalformedResponseError(providerName, "Murf returned an unreadable response", truncate(string(body), 2048))
	}
	if parsed.EncodedAudio == "" {
		return nil, relay.MalformedResponseError(providerName, "Murf returned no encoded audio", truncate(string(body), 2048))
	}

	return &relay.Synthesis{Base64: parsed.EncodedAudio, Format: req.Format}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
