// Package fpt talks to the FPT.AI text-to-speech v5 API. Synthesis is
// asynchronous: the first call returns a link that starts serving the audio
// file once the job finishes.
package fpt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"persona-relay/relay"

	"github.com/apex/log"
	"github.com/bytedance/sonic"
)

const (
	DefaultBaseURL      = "https://api.fpt.ai"
	DefaultVoice        = "linhsan"
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 15

	providerName = "FPT"
	maxAudioSize = 32 << 20
)

type Options struct {
	APIKey       string
	BaseURL      string
	DefaultVoice string
	PollInterval time.Duration
	PollAttempts int
	HTTPClient   *http.Client
}

type Client struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	pollInterval time.Duration
	pollAttempts int
	maxAudio     int64
	httpClient   *http.Client
}

func NewClient(opts Options) *Client {
	c := &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		defaultVoice: strings.TrimSpace(opts.DefaultVoice),
		pollInterval: opts.PollInterval,
		pollAttempts: opts.PollAttempts,
		maxAudio:     maxAudioSize,
		httpClient:   opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.defaultVoice == "" {
		c.defaultVoice = DefaultVoice
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.pollAttempts <= 0 {
		c.pollAttempts = DefaultPollAttempts
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

func (c *Client) Name() string           { return providerName }
func (c *Client) Configured() bool       { return c != nil && c.apiKey != "" }
func (c *Client) CredentialName() string { return "FPT_API_KEY" }

func (c *Client) Limits() relay.SpeechLimits {
	return relay.SpeechLimits{
		MaxTextLength: 5000,
		MinTextLength: 3,
		MinSpeed:      -3,
		MaxSpeed:      3,
		DefaultSpeed:  0,
		Sanitize:      true,
		DefaultVoice:  c.defaultVoice,
	}
}

// jobResponse is the v5 reply. Error is a pointer so a missing field can be
// told apart from the success code 0.
type jobResponse struct {
	Error     *int   `json:"error"`
	Async     string `json:"async"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// Synthesize submits the text and waits for the audio file behind the async link.
func (c *Client) Synthesize(ctx context.Context, req relay.SynthesisRequest) (*relay.Synthesis, error) {
	job, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	audio, err := c.fetchAudio(ctx, job.Async)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"request_id": job.RequestID,
		"bytes":      len(audio),
	}).Debug("fpt.audio.ready")

	return &relay.Synthesis{Audio: audio, Format: req.Format}, nil
}

func (c *Client) submit(ctx context.Context, req relay.SynthesisRequest) (*jobResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/hmi/tts/v5", strings.NewReader(req.Text))
	if err != nil {
		return nil, fmt.Errorf("create fpt request: %w", err)
	}
	httpReq.Header.Set("api-key", c.apiKey)
	httpReq.Header.Set("voice", req.Voice)
	httpReq.Header.Set("speed", strconv.FormatFloat(req.Speed, 'f', -1, 64))
	httpReq.Header.Set("format", req.Format)
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read fpt response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, relay.UpstreamStatusError(providerName, resp.StatusCode, string(body))
	}

	var job jobResponse
	if err := sonic.Unmarshal(body, &job); err != nil || job.Error == nil {
		return nil, relay.MalformedResponseError(providerName, "FPT returned no error code", string(body))
	}
	if *job.Error != 0 {
		detail := any(job.Message)
		if job.Message == "" {
			detail = string(body)
		}
		return nil, relay.UpstreamFailure(providerName, http.StatusBadGateway, "FPT TTS error", detail, nil)
	}
	if strings.TrimSpace(job.Async) == "" {
		return nil, relay.MalformedResponseError(providerName, "FPT returned no audio link", string(body))
	}
	return &job, nil
}

// fetchAudio polls the async link. The file answers 404 until the job is done.
func (c *Client) fetchAudio(ctx context.Context, link string) ([]byte, error) {
	var lastStatus int
	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		audio, status, err := c.get(ctx, link)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK && len(audio) > 0 {
			return audio, nil
		}
		lastStatus = status

		if attempt == c.pollAttempts {
			break
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, relay.UpstreamFailure(
		providerName,
		http.StatusGatewayTimeout,
		"FPT audio not ready",
		fmt.Sprintf("audio link still answering %d after %d attempts", lastStatus, c.pollAttempts),
		nil,
	)
}

func (c *Client) get(ctx context.Context, link string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create fpt audio request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, resp.StatusCode, nil
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAudio+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read fpt audio: %w", err)
	}
	if int64(len(audio)) > c.maxAudio {
		return nil, 0, relay.MalformedResponseError(providerName, "FPT audio exceeds size limit",
			fmt.Sprintf("audio larger than %d bytes", c.maxAudio))
	}
	return audio, resp.StatusCode, nil
}
