package openai

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"persona-relay/relay"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = "gpt-4o-mini"

	providerName = "OpenAI"
)

type Options struct {
	APIKey string
	Model  string
	// BaseURL points at any OpenAI-compatible server, including the /v1 suffix.
	BaseURL     string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// Client is a chat adapter for OpenAI-compatible chat completion APIs.
type Client struct {
	client      *goopenai.Client
	apiKey      string
	model       string
	temperature float32
	maxTokens   int
}

func NewClient(opts Options) *Client {
	apiKey := strings.TrimSpace(opts.APIKey)
	cfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	var doer goopenai.HTTPDoer = http.DefaultClient
	if opts.HTTPClient != nil {
		doer = opts.HTTPClient
	}
	cfg.HTTPClient = errorBodyRecorder{next: doer}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:      goopenai.NewClientWithConfig(cfg),
		apiKey:      apiKey,
		model:       model,
		temperature: float32(opts.Temperature),
		maxTokens:   opts.MaxTokens,
	}
}

func (c *Client) Name() string           { return providerName }
func (c *Client) Configured() bool       { return c != nil && c.apiKey != "" }
func (c *Client) CredentialName() string { return "OPENAI_API_KEY" }

// convertMessages puts the persona in a system message ahead of the turns.
func (c *Client) convertMessages(req relay.GenerateRequest) []goopenai.ChatCompletionMessage {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Turns)+1)
	if req.Persona != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.Persona,
		})
	}
	for _, t := range req.Turns {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    convertRole(t.Role),
			Content: t.Text,
		})
	}
	return messages
}

func convertRole(role relay.Role) string {
	if role == relay.RoleUser {
		return goopenai.ChatMessageRoleUser
	}
	return goopenai.ChatMessageRoleAssistant
}

func (c *Client) Generate(ctx context.Context, req relay.GenerateRequest) (string, error) {
	rec := &recordedBody{}
	ctx = context.WithValue(ctx, recordedBodyKey{}, rec)

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.convertMessages(req),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", convertError(err, rec.body)
	}

	if len(resp.Choices) == 0 {
		return "", relay.MalformedResponseError(providerName, "OpenAI returned no choices", resp)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", relay.MalformedResponseError(providerName, "OpenAI returned no content", resp)
	}
	return text, nil
}

// convertError keeps the HTTP status and raw body of API errors; everything
// else is a transport failure and is classified by the relay.
func convertError(err error, rawBody string) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		if rawBody == "" {
			rawBody = apiErr.Message
		}
		return relay.UpstreamStatusError(providerName, apiErr.HTTPStatusCode, rawBody)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		if len(reqErr.Body) > 0 {
			rawBody = string(reqErr.Body)
		}
		return relay.UpstreamStatusError(providerName, reqErr.HTTPStatusCode, rawBody)
	}
	return err
}

type recordedBodyKey struct{}

type recordedBody struct {
	body string
}

// errorBodyRecorder copies non-2xx response bodies into the recordedBody
// carried by the request context. go-openai decodes them into APIError and
// drops the original bytes.
type errorBodyRecorder struct {
	next goopenai.HTTPDoer
}

func (d errorBodyRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req)
	if err != nil || resp.StatusCode < 400 {
		return resp, err
	}
	rec, ok := req.Context().Value(recordedBodyKey{}).(*recordedBody)
	if !ok {
		return resp, nil
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	rec.body = string(body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
