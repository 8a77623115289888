package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"persona-relay/relay"

	"github.com/bytedance/sonic"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"

	providerName = "Gemini"
	roleUser     = "user"
	roleModel    = "model"
)

// PersonaMode selects where the persona preamble is placed in the request.
type PersonaMode string

const (
	// PersonaInContext sends the persona as a leading user turn in contents.
	PersonaInContext PersonaMode = "context"
	// PersonaSystemInstruction sends the persona in system_instruction.
	PersonaSystemInstruction PersonaMode = "system"
)

type Options struct {
	APIKey          string
	Model           string
	BaseURL         string
	PersonaMode     PersonaMode
	Temperature     float64
	MaxOutputTokens int
	HTTPClient      *http.Client
}

type Client struct {
	apiKey          string
	model           string
	baseURL         string
	personaMode     PersonaMode
	temperature     float64
	maxOutputTokens int
	httpClient      *http.Client
}

func NewClient(opts Options) *Client {
	c := &Client{
		apiKey:          strings.TrimSpace(opts.APIKey),
		model:           strings.TrimSpace(opts.Model),
		baseURL:         strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		personaMode:     opts.PersonaMode,
		temperature:     opts.Temperature,
		maxOutputTokens: opts.MaxOutputTokens,
		httpClient:      opts.HTTPClient,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.personaMode != PersonaSystemInstruction {
		c.personaMode = PersonaInContext
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

func (c *Client) Name() string           { return providerName }
func (c *Client) Configured() bool       { return c != nil && c.apiKey != "" }
func (c *Client) CredentialName() string { return "GEMINI_API_KEY" }

type generateRequest struct {
	SystemInstruction *systemInstruction `json:"system_instruction,omitempty"`
	Contents          []content          `json:"contents"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// buildRequest lays out the conversation. In context mode the persona is the
// first user turn, otherwise it goes to system_instruction.
func (c *Client) buildRequest(req relay.GenerateRequest) generateRequest {
	out := generateRequest{
		Contents: make([]content, 0, len(req.Turns)+1),
		GenerationConfig: generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}

	if req.Persona != "" {
		if c.personaMode == PersonaSystemInstruction {
			out.SystemInstruction = &systemInstruction{Parts: []part{{Text: req.Persona}}}
		} else {
			out.Contents = append(out.Contents, content{Role: roleUser, Parts: []part{{Text: req.Persona}}})
		}
	}

	for _, t := range req.Turns {
		role := roleModel
		if t.Role == relay.RoleUser {
			role = roleUser
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: t.Text}}})
	}
	return out
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
}

// Generate calls generateContent once and returns the first candidate's text.
func (c *Client) Generate(ctx context.Context, req relay.GenerateRequest) (string, error) {
	payload, err := sonic.Marshal(c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", redactKey(err, c.apiKey)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", relay.UpstreamStatusError(providerName, resp.StatusCode, string(body))
	}

	var parsed generateResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return "", relay.MalformedResponseError(providerName, "Gemini returned an unreadable response", string(body))
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", relay.MalformedResponseError(providerName, "Gemini returned no content", rawJSON(body))
	}
	text := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", relay.MalformedResponseError(providerName, "Gemini returned no content", rawJSON(body))
	}
	return text, nil
}

// rawJSON keeps the provider body as JSON in the error envelope instead of a
// quoted string.
func rawJSON(body []byte) any {
	var v any
	if err := sonic.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

// redactKey strips the api key from transport errors, which embed the URL.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED"))
}
