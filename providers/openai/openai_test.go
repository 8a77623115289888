package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"persona-relay/relay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		APIKey:      "sk-test",
		BaseURL:     srv.URL + "/v1",
		Temperature: 0.7,
		MaxTokens:   256,
		HTTPClient:  srv.Client(),
	})
}

func TestGenerate_Success(t *testing.T) {
	var got capturedRequest
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" Chào bạn! "},"finish_reason":"stop"}]}`))
	})

	text, err := c.Generate(context.Background(), relay.GenerateRequest{
		Persona: "gentle",
		Turns: []relay.Turn{
			{Role: relay.RoleUser, Text: "a"},
			{Role: relay.RoleAssistant, Text: "b"},
			{Role: relay.RoleUser, Text: "c"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Chào bạn!", text)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "gentle", got.Messages[0].Content)
	assert.Equal(t, []string{"user", "assistant", "user"}, []string{got.Messages[1].Role, got.Messages[2].Role, got.Messages[3].Role})
}

func TestGenerate_APIErrorKeepsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := c.Generate(context.Background(), relay.GenerateRequest{Turns: []relay.Turn{{Role: relay.RoleUser, Text: "hi"}}})

	var re *relay.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, relay.KindUpstream, re.Kind)
	assert.Equal(t, http.StatusUnauthorized, re.HTTPStatus())
	detail, ok := re.Detail.(string)
	require.True(t, ok)
	assert.JSONEq(t, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`, detail)
}

func TestGenerate_NonJSONErrorKeepsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream proxy error"))
	})

	_, err := c.Generate(context.Background(), relay.GenerateRequest{Turns: []relay.Turn{{Role: relay.RoleUser, Text: "hi"}}})

	var re *relay.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadGateway, re.HTTPStatus())
	assert.Equal(t, "upstream proxy error", re.Detail)
}

func TestGenerate_NoChoicesIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})

	_, err := c.Generate(context.Background(), relay.GenerateRequest{Turns: []relay.Turn{{Role: relay.RoleUser, Text: "hi"}}})

	assert.True(t, relay.IsKind(err, relay.KindMalformedResponse))
}

func TestConvertMessages_NoPersona(t *testing.T) {
	c := NewClient(Options{APIKey: "k"})

	msgs := c.convertMessages(relay.GenerateRequest{Turns: []relay.Turn{{Role: relay.RoleUser, Text: "hi"}}})

	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	assert.False(t, NewClient(Options{}).Configured())
}
