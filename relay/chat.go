package relay

import (
	"context"
	"strings"
	"time"

	"persona-relay/metrics"
	"persona-relay/models"

	"github.com/apex/log"
)

// Role is the provider-neutral speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation sent to a generation provider.
type Turn struct {
	Role Role
	Text string
}

// GenerateRequest is what a chat adapter receives. The adapter decides whether
// Persona travels as a system instruction or as a leading user turn.
type GenerateRequest struct {
	Persona string
	Turns   []Turn
}

// ChatProvider is a text-generation vendor.
type ChatProvider interface {
	Name() string
	// Configured reports whether the credential is present. Relays check it
	// before doing anything else.
	Configured() bool
	// CredentialName is the setting to report when Configured is false.
	CredentialName() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type ChatRelay struct {
	provider ChatProvider
	persona  string
}

func NewChatRelay(provider ChatProvider, persona string) *ChatRelay {
	return &ChatRelay{
		provider: provider,
		persona:  strings.TrimSpace(persona),
	}
}

func (r *ChatRelay) ProviderName() string {
	return r.provider.Name()
}

// Ready returns the configuration error Reply would report, or nil.
func (r *ChatRelay) Ready() error {
	if !r.provider.Configured() {
		return ConfigurationError(r.provider.Name(), r.provider.CredentialName())
	}
	return nil
}

// Reply validates req, forwards it to the provider and returns the generated text.
func (r *ChatRelay) Reply(ctx context.Context, req models.ChatRequest) (string, error) {
	name := r.provider.Name()

	if !r.provider.Configured() {
		return "", r.fail(ConfigurationError(name, r.provider.CredentialName()))
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", r.fail(ValidationError("message must be a non-empty string"))
	}

	genReq := GenerateRequest{
		Persona: r.persona,
		Turns:   BuildTurns(req.History, message),
	}

	start := time.Now()
	text, err := r.provider.Generate(ctx, genReq)
	metrics.UpstreamDurationSeconds.WithLabelValues("chat", name).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", r.fail(classify(name, err))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", r.fail(MalformedResponseError(name, name+" returned no content", nil))
	}

	metrics.RelayRequestsTotal.WithLabelValues("chat", name, "success").Inc()
	log.WithFields(log.Fields{
		"provider":      name,
		"history_turns": len(req.History),
		"reply_chars":   len([]rune(text)),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Debug("chat.reply.success")

	return text, nil
}

func (r *ChatRelay) fail(err *Error) *Error {
	metrics.RelayRequestsTotal.WithLabelValues("chat", r.provider.Name(), err.Kind.String()).Inc()
	return err
}

// BuildTurns maps client history to provider-neutral turns, preserving order,
// and appends message as the final user turn.
func BuildTurns(history []models.ChatTurn, message string) []Turn {
	turns := make([]Turn, 0, len(history)+1)
	for _, h := range history {
		role := RoleAssistant
		if h.Role == string(RoleUser) {
			role = RoleUser
		}
		turns = append(turns, Turn{Role: role, Text: h.Text})
	}
	return append(turns, Turn{Role: RoleUser, Text: message})
}
