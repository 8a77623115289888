package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"persona-relay/middleware"
	"persona-relay/models"
	"persona-relay/relay"
	"persona-relay/version"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// ChatRelay is the chat relay as seen by the HTTP layer.
type ChatRelay interface {
	ProviderName() string
	Ready() error
	Reply(ctx context.Context, req models.ChatRequest) (string, error)
}

// SpeechRelay is a speech relay as seen by the HTTP layer.
type SpeechRelay interface {
	ProviderName() string
	Ready() error
	Speak(ctx context.Context, req models.TTSRequest) (*models.TTSResponse, error)
}

type ChatHandler struct {
	relay ChatRelay
}

func NewChatHandler(r ChatRelay) *ChatHandler {
	return &ChatHandler{relay: r}
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	if err := h.relay.Ready(); err != nil {
		writeError(c, "chat", h.relay.ProviderName(), err)
		return
	}

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Invalid chat request body: %v", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request format"})
		return
	}

	text, err := h.relay.Reply(c.Request.Context(), req)
	if err != nil {
		writeError(c, "chat", h.relay.ProviderName(), err)
		return
	}

	c.JSON(http.StatusOK, models.ChatResponse{Text: text})
}

type SpeechHandler struct {
	relay SpeechRelay
}

func NewSpeechHandler(r SpeechRelay) *SpeechHandler {
	return &SpeechHandler{relay: r}
}

// Speak handles POST /api/tts and /api/tts/active
func (h *SpeechHandler) Speak(c *gin.Context) {
	if err := h.relay.Ready(); err != nil {
		writeError(c, "speech", h.relay.ProviderName(), err)
		return
	}

	var req models.TTSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Invalid speech request body: %v", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request format"})
		return
	}

	resp, err := h.relay.Speak(c.Request.Context(), req)
	if err != nil {
		writeError(c, "speech", h.relay.ProviderName(), err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HealthCheck returns the service health status
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   version.ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Version returns build metadata
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

// toEnvelope maps err to the status and body sent to the client.
func toEnvelope(err error) (int, models.ErrorResponse) {
	var re *relay.Error
	if errors.As(err, &re) {
		return re.HTTPStatus(), models.ErrorResponse{Error: re.Message, Detail: re.Detail}
	}
	return http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"}
}

func writeError(c *gin.Context, relayName, provider string, err error) {
	status, body := toEnvelope(err)
	logRelayError(c.GetString(middleware.ContextRequestID), relayName, provider, status, err)
	c.JSON(status, body)
}

func logRelayError(requestID, relayName, provider string, status int, err error) {
	entry := log.WithFields(log.Fields{
		"request_id": requestID,
		"relay":      relayName,
		"provider":   provider,
		"status":     status,
	}).WithError(err)

	var re *relay.Error
	switch {
	case errors.As(err, &re) && re.Kind == relay.KindValidation:
		entry.Warn(relayName + ".request.invalid")
	case errors.As(err, &re) && re.Kind == relay.KindConfiguration:
		entry.Error(relayName + ".provider.unconfigured")
	default:
		entry.Error(relayName + ".upstream.failed")
	}
}
