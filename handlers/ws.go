package handlers

import (
	"net/http"
	"strings"
	"time"

	"persona-relay/metrics"
	"persona-relay/middleware"
	"persona-relay/models"

	"github.com/apex/log"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// NewUpgrader accepts websocket handshakes from allowedOrigins ("*" or a
// comma separated list). Requests without an Origin header are accepted.
func NewUpgrader(allowedOrigins string) websocket.Upgrader {
	trimmed := strings.TrimSpace(allowedOrigins)
	wildcard := trimmed == "" || trimmed == "*"
	allowed := make(map[string]bool)
	for _, o := range strings.Split(trimmed, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = true
		}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return wildcard || origin == "" || allowed[origin]
		},
	}
}

// FrameLimiter throttles websocket frames per client key.
type FrameLimiter interface {
	Allow(key string) bool
	RetryAfter() int
}

// ChatSocket handles GET /ws/chat. Each text frame is a chat request and each
// reply frame is either {text} or {error, detail, status}. Failed turns keep
// the connection open. Every frame spends a limiter token; a nil limiter
// allows all frames.
func (h *ChatHandler) ChatSocket(upgrader websocket.Upgrader, limiter FrameLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warnf("Failed to upgrade connection to WebSocket: %v", err)
			return
		}
		defer conn.Close()

		requestID := c.GetString(middleware.ContextRequestID)
		clientIP := c.ClientIP()
		log.WithField("request_id", requestID).Info("ws.chat.connected")

		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		done := make(chan struct{})
		defer close(done)
		go keepAlive(conn, done)

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("WebSocket read error: %v", err)
				}
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			if msgType != websocket.TextMessage {
				continue
			}

			var reply models.WSChatReply
			if limiter != nil && !limiter.Allow(clientIP) {
				metrics.RateLimitedTotal.Inc()
				log.WithFields(log.Fields{"client_ip": clientIP, "request_id": requestID}).Warn("ws.chat.rate_limited")
				reply = models.WSChatReply{
					Error:  "Rate limit exceeded",
					Detail: gin.H{"retry_after": limiter.RetryAfter()},
					Status: http.StatusTooManyRequests,
				}
			} else {
				reply = h.socketTurn(c, requestID, data)
			}
			if err := writeFrame(conn, reply); err != nil {
				log.Warnf("WebSocket write error: %v", err)
				break
			}
		}

		log.WithField("request_id", requestID).Info("ws.chat.closed")
	}
}

func (h *ChatHandler) socketTurn(c *gin.Context, requestID string, data []byte) models.WSChatReply {
	if err := h.relay.Ready(); err != nil {
		return h.socketError(requestID, err)
	}

	var req models.ChatRequest
	if err := sonic.Unmarshal(data, &req); err != nil {
		return models.WSChatReply{Error: "Invalid request format", Status: http.StatusBadRequest}
	}

	text, err := h.relay.Reply(c.Request.Context(), req)
	if err != nil {
		return h.socketError(requestID, err)
	}
	return models.WSChatReply{Text: text}
}

func (h *ChatHandler) socketError(requestID string, err error) models.WSChatReply {
	status, body := toEnvelope(err)
	logRelayError(requestID, "chat", h.relay.ProviderName(), status, err)
	return models.WSChatReply{Error: body.Error, Detail: body.Detail, Status: status}
}

// writeFrame is only called from the read loop; pings use WriteControl,
// which gorilla allows concurrently with one other writer.
func writeFrame(conn *websocket.Conn, reply models.WSChatReply) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(reply)
}

func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
