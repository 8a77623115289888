package main

import (
	"net/http"
	"path/filepath"
	"strings"

	"persona-relay/config"
	"persona-relay/handlers"
	"persona-relay/metrics"
	"persona-relay/middleware"
	"persona-relay/providers/fpt"
	"persona-relay/providers/gemini"
	"persona-relay/providers/murf"
	"persona-relay/providers/openai"
	"persona-relay/relay"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EndPointHealth     = "/health"
	EndPointVersion    = "/version"
	EndPointMetrics    = "/metrics"
	EndPointChat       = "/api/chat"
	EndPointTTS        = "/api/tts"
	EndPointTTSActive  = "/api/tts/active"
	EndPointChatSocket = "/ws/chat"
)

// relays are the three relays the router serves.
type relays struct {
	chat      handlers.ChatRelay
	murf      handlers.SpeechRelay
	fptActive handlers.SpeechRelay
}

// newChatProvider picks the chat vendor named by CHAT_PROVIDER.
func newChatProvider(cfg *config.Config, httpClient *http.Client) relay.ChatProvider {
	switch cfg.ChatProvider {
	case "openai":
		return openai.NewClient(openai.Options{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			BaseURL:     cfg.OpenAIBaseURL,
			Temperature: cfg.ChatTemperature,
			MaxTokens:   cfg.ChatMaxOutputTokens,
			HTTPClient:  httpClient,
		})
	case "gemini", "":
	default:
		log.Warnf("Unknown CHAT_PROVIDER %q, using gemini", cfg.ChatProvider)
	}
	return gemini.NewClient(gemini.Options{
		APIKey:          cfg.GeminiAPIKey,
		Model:           cfg.GeminiModel,
		BaseURL:         cfg.GeminiBaseURL,
		PersonaMode:     gemini.PersonaMode(cfg.GeminiPersonaMode),
		Temperature:     cfg.ChatTemperature,
		MaxOutputTokens: cfg.ChatMaxOutputTokens,
		HTTPClient:      httpClient,
	})
}

func newRelays(cfg *config.Config, httpClient *http.Client) relays {
	return relays{
		chat: relay.NewChatRelay(newChatProvider(cfg, httpClient), cfg.PersonaPrompt),
		murf: relay.NewSpeechRelay(murf.NewClient(murf.Options{
			APIKey:       cfg.MurfAPIKey,
			BaseURL:      cfg.MurfBaseURL,
			DefaultVoice: cfg.MurfDefaultVoice,
			HTTPClient:   httpClient,
		})),
		fptActive: relay.NewSpeechRelay(fpt.NewClient(fpt.Options{
			APIKey:       cfg.FPTAPIKey,
			BaseURL:      cfg.FPTBaseURL,
			DefaultVoice: cfg.FPTDefaultVoice,
			PollInterval: cfg.FPTPollInterval,
			PollAttempts: cfg.FPTPollAttempts,
			HTTPClient:   httpClient,
		})),
	}
}

func setupRouter(cfg *config.Config, r relays) *gin.Engine {
	metrics.Register()

	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/ws/", EndPointMetrics})))

	router.GET(EndPointHealth, handlers.HealthCheck)
	router.GET(EndPointVersion, handlers.Version)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))

	if dir := strings.TrimSpace(cfg.StaticDir); dir != "" {
		router.StaticFile("/", filepath.Join(dir, "index.html"))
	}

	chatHandler := handlers.NewChatHandler(r.chat)
	murfHandler := handlers.NewSpeechHandler(r.murf)
	fptHandler := handlers.NewSpeechHandler(r.fptActive)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	rateLimited := router.Group("/")
	rateLimited.Use(limiter.Middleware())
	{
		rateLimited.POST(EndPointChat, chatHandler.Chat)
		rateLimited.POST(EndPointTTS, murfHandler.Speak)
		rateLimited.POST(EndPointTTSActive, fptHandler.Speak)
		rateLimited.GET(EndPointChatSocket, chatHandler.ChatSocket(handlers.NewUpgrader(cfg.AllowedOrigins), socketLimiter(limiter)))
	}

	return router
}

// socketLimiter keeps a disabled limiter a nil interface.
func socketLimiter(rl *middleware.RateLimiter) handlers.FrameLimiter {
	if rl == nil {
		return nil
	}
	return rl
}
