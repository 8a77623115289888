package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPersona is prepended to every chat request.
const DefaultPersona = `Bạn là một cô gái dịu dàng, thanh lịch,
Sử dụng từ ngữ tinh tế, trả lời không quá dài nhưng đủ để cuộc trò chuyện không bị mất cảm giác.`

// Config holds all configuration for the relay service
type Config struct {
	// Server configuration
	Port           string
	LogLevel       string
	LogFormat      string
	AllowedOrigins string
	StaticDir      string

	// Chat configuration
	ChatProvider        string
	PersonaPrompt       string
	ChatTemperature     float64
	ChatMaxOutputTokens int

	// Gemini configuration
	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	GeminiPersonaMode string

	// OpenAI-compatible configuration
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// FPT.AI configuration
	FPTAPIKey       string
	FPTBaseURL      string
	FPTDefaultVoice string
	FPTPollInterval time.Duration
	FPTPollAttempts int

	// Murf configuration
	MurfAPIKey       string
	MurfBaseURL      string
	MurfDefaultVoice string

	// Outbound HTTP
	UpstreamTimeout time.Duration

	// Rate limiting, zero disables it
	RateLimitPerMinute int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		StaticDir:      getEnv("STATIC_DIR", "public"),

		ChatProvider:        strings.ToLower(getEnv("CHAT_PROVIDER", "gemini")),
		PersonaPrompt:       getEnv("PERSONA_PROMPT", DefaultPersona),
		ChatTemperature:     getFloatEnv("CHAT_TEMPERATURE", 0.7),
		ChatMaxOutputTokens: getIntEnv("CHAT_MAX_OUTPUT_TOKENS", 1024),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiPersonaMode: strings.ToLower(getEnv("GEMINI_PERSONA_MODE", "context")),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		FPTAPIKey:       getEnv("FPT_API_KEY", ""),
		FPTBaseURL:      getEnv("FPT_BASE_URL", "https://api.fpt.ai"),
		FPTDefaultVoice: getEnv("FPT_DEFAULT_VOICE", "linhsan"),
		FPTPollInterval: getDurationEnv("FPT_POLL_INTERVAL", time.Second),
		FPTPollAttempts: getIntEnv("FPT_POLL_ATTEMPTS", 15),

		MurfAPIKey:       getEnv("MURF_API_KEY", ""),
		MurfBaseURL:      getEnv("MURF_BASE_URL", "https://api.murf.ai"),
		MurfDefaultVoice: getEnv("MURF_DEFAULT_VOICE", "en-US-natalie"),

		UpstreamTimeout: getDurationEnv("UPSTREAM_TIMEOUT", 60*time.Second),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 0),
	}
}

// MissingCredentials lists the provider keys that are not set. Endpoints
// backed by these providers answer with a configuration error.
func (c *Config) MissingCredentials() []string {
	var missing []string
	switch c.ChatProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		if c.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	}
	if c.FPTAPIKey == "" {
		missing = append(missing, "FPT_API_KEY")
	}
	if c.MurfAPIKey == "" {
		missing = append(missing, "MURF_API_KEY")
	}
	return missing
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
