package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"persona-relay/metrics"
	"persona-relay/models"

	"github.com/apex/log"
)

const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

// SpeechLimits are the provider-defined bounds applied before synthesis.
type SpeechLimits struct {
	MaxTextLength int
	MinTextLength int
	MinSpeed      float64
	MaxSpeed      float64
	DefaultSpeed  float64
	Sanitize      bool
	DefaultVoice  string
}

type SynthesisRequest struct {
	Text   string
	Voice  string
	Format string
	Speed  float64
}

// Synthesis is a provider result. Adapters fill Audio with raw bytes or
// Base64 when the vendor already returns encoded audio.
type Synthesis struct {
	Audio  []byte
	Base64 string
	Format string
}

// SpeechProvider is a text-to-speech vendor.
type SpeechProvider interface {
	Name() string
	Configured() bool
	CredentialName() string
	Limits() SpeechLimits
	Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error)
}

type SpeechRelay struct {
	provider SpeechProvider
}

func NewSpeechRelay(provider SpeechProvider) *SpeechRelay {
	return &SpeechRelay{provider: provider}
}

func (r *SpeechRelay) ProviderName() string {
	return r.provider.Name()
}

// Ready returns the configuration error Speak would report, or nil.
func (r *SpeechRelay) Ready() error {
	if !r.provider.Configured() {
		return ConfigurationError(r.provider.Name(), r.provider.CredentialName())
	}
	return nil
}

// Speak validates and cleans req, synthesizes it and returns base64 audio.
func (r *SpeechRelay) Speak(ctx context.Context, req models.TTSRequest) (*models.TTSResponse, error) {
	name := r.provider.Name()

	if !r.provider.Configured() {
		return nil, r.fail(ConfigurationError(name, r.provider.CredentialName()))
	}

	if req.Text == "" {
		return nil, r.fail(ValidationError("text must be a non-empty string"))
	}

	limits := r.provider.Limits()
	synthReq, err := PrepareSynthesis(req, limits)
	if err != nil {
		return nil, r.fail(err)
	}

	start := time.Now()
	out, synthErr := r.provider.Synthesize(ctx, synthReq)
	metrics.UpstreamDurationSeconds.WithLabelValues("speech", name).Observe(time.Since(start).Seconds())
	if synthErr != nil {
		return nil, r.fail(classify(name, synthErr))
	}
	if out == nil || (len(out.Audio) == 0 && out.Base64 == "") {
		return nil, r.fail(MalformedResponseError(name, name+" returned no audio", nil))
	}

	encoded := out.Base64
	if encoded == "" {
		encoded = base64.StdEncoding.EncodeToString(out.Audio)
	}
	format := out.Format
	if format == "" {
		format = synthReq.Format
	}

	metrics.RelayRequestsTotal.WithLabelValues("speech", name, "success").Inc()
	metrics.SpeechCharactersTotal.WithLabelValues(name).Add(float64(utf8.RuneCountInString(synthReq.Text)))
	log.WithFields(log.Fields{
		"provider":    name,
		"voice":       synthReq.Voice,
		"format":      format,
		"speed":       synthReq.Speed,
		"chars":       utf8.RuneCountInString(synthReq.Text),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("speech.synthesize.success")

	return &models.TTSResponse{Audio: encoded, Format: format}, nil
}

func (r *SpeechRelay) fail(err *Error) *Error {
	metrics.RelayRequestsTotal.WithLabelValues("speech", r.provider.Name(), err.Kind.String()).Inc()
	return err
}

// PrepareSynthesis applies truncation, sanitization, the minimum length check
// and the speed/format/voice defaults.
func PrepareSynthesis(req models.TTSRequest, limits SpeechLimits) (SynthesisRequest, *Error) {
	text := strings.TrimSpace(truncateRunes(req.Text, limits.MaxTextLength))
	if limits.Sanitize {
		text = SanitizeSpeechText(text)
	}
	if utf8.RuneCountInString(text) < limits.MinTextLength {
		return SynthesisRequest{}, ValidationError(fmt.Sprintf("text must be at least %d characters", limits.MinTextLength))
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = strings.TrimSpace(req.VoiceID)
	}
	if voice == "" {
		voice = limits.DefaultVoice
	}

	return SynthesisRequest{
		Text:   text,
		Voice:  voice,
		Format: NormalizeFormat(req.Format),
		Speed:  ClampSpeed(req.Speed, limits),
	}, nil
}

// NormalizeFormat maps anything that is not wav to mp3.
func NormalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), FormatWAV) {
		return FormatWAV
	}
	return FormatMP3
}

// ClampSpeed coerces a client-supplied speed to a number inside the provider
// range. Values that are not numeric fall back to the provider default.
func ClampSpeed(raw any, limits SpeechLimits) float64 {
	v, ok := parseSpeed(raw)
	if !ok {
		return limits.DefaultSpeed
	}
	return math.Max(limits.MinSpeed, math.Min(limits.MaxSpeed, v))
}

func parseSpeed(raw any) (float64, bool) {
	var v float64
	switch s := raw.(type) {
	case float64:
		v = s
	case float32:
		v = float64(s)
	case int:
		v = float64(s)
	case int64:
		v = float64(s)
	case json.Number:
		parsed, err := s.Float64()
		if err != nil {
			return 0, false
		}
		v = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
