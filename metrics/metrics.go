package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RelayRequestsTotal counts relay invocations by relay, provider and outcome.
	RelayRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persona",
		Subsystem: "relay",
		Name:      "requests_total",
		Help:      "Total number of relay requests, labeled by relay (chat|speech), provider and result kind.",
	}, []string{"relay", "provider", "result"})

	// UpstreamDurationSeconds is the time spent inside the provider adapter,
	// including the async audio fetch for polling providers.
	UpstreamDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "persona",
		Subsystem: "relay",
		Name:      "upstream_duration_seconds",
		Help:      "Time spent waiting on the upstream provider.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"relay", "provider"})

	// SpeechCharactersTotal counts characters actually sent to synthesis providers.
	SpeechCharactersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persona",
		Subsystem: "relay",
		Name:      "speech_characters_total",
		Help:      "Characters sent to speech providers after truncation and sanitization.",
	}, []string{"provider"})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "persona",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	})
)

// Register registers relay metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RelayRequestsTotal,
			UpstreamDurationSeconds,
			SpeechCharactersTotal,
			RateLimitedTotal,
		)
	})
}
