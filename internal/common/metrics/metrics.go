// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP request handling in seconds",
		},
		[]string{"method", "route"},
	)

	RelayEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_published_total",
			Help: "Total number of relay events published per event type",
		},
		[]string{"event_type"},
	)

	RelayPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_publish_failures_total",
			Help: "Total number of relay publish attempts that failed",
		},
	)

	VoiceCallsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_calls_active",
			Help: "Number of telephony streams currently bound to a session",
		},
	)

	VoiceToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_tool_calls_total",
			Help: "Total number of agent tool invocations per tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ApplicationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applications_created_total",
			Help: "Total number of permit applications created per submission channel",
		},
		[]string{"channel"},
	)
)
