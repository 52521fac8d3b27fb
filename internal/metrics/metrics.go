package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Name:      "completions_total",
			Help:      "Completion calls by outcome.",
		},
		[]string{"outcome"},
	)

	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Name:      "completion_duration_seconds",
			Help:      "Latency of completion calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"backend"},
	)

	AttachmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Name:      "attachments_total",
			Help:      "Selected attachments by result.",
		},
		[]string{"result"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Name:      "active_sessions",
			Help:      "Live chat sessions.",
		},
	)

	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		},
	)
)

const (
	OutcomeOK        = "ok"
	OutcomeProvider  = "provider_error"
	OutcomeEmpty     = "empty"
	OutcomeTransport = "transport_error"

	AttachmentInline   = "inline"
	AttachmentUploaded = "uploaded"
	AttachmentRejected = "rejected"
	AttachmentFailed   = "failed"
)

func init() {
	prometheus.MustRegister(CompletionsTotal)
	prometheus.MustRegister(CompletionDuration)
	prometheus.MustRegister(AttachmentsTotal)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(WebSocketClients)
}
