package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of open websocket connections.",
		},
	)

	InboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_inbound_events_total",
			Help: "Inbound websocket events by type and outcome.",
		},
		[]string{"event", "outcome"},
	)

	OutboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_outbound_events_total",
			Help: "Outbound websocket frames delivered, by event type.",
		},
		[]string{"event"},
	)

	MessagesPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Messages written to the store, by kind.",
		},
		[]string{"kind"},
	)

	CallTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_transitions_total",
			Help: "Call state machine transitions.",
		},
		[]string{"transition"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Targeted notifications, by type and whether a connection was found.",
		},
		[]string{"type", "delivered"},
	)

	SideEffectFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effect_failures_total",
			Help: "Best-effort side effects that failed and were dropped.",
		},
		[]string{"effect"},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		ConnectionsActive,
		InboundEventsTotal,
		OutboundEventsTotal,
		MessagesPersistedTotal,
		CallTransitionsTotal,
		NotificationsTotal,
		SideEffectFailuresTotal,
	)
}
