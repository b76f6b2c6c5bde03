package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parley_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_users_registered_total",
			Help: "Total users registered",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"room_type"}, // "private" or "group"
	)

	InvitesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_invites_issued_total",
			Help: "Total invite tokens issued",
		},
		[]string{"kind"}, // "room" or "private"
	)

	InvitesRedeemed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_invites_redeemed_total",
			Help: "Total invite tokens redeemed",
		},
		[]string{"kind"},
	)

	AssistantRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_assistant_requests_total",
			Help: "Total assistant completion requests",
		},
		[]string{"status"}, // "ok" or "error"
	)

	// Fan-out metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_ws_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	HubEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_hub_events_published_total",
			Help: "Total events published to the fan-out hub",
		},
		[]string{"type"}, // "message" or "presence"
	)

	HubSubscribersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_hub_subscribers_evicted_total",
			Help: "Subscribers dropped for not keeping up",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
