package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workconnect_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workconnect_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Lifecycle metrics
	RequestsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workconnect_requests_created_total",
			Help: "Total requests created",
		},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workconnect_request_transitions_total",
			Help: "Request lifecycle transitions by action and result",
		},
		[]string{"action", "result"}, // result: "ok", "invalid_state", "unauthorized", "error"
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workconnect_messages_posted_total",
			Help: "Total request thread messages posted",
		},
	)

	LocationUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workconnect_location_updates_total",
			Help: "Total location updates persisted",
		},
		[]string{"role"},
	)

	// Presence metrics
	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workconnect_socket_connections",
			Help: "Open websocket connections on this instance",
		},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workconnect_broadcasts_total",
			Help: "Room broadcasts by scope and result",
		},
		[]string{"scope", "result"}, // scope: "request", "user"; result: "delivered", "no_audience", "relayed", "error"
	)

	// Notification metrics
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workconnect_notifications_created_total",
			Help: "Total notifications persisted",
		},
		[]string{"type"},
	)

	NotificationPushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workconnect_notification_push_failures_total",
			Help: "Notifications persisted but not pushed live",
		},
	)

	NotificationsSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workconnect_notifications_swept_total",
			Help: "Notifications removed by the sweeper",
		},
		[]string{"reason"}, // "expired" or "read_retention"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workconnect_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workconnect_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workconnect_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workconnect_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
