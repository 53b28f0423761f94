package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream Subscriber Metrics
var (
	// UpstreamEventsTotal tracks events received from the upstream pub/sub by channel
	UpstreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_events_received_total",
			Help: "Total events received from the upstream pub/sub by channel",
		},
		[]string{"channel"},
	)

	// UpstreamReconnectsTotal tracks upstream receive failures that triggered a backoff retry
	UpstreamReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_reconnects_total",
			Help: "Total upstream receive failures followed by a reconnect attempt",
		},
	)

	// UpstreamEventsDroppedTotal tracks events dropped because the dispatch pipeline was full
	UpstreamEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_events_dropped_total",
			Help: "Total upstream events dropped before dispatch due to a full pipeline",
		},
	)
)

// Hub Metrics
var (
	// HubConnectedClients tracks the number of currently registered client connections
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Number of currently registered WebSocket client connections",
		},
	)

	// HubEventsDispatchedTotal tracks events handed to at least one client writer
	HubEventsDispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_events_dispatched_total",
			Help: "Total events dispatched by the hub",
		},
	)

	// HubDeliveriesTotal tracks per-client delivery attempts by outcome
	HubDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_deliveries_total",
			Help: "Per-client delivery attempts by outcome (enqueued/dropped)",
		},
		[]string{"outcome"},
	)

	// HubSlowClientsEvicted tracks clients disconnected for not keeping up
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Total clients disconnected because their send buffer stayed full",
		},
	)

	// HubDispatchDuration tracks time spent fanning out one event
	HubDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_dispatch_duration_seconds",
			Help:    "Duration of a single fan-out pass over all clients",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// HubCommandChannelDepth tracks the hub actor's command backlog
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current depth of the hub command channel",
		},
	)

	// HubStopTimeoutsTotal tracks hub shutdowns that exceeded the stop timeout
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_stop_timeouts_total",
			Help: "Total hub shutdowns that exceeded the stop timeout",
		},
	)

	// HubPanicsTotal tracks recovered panics in the hub goroutine
	HubPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_panics_total",
			Help: "Total recovered panics in the hub goroutine",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketMessageSendDuration tracks time to write one message to a client
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write one message to a WebSocket client",
			Buckets: []float64{.0001, .001, .01, .1, 1, 5},
		},
	)

	// WebSocketPingFailures tracks keepalive pings that failed to send
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total keepalive pings that failed to send",
		},
	)

	// WebSocketIdleDisconnects tracks connections closed for inactivity
	WebSocketIdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_idle_disconnects_total",
			Help: "Total connections closed because the client stopped answering pings",
		},
	)

	// ConnectionsRejectedTotal tracks accept-path rejections by reason
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "Total client connections rejected at accept by reason",
		},
		[]string{"reason"},
	)
)

// Redis Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
