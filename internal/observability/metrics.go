package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawhaven_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pawhaven_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// AdmissionOutcomes counts chat message admission results by outcome.
	// Outcomes: admitted, unauthenticated, banned, silenced, rate_limited,
	// invalid, blocked, storage_error.
	AdmissionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawhaven_chat_admission_outcomes_total",
		Help: "Total chat message admission decisions by outcome",
	}, []string{"outcome"})

	// ModerationActionsApplied counts moderation actions by type.
	ModerationActionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawhaven_moderation_actions_total",
		Help: "Total moderation actions applied by action type",
	}, []string{"action"})

	// ContentFilterResults counts content filter decisions.
	ContentFilterResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawhaven_content_filter_results_total",
		Help: "Total content filter decisions by result",
	}, []string{"result"})

	// PresenceOnlineUsers is the gauge of online users per room.
	PresenceOnlineUsers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pawhaven_presence_online_users",
		Help: "Number of users currently online per room",
	}, []string{"room_id"})

	// MessageThroughput counts messages processed per room and type.
	MessageThroughput = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawhaven_message_throughput_total",
		Help: "Total number of messages processed",
	}, []string{"room_id", "message_type"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pawhaven_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawhaven_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawhaven_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// DMDecryptFailures counts direct message payloads we could not open.
	DMDecryptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pawhaven_dm_decrypt_failures_total",
		Help: "Total direct message payloads that failed to decrypt",
	})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}

// RecordAdmission increments the admission outcome counter.
func RecordAdmission(outcome string) {
	AdmissionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordModerationAction increments the moderation action counter.
func RecordModerationAction(action string) {
	ModerationActionsApplied.WithLabelValues(action).Inc()
}

// RecordFilterResult increments the content filter result counter.
func RecordFilterResult(result string) {
	ContentFilterResults.WithLabelValues(result).Inc()
}

// MessageMetrics records message and WebSocket event metrics.
type MessageMetrics struct{}

// NewMessageMetrics returns a new MessageMetrics instance.
func NewMessageMetrics() *MessageMetrics {
	return &MessageMetrics{}
}

// RecordMessage increments message throughput counters.
func (*MessageMetrics) RecordMessage(roomID, messageType string) {
	MessageThroughput.WithLabelValues(roomID, messageType).Inc()
}

// RecordWebSocketEvent increments the WebSocket events counter.
func (*MessageMetrics) RecordWebSocketEvent(eventType string) {
	WebSocketEventsTotal.WithLabelValues(eventType).Inc()
}
