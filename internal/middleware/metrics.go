package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambot_messages_received_total",
		Help: "Total number of messages received from the gateway",
	}, []string{"kind"})

	mentionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambot_mentions_processed_total",
		Help: "Total number of mentions processed",
	}, []string{"status"})

	// Command metrics
	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// Engine metrics
	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambot_responses_total",
		Help: "Total number of responses by pool and override",
	}, []string{"pool", "override"})

	intentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambot_intents_total",
		Help: "Total number of classified mentions by intent",
	}, []string{"intent"})

	responseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dreambot_response_duration_seconds",
		Help:    "Time spent deciding on a response",
		Buckets: prometheus.DefBuckets,
	}, []string{"pool"})

	silencedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambot_silenced_messages_total",
		Help: "Total number of mentions dropped while the author was escaped",
	})

	escapesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambot_escapes_total",
		Help: "Total number of escapes triggered",
	})

	loreCallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambot_lore_callbacks_total",
		Help: "Total number of lore callbacks appended",
	})

	engineFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambot_engine_failures_total",
		Help: "Total number of recovered engine failures",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambot_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambot_storage_operations_total",
		Help: "Total number of usage ledger operations",
	}, []string{"backend", "operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dreambot_storage_operation_duration_seconds",
		Help:    "Duration of usage ledger operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// Background task metrics
	whispersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dreambot_whispers_total",
		Help: "Total number of whispers posted",
	}, []string{"status"})

	statusRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dreambot_status_rotations_total",
		Help: "Total number of presence updates",
	})

	trackedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dreambot_tracked_users",
		Help: "Number of users with conversation context in memory",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func orNone(label string) string {
	if label == "" {
		return "none"
	}
	return label
}

// RecordMessageReceived records a gateway message of the given kind
func (m *Metrics) RecordMessageReceived(kind string) {
	messagesReceived.WithLabelValues(kind).Inc()
}

// RecordMentionProcessed records the outcome of handling a mention
func (m *Metrics) RecordMentionProcessed(status string) {
	mentionsProcessed.WithLabelValues(status).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordResponse records a reply chosen by the engine
func (m *Metrics) RecordResponse(intentLabel, pool, override string, duration time.Duration) {
	intentsTotal.WithLabelValues(orNone(intentLabel)).Inc()
	responsesTotal.WithLabelValues(orNone(pool), orNone(override)).Inc()
	responseDuration.WithLabelValues(orNone(pool)).Observe(duration.Seconds())
}

// RecordSilenced records a mention dropped during an escape
func (m *Metrics) RecordSilenced() {
	silencedTotal.Inc()
}

// RecordEscape records a triggered escape
func (m *Metrics) RecordEscape() {
	escapesTotal.Inc()
}

// RecordLoreCallback records an appended lore callback
func (m *Metrics) RecordLoreCallback() {
	loreCallbacksTotal.Inc()
}

// RecordEngineFailure records a recovered engine failure
func (m *Metrics) RecordEngineFailure() {
	engineFailures.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordStorageOperation records a usage ledger operation
func (m *Metrics) RecordStorageOperation(backend, operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(backend, operation, status).Inc()
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordWhisper records a whisper attempt
func (m *Metrics) RecordWhisper(status string) {
	whispersSent.WithLabelValues(status).Inc()
}

// RecordStatusRotation records a presence update
func (m *Metrics) RecordStatusRotation() {
	statusRotations.Inc()
}

// SetTrackedUsers sets the number of users held in conversation memory
func (m *Metrics) SetTrackedUsers(count int) {
	trackedUsers.Set(float64(count))
}
