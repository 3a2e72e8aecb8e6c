package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Onboarding metrics
	StepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_onboarding_step_transitions_total",
			Help: "Total number of onboarding step transitions",
		},
		[]string{"from", "to", "status"}, // status: success|rejected
	)

	OnboardingCompletions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradinglab_onboarding_completions_total",
			Help: "Total number of completed onboardings",
		},
	)

	OnboardingResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradinglab_onboarding_resets_total",
			Help: "Total number of onboarding resets",
		},
	)

	StatePersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_onboarding_persistence_failures_total",
			Help: "Total number of failed onboarding state saves",
		},
		[]string{"operation"}, // operation: save|delete
	)

	// Activation metrics
	ActivationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_activation_attempts_total",
			Help: "Total number of activation attempts",
		},
		[]string{"kind", "direction", "status"}, // status: success|failed|blocked
	)

	ConflictsBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_activation_conflicts_blocked_total",
			Help: "Total number of activations blocked by manual mode conflicts",
		},
		[]string{"kind"},
	)

	SequencerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradinglab_activation_sequencer_duration_seconds",
			Help:    "Activation sequencer run duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"kind", "status"},
	)

	SequencerStageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_activation_stage_failures_total",
			Help: "Total number of sequencer runs halted at a stage",
		},
		[]string{"stage"},
	)

	// Network metrics
	NetworkTotalPower = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradinglab_network_total_power",
			Help: "Combined balance of connected accounts in a user network",
		},
		[]string{"user_id"},
	)

	NetworkAccounts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradinglab_network_accounts",
			Help: "Number of accounts in a user network by role",
		},
		[]string{"user_id", "role"}, // role: core|satellite
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradinglab_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradinglab_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Backend API metrics
	BackendAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_backend_api_calls_total",
			Help: "Total number of backend API calls",
		},
		[]string{"endpoint", "status"}, // status: success|error|rate_limited
	)

	BackendAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradinglab_backend_api_latency_seconds",
			Help:    "Backend API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradinglab_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradinglab_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)

	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradinglab_websocket_connections",
			Help: "Current number of active WebSocket stream clients",
		},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Onboarding metrics
	prometheus.MustRegister(StepTransitions)
	prometheus.MustRegister(OnboardingCompletions)
	prometheus.MustRegister(OnboardingResets)
	prometheus.MustRegister(StatePersistenceFailures)

	// Activation metrics
	prometheus.MustRegister(ActivationAttempts)
	prometheus.MustRegister(ConflictsBlocked)
	prometheus.MustRegister(SequencerDuration)
	prometheus.MustRegister(SequencerStageFailures)

	// Network metrics
	prometheus.MustRegister(NetworkTotalPower)
	prometheus.MustRegister(NetworkAccounts)

	// Worker metrics
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	// Backend API metrics
	prometheus.MustRegister(BackendAPICalls)
	prometheus.MustRegister(BackendAPILatency)

	// Database metrics
	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	// System metrics
	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(WebSocketConnections)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordStepTransition records an onboarding step transition
func RecordStepTransition(from, to string, err error) {
	status := "success"
	if err != nil {
		status = "rejected"
	}

	StepTransitions.WithLabelValues(from, to, status).Inc()
}

// RecordActivationAttempt records an activation attempt outcome
func RecordActivationAttempt(kind, direction, status string, duration time.Duration) {
	ActivationAttempts.WithLabelValues(kind, direction, status).Inc()
	SequencerDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordBackendAPICall records a backend API call
func RecordBackendAPICall(endpoint string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	BackendAPICalls.WithLabelValues(endpoint, status).Inc()
	BackendAPILatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
