package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// DispatchBuckets for matching one event and pushing its records (local list pushes)
	DispatchBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

	// CommandBuckets for command protocol round trips
	CommandBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}
)

// Registration & dispatch metrics
var (
	// RegistrationsTotal counts NOTIFYLIST.SET calls by result (ok, arity, activation_failed)
	RegistrationsTotal CounterVec = noopCounterVec{}

	// RegistryPatterns tracks the number of registered patterns
	RegistryPatterns Gauge = NoopStat{}

	// ActivationsTotal counts keyspace subscriptions by result (ok, failed)
	ActivationsTotal CounterVec = noopCounterVec{}

	// EventsTotal counts delivered mutation events by op and outcome (empty, ignored, handled)
	EventsTotal CounterVec = noopCounterVec{}

	// RecordsPushedTotal counts dispatch records pushed by match path (exact, wildcard)
	RecordsPushedTotal CounterVec = noopCounterVec{}

	// PushFailuresTotal counts dispatch records that could not be pushed
	PushFailuresTotal Counter = NoopStat{}

	// DispatchDurationSeconds measures time spent handling one event
	DispatchDurationSeconds Histogram = NoopStat{}

	// DestinationListLength tracks the length of every registered destination list
	DestinationListLength GaugeVec = noopGaugeVec{}
)

// Keyspace metrics
var (
	// KeyspaceNotificationsTotal counts notifications emitted by the embedded engine by op
	KeyspaceNotificationsTotal CounterVec = noopCounterVec{}

	// KeysExpiredTotal counts keys removed because their TTL elapsed
	KeysExpiredTotal Counter = NoopStat{}

	// KeyspaceKeys tracks the number of live keys in the embedded engine
	KeyspaceKeys Gauge = NoopStat{}
)

// Command protocol metrics
var (
	// CommandsTotal counts commands by name and result (ok, error)
	CommandsTotal CounterVec = noopCounterVec{}

	// CommandDurationSeconds measures command latency by name
	CommandDurationSeconds HistogramVec = noopHistogramVec{}

	// CommandConnections tracks open command protocol connections
	CommandConnections Gauge = NoopStat{}
)

// Publisher metrics
var (
	// PublisherEventsTotal counts mirrored events by sink and result (published, filtered, failed)
	PublisherEventsTotal CounterVec = noopCounterVec{}

	// PublisherAppendFailuresTotal counts records that could not be appended to the publish log
	PublisherAppendFailuresTotal Counter = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	RegistrationsTotal = NewCounterVec(
		"registrations_total",
		"NOTIFYLIST.SET calls by result",
		[]string{"result"},
	)
	RegistryPatterns = NewGauge(
		"registry_patterns",
		"Number of registered watch patterns",
	)
	ActivationsTotal = NewCounterVec(
		"activations_total",
		"Keyspace subscription attempts by result",
		[]string{"result"},
	)
	EventsTotal = NewCounterVec(
		"events_total",
		"Mutation events delivered to the dispatcher by op and outcome",
		[]string{"op", "outcome"},
	)
	RecordsPushedTotal = NewCounterVec(
		"records_pushed_total",
		"Dispatch records pushed by match path",
		[]string{"path"},
	)
	PushFailuresTotal = NewCounter(
		"push_failures_total",
		"Dispatch records that failed to push",
	)
	DispatchDurationSeconds = NewHistogram(
		"dispatch_duration_seconds",
		"Time spent matching and pushing one event in seconds",
		DispatchBuckets,
	)
	DestinationListLength = NewGaugeVec(
		"destination_list_length",
		"Length of each registered destination list",
		[]string{"destination"},
	)

	KeyspaceNotificationsTotal = NewCounterVec(
		"keyspace_notifications_total",
		"Keyspace notifications emitted by op",
		[]string{"op"},
	)
	KeysExpiredTotal = NewCounter(
		"keys_expired_total",
		"Keys removed after their TTL elapsed",
	)
	KeyspaceKeys = NewGauge(
		"keyspace_keys",
		"Number of live keys in the embedded engine",
	)

	CommandsTotal = NewCounterVec(
		"commands_total",
		"Commands by name and result",
		[]string{"command", "result"},
	)
	CommandDurationSeconds = NewHistogramVec(
		"command_duration_seconds",
		"Command latency in seconds",
		[]string{"command"},
		CommandBuckets,
	)
	CommandConnections = NewGauge(
		"command_connections",
		"Open command protocol connections",
	)

	PublisherEventsTotal = NewCounterVec(
		"publisher_events_total",
		"Mirrored events by sink and result",
		[]string{"sink", "result"},
	)
	PublisherAppendFailuresTotal = NewCounter(
		"publisher_append_failures_total",
		"Dispatch records that could not be appended to the publish log",
	)
}
