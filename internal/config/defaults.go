package config

// Default values applied before file and environment overrides.
const (
	// DefaultWorkerSlots is the number of concurrent job slots. Zero lets
	// the worker fall back to one slot.
	DefaultWorkerSlots = 1
	// DefaultWorkerMediaDir is the root for relative media references.
	DefaultWorkerMediaDir = "."
	// DefaultWorkerMetricsAddr is the /metrics listen address. Empty
	// disables the scrape endpoint.
	DefaultWorkerMetricsAddr = ""

	// DefaultStoreBackend is the queue/store backend.
	DefaultStoreBackend = BackendMemory
	// DefaultStoreQueueSize is the in-memory queue capacity.
	DefaultStoreQueueSize = 64
	// DefaultRedisAddr is the redis address when the redis backend is on.
	DefaultRedisAddr = "localhost:6379"
	// DefaultRedisPrefix namespaces all stemforge keys in redis.
	DefaultRedisPrefix = "stemforge:"
	// DefaultSQLitePath is the sqlite database path.
	DefaultSQLitePath = "stemforge.db"

	// DefaultLogLevel is the slog level name.
	DefaultLogLevel = "info"
	// DefaultEnvironment tags telemetry with the deployment environment.
	DefaultEnvironment = "development"
	// DefaultSampleRatio is the trace sampling ratio.
	DefaultSampleRatio = 1.0
)
