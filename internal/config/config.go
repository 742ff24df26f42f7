package config

import "errors"

// Config is the top-level configuration struct for stemforge.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Worker        WorkerConfig        `mapstructure:"worker"`
	Store         StoreConfig         `mapstructure:"store"`
	Contracts     ContractsConfig     `mapstructure:"contracts"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// WorkerConfig holds the job-consumer knobs.
type WorkerConfig struct {
	Slots       int    `mapstructure:"slots"`
	MediaDir    string `mapstructure:"media_dir"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// StoreConfig selects and configures the queue/store backend.
type StoreConfig struct {
	Backend   string       `mapstructure:"backend"`
	QueueSize int          `mapstructure:"queue_size"`
	Redis     RedisConfig  `mapstructure:"redis"`
	SQLite    SQLiteConfig `mapstructure:"sqlite"`
}

// RedisConfig holds redis connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SQLiteConfig holds the sqlite backend settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ContractsConfig points at the stage contract document. Empty path means
// the embedded defaults.
type ContractsConfig struct {
	Path string `mapstructure:"path"`
}

// ObservabilityConfig holds logging and telemetry export settings.
type ObservabilityConfig struct {
	LogLevel     string  `mapstructure:"log_level"`
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// Store backend names accepted by StoreConfig.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// sampleRatioMax is the upper bound for the trace sample ratio.
const sampleRatioMax = 1.0

// Sentinel errors for configuration validation.
var (
	// ErrInvalidSlots indicates the worker slot count is negative.
	ErrInvalidSlots = errors.New("worker.slots must be non-negative")
	// ErrInvalidQueueSize indicates the queue size is not positive.
	ErrInvalidQueueSize = errors.New("store.queue_size must be positive")
	// ErrUnknownBackend indicates the store backend name is not recognized.
	ErrUnknownBackend = errors.New("store.backend must be memory, redis, or sqlite")
	// ErrMissingRedisAddr indicates the redis backend has no address.
	ErrMissingRedisAddr = errors.New("store.redis.addr is required for the redis backend")
	// ErrMissingSQLitePath indicates the sqlite backend has no database path.
	ErrMissingSQLitePath = errors.New("store.sqlite.path is required for the sqlite backend")
	// ErrInvalidSampleRatio indicates the trace sample ratio is out of range.
	ErrInvalidSampleRatio = errors.New("observability.sample_ratio must be between 0 and 1")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	workerErr := c.validateWorker()
	if workerErr != nil {
		return workerErr
	}

	storeErr := c.validateStore()
	if storeErr != nil {
		return storeErr
	}

	return c.validateObservability()
}

func (c *Config) validateWorker() error {
	if c.Worker.Slots < 0 {
		return ErrInvalidSlots
	}

	return nil
}

func (c *Config) validateStore() error {
	if c.Store.QueueSize <= 0 {
		return ErrInvalidQueueSize
	}

	switch c.Store.Backend {
	case BackendMemory:
		return nil
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return ErrMissingRedisAddr
		}

		return nil
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return ErrMissingSQLitePath
		}

		return nil
	default:
		return ErrUnknownBackend
	}
}

func (c *Config) validateObservability() error {
	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > sampleRatioMax {
		return ErrInvalidSampleRatio
	}

	return nil
}
