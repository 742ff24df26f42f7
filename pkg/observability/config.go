package observability

import "log/slog"

// AppMode distinguishes the long-running worker from one-shot CLI runs.
type AppMode string

// Application modes.
const (
	ModeWorker AppMode = "worker"
	ModeCLI    AppMode = "cli"
)

// defaultShutdownTimeoutSec bounds telemetry flush on exit.
const defaultShutdownTimeoutSec = 5

// Config controls telemetry initialization.
type Config struct {
	// ServiceName identifies this process in traces, metrics, and logs.
	ServiceName string

	// ServiceVersion is the build version, when known.
	ServiceVersion string

	// Environment names the deployment environment (dev, staging, prod).
	Environment string

	// Mode distinguishes worker and CLI telemetry.
	Mode AppMode

	// OTLPEndpoint is the gRPC collector address. Empty disables export;
	// no-op providers are used with zero overhead.
	OTLPEndpoint string

	// OTLPInsecure disables TLS on the exporter connection.
	OTLPInsecure bool

	// OTLPHeaders are attached to every export request.
	OTLPHeaders map[string]string

	// SampleRatio is the trace sampling ratio; <= 0 means always sample.
	SampleRatio float64

	// LogLevel is the minimum emitted log level.
	LogLevel slog.Level

	// LogJSON switches the log encoding from text to JSON.
	LogJSON bool

	// ShutdownTimeoutSec bounds the telemetry flush on exit.
	ShutdownTimeoutSec int
}

// DefaultConfig returns the worker defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "stemforge",
		Mode:               ModeWorker,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
