package engine

import (
	"log/slog"
	"time"

	"tacklens/engine/storage"
)

// Config is the public configuration surface for the Engine facade. It
// narrows the underlying component configs; advanced callers inject a
// Storage implementation and logger here.
type Config struct {
	// BoatType selects the polar table used by the kernels. Unknown types
	// fall back to the default polar.
	BoatType string

	// Cache sizing.
	CacheMaxSizeBytes int64
	CacheTTL          time.Duration
	CacheNamespace    string

	// Storage is the optional persistence port shared by the parameter
	// registry and the cache mirror. Nil keeps everything in memory.
	Storage storage.Storage

	// Logger receives all engine diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// MetricsEnabled toggles the metrics provider wiring.
	MetricsEnabled bool
	// MetricsBackend selects the implementation when MetricsEnabled:
	//   "prom" (default) - built-in Prometheus registry
	//   "otel"           - OpenTelemetry bridge
	//   "noop"           - explicit no-op
	// Unknown values fall back to prom.
	MetricsBackend string

	// EventsEnabled toggles the internal telemetry event bus.
	EventsEnabled bool

	// TracingSamplePercent is the share of runs that get internal trace
	// spans. Zero disables tracing.
	TracingSamplePercent float64
}

// Defaults returns a Config with reasonable defaults: in-memory only,
// metrics off, event bus on, 5% trace sampling, default boat polar.
func Defaults() Config {
	return Config{
		BoatType:             "default",
		CacheMaxSizeBytes:    10 * 1024 * 1024,
		CacheTTL:             time.Hour,
		CacheNamespace:       "analysis_cache",
		MetricsEnabled:       false,
		MetricsBackend:       "prom",
		EventsEnabled:        true,
		TracingSamplePercent: 5,
	}
}
