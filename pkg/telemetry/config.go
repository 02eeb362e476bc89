package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config selects the telemetry backends of the resolver.
type Config struct {
	ServiceName    string `validate:"required"`
	ServiceVersion string
	Environment    string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `validate:"oneof=trace debug info warn error"`

	// Format is console or json.
	Format string `validate:"oneof=console json"`

	// Output is stdout, stderr or a file path. Empty means stderr.
	Output string

	// EnableCaller adds file:line to every record.
	EnableCaller bool
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool

	// Exporter is otlp, stdout or none.
	Exporter string `validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector address.
	Endpoint string `validate:"required_if=Exporter otlp"`

	SamplingRate       float64 `validate:"gte=0,lte=1"`
	MaxExportBatchSize int     `validate:"gte=0"`
	ExportTimeout      time.Duration

	// Insecure disables TLS towards the collector.
	Insecure bool
}

// MetricsConfig configures the Prometheus registry and its HTTP endpoint.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string `validate:"required_if=Enabled true"`
	Path          string
	Namespace     string

	// DefaultHistogramBuckets are latency buckets in seconds. Empty means
	// prometheus.DefBuckets.
	DefaultHistogramBuckets []float64
}

// EventsConfig configures the event publisher.
type EventsConfig struct {
	Enabled bool

	// BufferSize bounds the async delivery queue.
	BufferSize int `validate:"required_if=Enabled true,gte=0"`

	// MaxBatchSize is how many queued events are delivered per flush.
	MaxBatchSize int `validate:"gte=0"`

	// EnableAsync delivers events from a background goroutine. Otherwise
	// Publish delivers before returning.
	EnableAsync bool
}

var validate = validator.New()

// DefaultConfig returns the configuration used by the command line: console
// logs on stderr, no tracing, async events and metrics on :9090.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "provision",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "provision",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		Events: EventsConfig{
			Enabled:      true,
			BufferSize:   1000,
			MaxBatchSize: 100,
			EnableAsync:  true,
		},
	}
}

// DevelopmentConfig logs at debug with callers and prints spans to stdout.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: invalid value %v (%s)", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Value(), fe.Tag())
	}
	return fmt.Errorf("invalid telemetry configuration: %s", strings.Join(msgs, "; "))
}
