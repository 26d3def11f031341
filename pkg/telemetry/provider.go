package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	meterName    = "tinynotes"
	meterVersion = "0.1.2"

	defaultInterval = 60 * time.Second
	defaultTimeout  = 10 * time.Second
)

// Operation identifies one of the four counted request kinds.
type Operation int

const (
	OpCreate Operation = iota
	OpRead
	OpUpdate
	OpDelete
	numOperations
)

var instruments = [numOperations]struct {
	name        string
	description string
}{
	OpCreate: {"post_counter", "counts post requests"},
	OpRead:   {"get_counter", "counts get requests"},
	OpUpdate: {"put_counter", "counts put requests"},
	OpDelete: {"delete_counter", "counts delete requests"},
}

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("Operation(%d)", int(op))
}

// Counts is a point-in-time copy of the four counters.
type Counts struct {
	Create int64 `json:"create"`
	Read   int64 `json:"read"`
	Update int64 `json:"update"`
	Delete int64 `json:"delete"`
}

// Config holds Metrics Provider configuration
type Config struct {
	// Endpoint is the OTLP/gRPC collector address (host:port)
	Endpoint string
	// Insecure disables TLS to the collector
	Insecure bool
	// Interval between periodic exports
	Interval time.Duration
	// Timeout bounds a single export attempt including retries
	Timeout time.Duration

	ServiceName    string
	ServiceVersion string
}

// Provider owns the request counters and the exporters that ship them.
// It is constructed once at startup and passed to the HTTP layer.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	counters      [numOperations]metric.Int64Counter
	totals        [numOperations]atomic.Int64
	registry      *prometheus.Registry
	logger        zerolog.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

type options struct {
	exporter sdkmetric.Exporter
	readers  []sdkmetric.Reader
	logger   zerolog.Logger
	onExport func(error)
	runtime  bool
}

// Option customises a Provider.
type Option func(*options)

// WithExporter replaces the OTLP push exporter (useful in tests).
func WithExporter(exp sdkmetric.Exporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithReader registers an additional reader, e.g. a ManualReader in tests.
func WithReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.readers = append(o.readers, r) }
}

// WithLogger sets the logger used for export failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRuntimeMetrics adds Go runtime gauges alongside the request counters.
func WithRuntimeMetrics() Option {
	return func(o *options) { o.runtime = true }
}

// WithExportHook is called after every push export with nil or an *ExportError.
func WithExportHook(fn func(error)) Option {
	return func(o *options) { o.onExport = fn }
}

// New creates the Metrics Provider. Connecting to the collector is lazy, so an
// unreachable collector does not fail startup.
func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = meterName
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = meterVersion
	}

	if o.exporter == nil && cfg.Endpoint == "" {
		return nil, errors.New("collector endpoint is required")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	// Built last: from here on the meter provider owns it and shuts it down.
	exporter := o.exporter
	if exporter == nil {
		exporter, err = newOTLPExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
	}

	reader := sdkmetric.NewPeriodicReader(
		newFailSafeExporter(exporter, o.logger, o.onExport),
		sdkmetric.WithInterval(cfg.Interval),
		sdkmetric.WithTimeout(cfg.Timeout),
	)

	mpOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithReader(promExporter),
	}
	for _, r := range o.readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)

	p := &Provider{
		meterProvider: mp,
		registry:      registry,
		logger:        o.logger,
	}

	meter := mp.Meter(meterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	for op, inst := range instruments {
		counter, err := meter.Int64Counter(inst.name, metric.WithDescription(inst.description))
		if err != nil {
			_ = mp.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create counter %s: %w", inst.name, err)
		}
		p.counters[op] = counter
	}

	if o.runtime {
		if err := registerRuntimeMetrics(meter); err != nil {
			_ = mp.Shutdown(ctx)
			return nil, err
		}
	}

	return p, nil
}

func newOTLPExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTimeout(cfg.Timeout),
		otlpmetricgrpc.WithRetry(otlpmetricgrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: 1 * time.Second,
			MaxInterval:     5 * time.Second,
			MaxElapsedTime:  cfg.Timeout,
		}),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

// Inc adds one to the counter for op. Safe for concurrent use; never blocks on export.
func (p *Provider) Inc(ctx context.Context, op Operation) {
	if op < 0 || op >= numOperations {
		return
	}
	p.totals[op].Add(1)
	p.counters[op].Add(ctx, 1)
}

// Snapshot returns the counter values recorded by this process.
func (p *Provider) Snapshot() Counts {
	return Counts{
		Create: p.totals[OpCreate].Load(),
		Read:   p.totals[OpRead].Load(),
		Update: p.totals[OpUpdate].Load(),
		Delete: p.totals[OpDelete].Load(),
	}
}

// Handler serves the counters in Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes pending values to the collector and stops the export timer.
// Export failures during the final flush are logged, not returned.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.meterProvider.Shutdown(ctx)
	})
	return p.shutdownErr
}
