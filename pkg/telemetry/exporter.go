package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const maxLogBackoff = 5 * time.Minute

// ExportError reports a push export that did not reach the collector.
type ExportError struct {
	Err               error
	ConsecutiveErrors int
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("metrics export failed (error #%d): %v", e.ConsecutiveErrors, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// failSafeExporter swallows export errors so an unavailable collector never
// reaches the SDK's global error handler or the request path.
type failSafeExporter struct {
	sdkmetric.Exporter

	logger   zerolog.Logger
	onExport func(error)

	mu                sync.Mutex
	consecutiveErrors int
	lastErrorLog      time.Time
}

func newFailSafeExporter(next sdkmetric.Exporter, logger zerolog.Logger, onExport func(error)) *failSafeExporter {
	return &failSafeExporter{
		Exporter: next,
		logger:   logger,
		onExport: onExport,
	}
}

// Export forwards to the wrapped exporter and always returns nil.
func (e *failSafeExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	err := e.Exporter.Export(ctx, rm)

	e.mu.Lock()
	var reported error
	if err != nil {
		e.consecutiveErrors++
		exportErr := &ExportError{Err: err, ConsecutiveErrors: e.consecutiveErrors}
		reported = exportErr

		// Exponential backoff on logging: 1s, 2s, 4s ... (max 5m)
		backoff := time.Duration(1<<uint(min(e.consecutiveErrors-1, 8))) * time.Second
		if backoff > maxLogBackoff {
			backoff = maxLogBackoff
		}
		now := time.Now()
		if e.lastErrorLog.IsZero() || now.Sub(e.lastErrorLog) >= backoff {
			e.logger.Warn().Err(exportErr).Dur("backoff", backoff).Msg("Metrics collector unreachable")
			e.lastErrorLog = now
		}
	} else if e.consecutiveErrors > 0 {
		e.logger.Info().Int("errors", e.consecutiveErrors).Msg("Metrics export recovered")
		e.consecutiveErrors = 0
		e.lastErrorLog = time.Time{}
	}
	e.mu.Unlock()

	if e.onExport != nil {
		e.onExport(reported)
	}
	return nil
}
