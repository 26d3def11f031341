package telemetry

import (
	"context"
	"fmt"
	"runtime"

	"go.opentelemetry.io/otel/metric"
)

// registerRuntimeMetrics exposes goroutine, CPU and heap gauges, read on
// each collection.
func registerRuntimeMetrics(meter metric.Meter) error {
	goroutines, err := meter.Int64ObservableGauge("go_goroutines",
		metric.WithDescription("number of goroutines"))
	if err != nil {
		return fmt.Errorf("failed to create runtime gauge: %w", err)
	}
	cpus, err := meter.Int64ObservableGauge("go_cpu_count",
		metric.WithDescription("number of usable CPUs"))
	if err != nil {
		return fmt.Errorf("failed to create runtime gauge: %w", err)
	}
	heap, err := meter.Int64ObservableGauge("go_memory_heap_bytes",
		metric.WithDescription("bytes of allocated heap objects"),
		metric.WithUnit("By"))
	if err != nil {
		return fmt.Errorf("failed to create runtime gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		o.ObserveInt64(cpus, int64(runtime.NumCPU()))
		o.ObserveInt64(heap, int64(m.HeapAlloc))
		return nil
	}, goroutines, cpus, heap)
	if err != nil {
		return fmt.Errorf("failed to register runtime callback: %w", err)
	}
	return nil
}
