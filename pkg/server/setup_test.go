package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nicktill/tinynotes/pkg/config"
	"github.com/nicktill/tinynotes/pkg/storage/memory"
	"github.com/nicktill/tinynotes/pkg/storage/sqlite"
	"github.com/nicktill/tinynotes/pkg/telemetry"
)

type fakeExporter struct {
	calls atomic.Int64
}

func (f *fakeExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (f *fakeExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (f *fakeExporter) Export(context.Context, *metricdata.ResourceMetrics) error {
	f.calls.Add(1)
	return nil
}

func (f *fakeExporter) ForceFlush(context.Context) error { return nil }
func (f *fakeExporter) Shutdown(context.Context) error   { return nil }

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	return config.Config{
		Port:        "0",
		Backend:     backend,
		DataDir:     t.TempDir(),
		MaxMemoryMB: 16,
		LogLevel:    "info",
		LogFormat:   "json",
		Telemetry: config.TelemetryConfig{
			Endpoint:       "127.0.0.1:1",
			Insecure:       true,
			ExportInterval: time.Hour,
			ServiceName:    "tinynotes-test",
		},
	}
}

func newTestApp(t *testing.T, backend string) (*App, *fakeExporter) {
	t.Helper()
	exp := &fakeExporter{}
	app, err := New(context.Background(), testConfig(t, backend), zerolog.Nop(), telemetry.WithExporter(exp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, exp
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "postgres")
	_, err := New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestInitializeStorage_Backends(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := InitializeStorage(testConfig(t, config.BackendMemory), zerolog.Nop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &memory.Storage{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig(t, config.BackendSQLite)
		cfg.DataDir = filepath.Join(cfg.DataDir, "nested", "dir")
		store, err := InitializeStorage(cfg, zerolog.Nop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &sqlite.Store{}, store)
		assert.FileExists(t, filepath.Join(cfg.DataDir, sqlite.FileName))
	})

	t.Run("badger", func(t *testing.T) {
		cfg := testConfig(t, config.BackendBadger)
		store, err := InitializeStorage(cfg, zerolog.Nop())
		require.NoError(t, err)
		defer store.Close()
		info, err := os.Stat(filepath.Join(cfg.DataDir, "badger"))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := InitializeStorage(testConfig(t, "nope"), zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestApp_NoteLifecycle(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendSQLite, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			app, _ := newTestApp(t, backend)
			h := app.Handler()

			w := doRequest(h, "POST", "/note", `{"content":"hello"}`)
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
			var created struct {
				ID int64 `json:"id"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
			path := "/note/" + jsonNumber(created.ID)

			w = doRequest(h, "GET", path, "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"content":"hello"}`, w.Body.String())

			w = doRequest(h, "PUT", path, `{"content":"bye"}`)
			require.Equal(t, http.StatusOK, w.Code)

			w = doRequest(h, "DELETE", path, "")
			require.Equal(t, http.StatusNoContent, w.Code)

			w = doRequest(h, "GET", path, "")
			require.Equal(t, http.StatusNotFound, w.Code)

			assert.Equal(t, telemetry.Counts{Create: 1, Read: 2, Update: 1, Delete: 1}, app.Metrics().Snapshot())
		})
	}
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestApp_Health(t *testing.T) {
	app, _ := newTestApp(t, config.BackendMemory)

	doRequest(app.Handler(), "POST", "/note", `{"content":"x"}`)
	w := doRequest(app.Handler(), "GET", "/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.Equal(t, config.BackendMemory, resp.Storage)
	assert.Equal(t, int64(1), resp.Requests.Create)
	assert.True(t, resp.Export.Healthy)
	assert.True(t, resp.Maintenance.Healthy)
}

func TestApp_HealthDegradesOnMaintenanceFailures(t *testing.T) {
	app, _ := newTestApp(t, config.BackendMemory)
	for i := 0; i < 4; i++ {
		app.maintenanceMonitor.RecordFailure(assert.AnError)
	}

	w := doRequest(app.Handler(), "GET", "/v1/health", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, 4, resp.Maintenance.ConsecutiveErrors)
}

func TestApp_HealthIgnoresExportFailures(t *testing.T) {
	app, _ := newTestApp(t, config.BackendMemory)
	for i := 0; i < 10; i++ {
		app.exportMonitor.Record(assert.AnError)
	}

	w := doRequest(app.Handler(), "GET", "/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.False(t, resp.Export.Healthy)
	assert.Equal(t, 10, resp.Export.ConsecutiveErrors)
}

func TestApp_MetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t, config.BackendMemory)
	doRequest(app.Handler(), "GET", "/note/1", "")

	w := doRequest(app.Handler(), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "get_counter")
}

func TestApp_MaintenanceOnlyForMaintainers(t *testing.T) {
	memApp, _ := newTestApp(t, config.BackendMemory)
	assert.Nil(t, memApp.maintenance)

	sqlApp, _ := newTestApp(t, config.BackendSQLite)
	assert.NotNil(t, sqlApp.maintenance)
}

func TestApp_CloseFlushesAndIsIdempotent(t *testing.T) {
	app, exp := newTestApp(t, config.BackendMemory)
	doRequest(app.Handler(), "POST", "/note", `{"content":"x"}`)

	require.NoError(t, app.Close())
	require.NoError(t, app.Close())
	assert.GreaterOrEqual(t, exp.calls.Load(), int64(1))
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, _ := newTestApp(t, config.BackendMemory)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_RunReportsListenFailure(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Port = "not-a-port"
	app, err := New(context.Background(), cfg, zerolog.Nop(), telemetry.WithExporter(&fakeExporter{}))
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "listen:"))
}
