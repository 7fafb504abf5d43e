package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/stretchr/testify/require"
)

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.False(t, tel.Enabled())

	ctx := context.Background()

	tel.RecordDownload(ctx, "finished", time.Second)
	tel.RecordRetry(ctx, "recovered")
	tel.IncrementActiveStreams(ctx)
	tel.DecrementActiveStreams(ctx)
	require.NoError(t, tel.ObserveProgressEntries(func() int { return 1 }))
	require.NoError(t, tel.Shutdown(ctx))

	called := false
	require.NoError(t, tel.InstrumentDownload(ctx, func(context.Context) error {
		called = true

		return nil
	}))
	require.True(t, called)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNilTelemetryIsNoop(t *testing.T) {
	var tel *Telemetry

	ctx := context.Background()

	tel.RecordRetry(ctx, "failed")
	tel.RecordExtractionAttempt(ctx, "primary", "success")
	require.NoError(t, tel.InstrumentExtraction(ctx, "primary", func(context.Context) error { return nil }))

	boom := errors.New("boom")
	require.ErrorIs(t, tel.InstrumentDBOperation(ctx, "track", func(context.Context) error { return boom }), boom)
}

func TestEnabledTelemetryExposesMetrics(t *testing.T) {
	ctx := context.Background()

	tel, err := New(ctx, Config{Enabled: true, ServiceName: "media_toolbox_test", ServiceVersion: "test"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	require.NoError(t, tel.ObserveProgressEntries(func() int { return 3 }))

	tel.RecordDownload(ctx, "finished", 2*time.Second)
	tel.RecordRetry(ctx, "recovered")
	require.Error(t, tel.InstrumentExtraction(ctx, "alternate", func(context.Context) error {
		return errors.New("exit status 1")
	}))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, `outcome="finished"`)
	require.Contains(t, body, `outcome="recovered"`)
	require.Contains(t, body, `profile="alternate"`)
	require.Contains(t, body, "download_duration_seconds")
	require.Contains(t, body, "progress_entries")
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	ctx := context.Background()

	tel, err := New(ctx, Config{Enabled: true, ServiceName: "media_toolbox_test"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(tel).Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	metrics := httptest.NewRecorder()
	tel.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metrics.Body.String()
	require.Contains(t, body, `path="/items/{id}"`)
	require.Contains(t, body, `status="4xx"`)
	require.NotContains(t, body, `path="/items/42"`)
}

func TestRequestIDAndLogging(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		status    int
		wantLevel string
	}{
		{name: "generated id, success", status: http.StatusOK, wantLevel: "INFO"},
		{name: "propagated id, client error", header: "upstream-id", status: http.StatusBadRequest, wantLevel: "WARN"},
		{name: "server error", status: http.StatusInternalServerError, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

			h := RequestID(HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, "body")
			})))

			req := httptest.NewRequest(http.MethodGet, "/download", nil)
			req = req.WithContext(logctx.WithLogger(req.Context(), logger))

			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			id := rec.Header().Get(RequestIDHeader)
			require.NotEmpty(t, id)

			if tt.header != "" {
				require.Equal(t, tt.header, id)
			}

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			require.Equal(t, tt.wantLevel, entry["level"])
			require.Equal(t, id, entry["request_id"])
			require.EqualValues(t, tt.status, entry["status"])
			require.EqualValues(t, 4, entry["bytes"])
		})
	}
}

func TestResponseWriterFlushesThroughWrapper(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	require.NoError(t, http.NewResponseController(rw).Flush())
	require.True(t, rec.Flushed)
	require.Equal(t, http.StatusOK, rw.status)
}
