package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", SanitizeSite("https://Example.com/path"))
	require.Equal(t, "example.com", SanitizeSite("example.com"))
	require.Equal(t, "unknown", SanitizeSite("http://"))
}

func TestObserveBreakerState(t *testing.T) {
	t.Parallel()

	ObserveBreakerState("telemetry-test", "open")
	require.InDelta(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("telemetry-test")), 1e-9)
	ObserveBreakerState("telemetry-test", "half-open")
	require.InDelta(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("telemetry-test")), 1e-9)
	ObserveBreakerState("telemetry-test", "closed")
	require.Zero(t, testutil.ToFloat64(breakerState.WithLabelValues("telemetry-test")))
}

func TestObserveExternalCallOutcome(t *testing.T) {
	t.Parallel()

	before := testutil.ToFloat64(externalCallsTotal.WithLabelValues("telemetry-svc", "error"))
	ObserveExternalCall("telemetry-svc", errors.New("x"), time.Millisecond)
	require.InDelta(t, before+1, testutil.ToFloat64(externalCallsTotal.WithLabelValues("telemetry-svc", "error")), 1e-9)
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/telemetry-test/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telemetry-test/1", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.InDelta(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")), 1e-9)
}
