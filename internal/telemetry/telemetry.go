// Package telemetry unifies OpenTelemetry tracing (Google Cloud) and Prometheus metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Settings identifies the service to the telemetry backends.
type Settings struct {
	ServiceName   string
	Version       string
	ProjectID     string
	ProjectNumber string
	Region        string
	// SampleRatio is the fraction of root spans sampled. Values >= 1 sample everything.
	SampleRatio float64
}

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwatch_company_scans_total",
			Help: "Company scans completed, labeled by client and status.",
		},
		[]string{"client", "status"},
	)

	scanDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadwatch_company_scan_duration_seconds",
			Help:    "Histogram of per-company scan latencies.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"client"},
	)

	signalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwatch_signals_total",
			Help: "Candidate signals processed, labeled by scout and outcome.",
		},
		[]string{"scout", "outcome"},
	)

	leadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwatch_leads_total",
			Help: "Leads created, labeled by client and priority.",
		},
		[]string{"client", "priority"},
	)

	dealScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadwatch_deal_score",
			Help:    "Distribution of deal scores for triggered signals.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwatch_scan_runs_total",
			Help: "Scan runs finished, labeled by status.",
		},
		[]string{"status"},
	)

	externalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwatch_external_calls_total",
			Help: "Outbound API calls, labeled by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	externalCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadwatch_external_call_duration_seconds",
			Help:    "Histogram of outbound API call latencies including retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leadwatch_circuit_breaker_state",
			Help: "Circuit breaker state per service (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service"},
	)

	budgetExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwatch_budget_exhausted_total",
			Help: "Calls skipped because a client's daily budget was spent.",
		},
		[]string{"client", "service"},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwatch_pages_total",
			Help: "Total number of pages fetched, labeled by site and status.",
		},
		[]string{"site", "status"},
	)

	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwatch_bytes_total",
			Help: "Total number of bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadwatch_active_workers",
			Help: "Number of workers currently scanning a company.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadwatch_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"key"},
	)
)

var (
	initOnce  sync.Once
	traceProv *sdktrace.TracerProvider
	meterProv *metric.MeterProvider
	initErr   error
)

// InitTelemetry sets up tracing (Google Cloud Trace when a project is set) and
// bridges OpenTelemetry metrics into the Prometheus default registry.
func InitTelemetry(ctx context.Context, s Settings) (*sdktrace.TracerProvider, *metric.MeterProvider, error) {
	initOnce.Do(func() {
		attrs := []resource.Option{
			resource.WithAttributes(
				semconv.ServiceName(s.ServiceName),
				semconv.ServiceVersion(s.Version),
			),
		}
		if s.ProjectID != "" {
			attrs = append(attrs, resource.WithAttributes(
				semconv.CloudAccountID(s.ProjectNumber),
				semconv.CloudRegion(s.Region),
				semconv.CloudProviderGCP,
				semconv.CloudPlatformGCPCloudRun,
			))
		}
		res, err := resource.New(ctx, attrs...)
		if err != nil {
			initErr = fmt.Errorf("create resource: %w", err)
			return
		}

		sampler := sdktrace.AlwaysSample()
		if s.SampleRatio > 0 && s.SampleRatio < 1 {
			sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SampleRatio))
		}
		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		}
		if s.ProjectID != "" {
			exporter, err := texporter.New(texporter.WithProjectID(s.ProjectID))
			if err != nil {
				initErr = fmt.Errorf("create google trace exporter: %w", err)
				return
			}
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		)

		promExporter, err := otelprom.New(otelprom.WithRegisterer(prometheus.DefaultRegisterer))
		if err != nil {
			initErr = fmt.Errorf("create prometheus exporter: %w", err)
			return
		}
		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(promExporter),
		)
		otel.SetMeterProvider(mp)
		traceProv = tp
		meterProv = mp
	})
	return traceProv, meterProv, initErr
}

// Shutdown flushes providers created by InitTelemetry.
func Shutdown(ctx context.Context) error {
	if traceProv != nil {
		if err := traceProv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}
	}
	if meterProv != nil {
		if err := meterProv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter provider: %w", err)
		}
	}
	return nil
}

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			routePattern = rc.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// SanitizeSite extracts the hostname from a URL.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records metrics for a fetched page.
func ObserveFetch(site string, status string, bytesFetched int) {
	sanitized := SanitizeSite(site)
	pagesTotal.WithLabelValues(sanitized, status).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCompanyScan records a finished company scan.
func ObserveCompanyScan(clientID, status string, duration time.Duration) {
	scansTotal.WithLabelValues(clientID, status).Inc()
	scanDurationSeconds.WithLabelValues(clientID).Observe(duration.Seconds())
}

// ObserveSignal records the outcome for one candidate signal.
func ObserveSignal(scout, outcome string) {
	signalsTotal.WithLabelValues(scout, outcome).Inc()
}

// ObserveLead records a created lead and its score.
func ObserveLead(clientID, priority string, score int) {
	leadsTotal.WithLabelValues(clientID, priority).Inc()
	dealScore.Observe(float64(score))
}

// ObserveRun records a finished scan run.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveExternalCall records one guarded outbound call.
func ObserveExternalCall(service string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	externalCallsTotal.WithLabelValues(service, outcome).Inc()
	externalCallDurationSeconds.WithLabelValues(service).Observe(duration.Seconds())
}

// ObserveBreakerState exports a breaker transition.
func ObserveBreakerState(service, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(service).Set(v)
}

// ObserveBudgetExhausted records a call skipped for budget reasons.
func ObserveBudgetExhausted(clientID, service string) {
	budgetExhaustedTotal.WithLabelValues(clientID, service).Inc()
}

// IncActiveWorkers increments the active worker count.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active worker count.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(key).Observe(duration.Seconds())
}
