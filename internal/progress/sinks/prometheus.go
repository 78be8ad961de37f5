package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/leadwatch/internal/progress"
)

// PrometheusSink exports cycle and company progress from the event stream.
type PrometheusSink struct {
	cyclesStarted  prometheus.Counter
	cyclesRunning  prometheus.Gauge
	cycleRuntime   *prometheus.HistogramVec
	companies      *prometheus.CounterVec
	companyRuntime *prometheus.HistogramVec
	leadScores     prometheus.Histogram

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		cyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadwatch_cycles_started_total",
			Help: "Scan cycles that have started.",
		}),
		cyclesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadwatch_cycles_running",
			Help: "Scan cycles currently in flight.",
		}),
		cycleRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadwatch_cycle_runtime_seconds",
			Help:    "Wall time per finished scan cycle.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"result"}),
		companies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadwatch_cycle_companies_total",
			Help: "Companies processed within cycles partitioned by result.",
		}, []string{"result"}),
		companyRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadwatch_cycle_company_seconds",
			Help:    "Per-company scan time reported through progress events.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"result"}),
		leadScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadwatch_cycle_lead_score",
			Help:    "Deal scores of leads reported through progress events.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		tracker: &runTracker{running: make(map[string]struct{})},
	}
	for _, c := range []prometheus.Collector{
		s.cyclesStarted, s.cyclesRunning, s.cycleRuntime, s.companies, s.companyRuntime, s.leadScores,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageCycleStart:
			s.cyclesStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.cyclesRunning.Inc()
			}
		case progress.StageCycleDone:
			s.finishCycle(evt, "success")
		case progress.StageCycleError:
			s.finishCycle(evt, "error")
		case progress.StageCompanyDone:
			s.observeCompany(evt, "success")
		case progress.StageCompanyError:
			s.observeCompany(evt, "error")
		case progress.StageBudgetSkip:
			s.companies.WithLabelValues("budget_skip").Inc()
		case progress.StageLead:
			s.leadScores.Observe(float64(evt.Score))
		}
	}
	return nil
}

func (s *PrometheusSink) finishCycle(evt progress.Event, result string) {
	if evt.Dur > 0 {
		s.cycleRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.cyclesRunning.Dec()
	}
}

func (s *PrometheusSink) observeCompany(evt progress.Event, result string) {
	s.companies.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.companyRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
