package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadwatch/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	company := func(stage progress.Stage, dur time.Duration) progress.Event {
		return progress.Event{RunID: "r1", TS: now, Stage: stage, ClientID: "a", CompanyID: "c", Dur: dur}
	}
	batch := []progress.Event{
		{RunID: "r1", TS: now, Stage: progress.StageCycleStart},
		{RunID: "r1", TS: now, Stage: progress.StageCycleStart},
		company(progress.StageCompanyDone, 2*time.Second),
		company(progress.StageCompanyError, time.Second),
		company(progress.StageBudgetSkip, 0),
		{RunID: "r1", TS: now, Stage: progress.StageLead, ClientID: "a", CompanyID: "c", Score: 82},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.cyclesStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.companies.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.companies.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.companies.WithLabelValues("budget_skip")))
	require.Equal(t, 2, testutil.CollectAndCount(sink.companyRuntime, "leadwatch_cycle_company_seconds"))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r1", TS: now, Stage: progress.StageCycleDone, Dur: time.Minute},
		{RunID: "r1", TS: now, Stage: progress.StageCycleDone, Dur: time.Minute},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesRunning))
	require.Equal(t, 1, testutil.CollectAndCount(sink.cycleRuntime, "leadwatch_cycle_runtime_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
