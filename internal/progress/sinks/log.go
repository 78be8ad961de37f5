package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/leadwatch/internal/progress"
)

// LogSink writes progress events as structured logs. Cycle and error events
// log at info; per-signal noise logs at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		switch evt.Stage {
		case progress.StageSignal, progress.StageCompanyStart:
			level = zapcore.DebugLevel
		case progress.StageCompanyError, progress.StageCycleError:
			level = zapcore.WarnLevel
		}
		ce := s.logger.Check(level, "progress event")
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.ClientID != "" {
			fields = append(fields, zap.String("client_id", evt.ClientID), zap.String("company_id", evt.CompanyID))
		}
		if evt.Scout != "" {
			fields = append(fields, zap.String("scout", evt.Scout))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Signals > 0 || evt.Leads > 0 {
			fields = append(fields, zap.Int("signals", evt.Signals), zap.Int("leads", evt.Leads))
		}
		if evt.Stage == progress.StageLead {
			fields = append(fields, zap.Int("score", evt.Score))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
