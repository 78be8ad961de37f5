// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and the minimum level.
type Config struct {
	Development bool
	// Level is a zap level name such as "debug" or "warn". Empty keeps the preset.
	Level string
	// Service is attached to every entry when set.
	Service string
}

// New builds a zap.Logger. Development loggers are human readable; production
// loggers emit JSON with the field names Cloud Logging recognizes.
func New(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.TimeKey = "ts"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.DisableStacktrace = false
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.LevelKey = "severity"
		zcfg.EncoderConfig.MessageKey = "message"
		zcfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		zcfg.EncoderConfig.EncodeLevel = severityEncoder
	}
	if lvl := strings.TrimSpace(cfg.Level); lvl != "" {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if cfg.Service != "" {
		logger = logger.With(zap.String("service", cfg.Service))
	}
	return logger, nil
}

// severityEncoder writes Cloud Logging severity names.
func severityEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(Severity(l))
}

// Severity maps a zap level onto a Cloud Logging severity.
func Severity(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		return "CRITICAL"
	case zapcore.FatalLevel:
		return "ALERT"
	default:
		return "DEFAULT"
	}
}
