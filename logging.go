package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is replaced in main; tests run with the no-op logger
var logger = zap.NewNop()

// newLogger builds a JSON (production) or console (development) logger.
// Unknown levels fall back to info.
func newLogger(levelName, format string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.EncoderConfig.ConsoleSeparator = "  "
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}
