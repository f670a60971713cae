// Package logging builds the zap-backed loggers used across ev3arm.
package logging

import (
	"github.com/edaniels/golog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLoggerConfig returns the console config shared by the controller and the node.
// Stacktraces are disabled and levels are colored.
func NewLoggerConfig(debug bool) zap.Config {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named logger writing to stdout.
func NewLogger(name string, debug bool) golog.Logger {
	logger, err := NewLoggerConfig(debug).Build()
	if err != nil {
		return golog.NewDevelopmentLogger(name)
	}
	return logger.Sugar().Named(name)
}

// NewNopLogger returns a logger that discards everything. Used while a TUI owns the terminal.
func NewNopLogger() golog.Logger {
	return zap.NewNop().Sugar()
}
