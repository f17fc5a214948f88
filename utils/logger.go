package utils

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled printf-style logging throughout the application.
// It is backed by a zap SugaredLogger so structured fields can be attached with With.
type Logger struct {
	s *zap.SugaredLogger
}

// NewLogger creates a console Logger at info level writing to stdout.
func NewLogger() *Logger {
	return NewLoggerWith("info", "console")
}

// NewLoggerWith creates a Logger for the given level (debug, info, warn, error)
// and format (console, json).
func NewLoggerWith(level, format string) *Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	var enc zapcore.Encoder
	if strings.ToLower(format) == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), parseLevel(level))
	return &Logger{s: zap.New(core, zap.AddStacktrace(zapcore.FatalLevel)).Sugar()}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

// Zap exposes the underlying logger for libraries that want one.
func (l *Logger) Zap() *zap.SugaredLogger { return l.s }

func (l *Logger) Info(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...any) { l.s.Errorf(format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.s.Debugf(format, args...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() { _ = l.s.Sync() }

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
