package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a standard interface for logging.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// ZapLogger is a wrapper around a zap sugared logger.
type ZapLogger struct {
	*zap.SugaredLogger
	level zapcore.Level
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger creates a new logger instance based on the specified level.
func NewLogger(level string) Logger {
	lvl := ParseLevel(level)

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.DisableStacktrace = true

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		zl = zap.NewNop()
	}

	return &ZapLogger{SugaredLogger: zl.Sugar(), level: lvl}
}

// Silent reports whether progress output should be suppressed, which is
// the case whenever info-level messages are not emitted.
func (l *ZapLogger) Silent() bool {
	return l.level > zapcore.InfoLevel
}

// Nop returns a logger that discards all output. Useful in tests.
func Nop() Logger {
	return &ZapLogger{SugaredLogger: zap.NewNop().Sugar(), level: zapcore.InfoLevel}
}
