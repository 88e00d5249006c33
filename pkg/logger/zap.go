package logger

import (
	"go.uber.org/zap"
)

// ZapAdapter bridges a zap.SugaredLogger to the Logger interface so
// applications already standardized on zap can reuse their logger here.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
	level LogLevel
}

// NewZapAdapter creates a Logger backed by the given zap logger.
func NewZapAdapter(l *zap.Logger, level LogLevel) Logger {
	return &ZapAdapter{
		sugar: l.Sugar(),
		level: level,
	}
}

// LogMode sets the log level and returns a new logger instance.
func (z *ZapAdapter) LogMode(level LogLevel) Logger {
	return &ZapAdapter{sugar: z.sugar, level: level}
}

// Info logs an informational message.
func (z *ZapAdapter) Info(msg string, args ...any) {
	if z.level >= Info {
		z.sugar.Infow(msg, args...)
	}
}

// Warn logs a warning message.
func (z *ZapAdapter) Warn(msg string, args ...any) {
	if z.level >= Warn {
		z.sugar.Warnw(msg, args...)
	}
}

// Error logs an error message.
func (z *ZapAdapter) Error(msg string, args ...any) {
	if z.level >= Error {
		z.sugar.Errorw(msg, args...)
	}
}

// Debug logs a debug message.
func (z *ZapAdapter) Debug(msg string, args ...any) {
	if z.level >= Debug {
		z.sugar.Debugw(msg, args...)
	}
}
