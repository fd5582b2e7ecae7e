// Package logging is the structured logger shared by every package: a small
// Logger interface backed by zap, with request and tenant ids carried in the
// context.
package logging

import (
	"context"
	"sync"
)

// Field is one key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	WithFields(fields ...Field) Logger
	// WithContext attaches the request and tenant ids stored in ctx.
	WithContext(ctx context.Context) Logger
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// SetGlobalLogger replaces the logger used by the package-level helpers and
// by OrGlobal.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger, creating an info-level stdout
// logger on first use when none was installed.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewZapLogger(Config{})
	}
	return globalLogger
}

// OrGlobal returns logger, or the global logger tagged with component when logger is nil.
func OrGlobal(logger Logger, component string) Logger {
	if logger != nil {
		return logger
	}
	return GetGlobalLogger().WithFields(String("component", component))
}

func Info(msg string, fields ...Field) {
	GetGlobalLogger().Info(msg, fields...)
}

func Error(msg string, err error, fields ...Field) {
	GetGlobalLogger().Error(msg, err, fields...)
}

// WithContext returns the global logger carrying the ids stored in ctx.
func WithContext(ctx context.Context) Logger {
	return GetGlobalLogger().WithContext(ctx)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Err attaches err under the "error" key.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
