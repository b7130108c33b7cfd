package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	globalMu     sync.RWMutex
)

func setGlobalLoggerInternal(l *zap.Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// getGlobalLogger returns the global logger, building a default one on first use.
func getGlobalLogger() *zap.Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = buildDefaultGlobal()
	}
	return globalLogger
}

func buildDefaultGlobal() *zap.Logger {
	l, err := build(DefaultConfig(), zapcore.InfoLevel, 1)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetGlobalLogger sets the global logger.
// The provided logger should be created with AddCallerSkip(1) if you want
// correct caller information when using package-level functions.
func SetGlobalLogger(l *zap.Logger) {
	setGlobalLoggerInternal(l)
}

// Global returns the global logger wrapped as a Logger.
func Global() Logger {
	return Wrap(getGlobalLogger())
}

// Debug logs a message at debug level using the global logger.
func Debug(msg string, fields ...zap.Field) {
	getGlobalLogger().Debug(msg, fields...)
}

// Info logs a message at info level using the global logger.
func Info(msg string, fields ...zap.Field) {
	getGlobalLogger().Info(msg, fields...)
}

// Warn logs a message at warn level using the global logger.
func Warn(msg string, fields ...zap.Field) {
	getGlobalLogger().Warn(msg, fields...)
}

// Error logs a message at error level using the global logger.
func Error(msg string, fields ...zap.Field) {
	getGlobalLogger().Error(msg, fields...)
}

// Sync flushes any buffered log entries from the global logger.
func Sync() error {
	return getGlobalLogger().Sync()
}
