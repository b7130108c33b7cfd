// Package logger provides the zap based logging surface shared by every
// netdisco package.
//
// Components receive a Logger through their constructors and derive
// component scoped children with Named and With. Code that has no logger
// injected can use the package-level functions in global.go.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for logging operations
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)

	// Named returns a child logger whose name is suffixed with name.
	Named(name string) Logger
	// With returns a child logger that always carries fields.
	With(fields ...zap.Field) Logger

	Sync() error
}

type zapLogger struct {
	*zap.Logger
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{Logger: l.Logger.Named(name)}
}

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{Logger: l.Logger.With(fields...)}
}

// Wrap adapts an existing *zap.Logger.
func Wrap(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{Logger: l}
}

// Unwrap returns the underlying *zap.Logger, or a no-op logger when l was
// not created by this package.
func Unwrap(l Logger) *zap.Logger {
	if zl, ok := l.(*zapLogger); ok {
		return zl.Logger
	}
	return zap.NewNop()
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return Wrap(zap.NewNop())
}

// New creates a new logger with the given configuration and installs it as
// the global logger.
func New(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.MergeDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, ErrInvalidLevel(cfg.Level, err)
	}

	zl, err := build(cfg, level, 0)
	if err != nil {
		return nil, ErrBuildLogger(err)
	}

	// package-level helpers sit one frame above the caller
	setGlobalLoggerInternal(zl.WithOptions(zap.AddCallerSkip(1)))

	return Wrap(zl), nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func build(cfg *Config, level zapcore.Level, callerSkip int) (*zap.Logger, error) {
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Encoding == "console",
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderConfig(),
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	}
	return zapConfig.Build(
		zap.AddCallerSkip(callerSkip),
		zap.AddStacktrace(zapcore.DPanicLevel),
	)
}
