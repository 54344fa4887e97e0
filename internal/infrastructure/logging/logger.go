package logging

import (
	"errors"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the sink operations the orchestrator needs.
type Logger struct {
	*zap.Logger
	perf  *zap.Logger
	flush func() error
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
	// File, when set, receives logs through a buffered writer. Entries reach
	// the file when the buffer fills, on the flush interval, or on Flush.
	File          string
	FlushInterval time.Duration
}

// DefaultConfig returns production-ready logger configuration.
// Logs go to stderr: stdout carries controller traffic in stdio mode.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Development: false,
		OutputPaths: []string{"stderr"},
	}
}

// DevelopmentConfig returns development logger configuration.
func DevelopmentConfig() Config {
	return Config{
		Level:       "debug",
		Development: true,
		OutputPaths: []string{"stderr"},
	}
}

// New creates a new logger with the provided configuration.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if cfg.File != "" {
		return newBuffered(cfg, level)
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     false,
		DisableStacktrace: !cfg.Development,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return Wrap(logger), nil
}

// newBuffered builds a logger writing through a BufferedWriteSyncer.
func newBuffered(cfg Config, level zapcore.Level) (*Logger, error) {
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	ws := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(f),
		FlushInterval: cfg.FlushInterval,
	}

	var enc zapcore.Encoder
	if cfg.Development {
		enc = zapcore.NewConsoleEncoder(encoderConfig(true))
	} else {
		enc = zapcore.NewJSONEncoder(encoderConfig(false))
	}

	core := zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(level))
	logger := zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))

	l := Wrap(logger)
	l.flush = func() error {
		if err := ws.Sync(); err != nil {
			return err
		}
		return f.Sync()
	}
	return l, nil
}

// Wrap adapts an existing zap logger.
func Wrap(logger *zap.Logger) *Logger {
	l := &Logger{Logger: logger, perf: logger.Named("perf")}
	l.flush = func() error {
		err := logger.Sync()
		// Terminals and pipes behind stderr cannot be fsynced
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
	return l
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		// Fallback to no-op logger
		return NewNop()
	}
	return logger
}

// NewDevelopment creates a logger with development configuration.
func NewDevelopment() *Logger {
	logger, err := New(DevelopmentConfig())
	if err != nil {
		// Fallback to no-op logger
		return NewNop()
	}
	return logger
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return Wrap(zap.NewNop())
}

// Perf records a timing or progress line at debug level under the "perf"
// logger name.
func (l *Logger) Perf(msg string, fields ...zap.Field) {
	l.perf.Debug(msg, fields...)
}

// Named returns a child logger that keeps the perf channel and flush sink.
func (l *Logger) Named(name string) *Logger {
	child := l.Logger.Named(name)
	return &Logger{Logger: child, perf: child.Named("perf"), flush: l.flush}
}

// With returns a child logger with fields attached.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, perf: l.perf.With(fields...), flush: l.flush}
}

// Flush writes buffered entries to the durable sink.
func (l *Logger) Flush() error {
	return l.flush()
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// encodingFormat returns encoding format based on environment.
func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

// encoderConfig returns encoder configuration based on environment.
func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
