// Package logging provides structured logging with correlation ID propagation.
//
// Loggers are backed by zap. The API keeps fields as maps so call sites read
// the same regardless of the encoder:
//
//	logger.Infof("drop expired", map[string]any{"uid": d.UID(), "oid": d.OID()})
package logging

import (
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general information messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func levelFromZap(l zapcore.Level) Level {
	switch l {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.InfoLevel:
		return LevelInfo
	case zapcore.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the output format for log messages.
type Format int

const (
	// FormatJSON outputs logs as JSON objects.
	FormatJSON Format = iota
	// FormatText outputs logs as human-readable text.
	FormatText
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatJSON
	}
}

// Logger provides structured logging with configurable levels and formats.
// Loggers derived with With or WithCorrelationID share the parent's level.
type Logger struct {
	z             *zap.Logger
	level         zap.AtomicLevel
	correlationID string
}

// Config holds configuration for a Logger.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddCaller  bool
	CallerSkip int
}

// New creates a new Logger with the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		CallerKey:      "caller",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	switch cfg.Format {
	case FormatText:
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	level := zap.NewAtomicLevelAt(cfg.Level.zap())
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), level)

	// Skip the Logger method frame so callers see their own file:line.
	opts := []zap.Option{zap.AddCallerSkip(1 + cfg.CallerSkip)}
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller())
	}

	return &Logger{z: zap.New(core, opts...), level: level}
}

// DefaultLogger returns a logger with default settings.
func DefaultLogger() *Logger {
	return New(Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{z: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

// SetLevel updates the minimum logging level.
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zap())
}

// GetLevel returns the current logging level.
func (l *Logger) GetLevel() Level {
	return levelFromZap(l.level.Level())
}

// Zap returns the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// With returns a new Logger with the given fields added.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{
		z:             l.z.With(zapFields(fields)...),
		level:         l.level,
		correlationID: l.correlationID,
	}
}

// WithCorrelationID returns a new Logger with the correlation ID set.
func (l *Logger) WithCorrelationID(id string) *Logger {
	return &Logger{
		z:             l.z.With(zap.String("correlationId", id)),
		level:         l.level,
		correlationID: id,
	}
}

// CorrelationID returns the correlation ID attached to the logger, if any.
func (l *Logger) CorrelationID() string {
	return l.correlationID
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.z.Debug(msg)
}

// Debugf logs a debug message with fields.
func (l *Logger) Debugf(msg string, fields map[string]any) {
	if ce := l.z.Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.z.Info(msg)
}

// Infof logs an info message with fields.
func (l *Logger) Infof(msg string, fields map[string]any) {
	if ce := l.z.Check(zapcore.InfoLevel, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.z.Warn(msg)
}

// Warnf logs a warning message with fields.
func (l *Logger) Warnf(msg string, fields map[string]any) {
	if ce := l.z.Check(zapcore.WarnLevel, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

// Error logs an error message.
func (l *Logger) Error(msg string) {
	l.z.Error(msg)
}

// Errorf logs an error message with fields.
func (l *Logger) Errorf(msg string, fields map[string]any) {
	if ce := l.z.Check(zapcore.ErrorLevel, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

// zapFields converts a field map to zap fields in key order.
func zapFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
