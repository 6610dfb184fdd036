package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger emits JSON lines through zap, for runs whose output is collected
// by a log pipeline rather than read on a terminal.
type ZapLogger struct {
	base  *zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger builds a production zap logger writing to output.
func NewZapLogger(level Level, output string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.DisableStacktrace = true
	if output == "" {
		output = "stderr"
	}
	cfg.OutputPaths = []string{output}
	cfg.ErrorOutputPaths = []string{"stderr"}

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{base: base, level: cfg.Level}, nil
}

// NewZapLoggerFrom wraps an existing zap logger, mainly for tests using zaptest/observer.
func NewZapLoggerFrom(base *zap.Logger, level Level) *ZapLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapLogger{base: base, level: zap.NewAtomicLevelAt(toZapLevel(level))}
}

func (l *ZapLogger) Debug(format string, args ...interface{}) { l.printf(LevelDebug, format, args) }
func (l *ZapLogger) Info(format string, args ...interface{})  { l.printf(LevelInfo, format, args) }
func (l *ZapLogger) Warn(format string, args ...interface{})  { l.printf(LevelWarn, format, args) }
func (l *ZapLogger) Error(format string, args ...interface{}) { l.printf(LevelError, format, args) }

func (l *ZapLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, LevelDebug, msg, fields)
}

func (l *ZapLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, LevelInfo, msg, fields)
}

func (l *ZapLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, LevelWarn, msg, fields)
}

func (l *ZapLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, LevelError, msg, fields)
}

func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{base: l.base.With(toZapFields(fields)...), level: l.level}
}

func (l *ZapLogger) SetLevel(level Level) { l.level.SetLevel(toZapLevel(level)) }

func (l *ZapLogger) GetLevel() Level { return fromZapLevel(l.level.Level()) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

func (l *ZapLogger) printf(level Level, format string, args []interface{}) {
	if !l.level.Enabled(toZapLevel(level)) {
		return
	}
	l.base.Sugar().Logf(toZapLevel(level), format, args...)
}

func (l *ZapLogger) write(ctx context.Context, level Level, msg string, fields []Field) {
	zl := toZapLevel(level)
	if !l.level.Enabled(zl) {
		return
	}
	all := append(traceFieldsFromContext(ctx), fields...)
	if ce := l.base.Check(zl, msg); ce != nil {
		ce.Write(toZapFields(all)...)
	}
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
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

func fromZapLevel(level zapcore.Level) Level {
	switch {
	case level <= zapcore.DebugLevel:
		return LevelDebug
	case level == zapcore.InfoLevel:
		return LevelInfo
	case level == zapcore.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}
