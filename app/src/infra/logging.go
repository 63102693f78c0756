package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Logger writes one JSON object per line: timestamp, level, message, service and trace_id.
type Logger struct {
	zl *zap.Logger
}

func NewLogger(out io.Writer, service string) *Logger {
	return NewLeveledLogger(out, service, "info")
}

// NewLeveledLogger builds a logger that drops entries below level (debug, info, warn, error).
func NewLeveledLogger(out io.Writer, service, level string) *Logger {
	if out == nil {
		out = io.Discard
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(out)),
		ParseLevel(level),
	)

	zl := zap.New(core)
	if service = strings.TrimSpace(service); service != "" {
		zl = zl.With(zap.String("service", service))
	}
	return &Logger{zl: zl}
}

// ParseLevel maps a textual level to zap, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

func utcTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339Nano))
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, strings.TrimSpace(id))
}

func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

func (l *Logger) Debugf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zapcore.DebugLevel, fmt.Sprintf(format, v...))
}

func (l *Logger) Printf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zapcore.InfoLevel, fmt.Sprintf(format, v...))
}

func (l *Logger) Println(ctx context.Context, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zapcore.InfoLevel, strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *Logger) Errorf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zapcore.ErrorLevel, fmt.Sprintf(format, v...))
}

func (l *Logger) Fatalf(ctx context.Context, format string, v ...any) {
	if l == nil {
		os.Exit(1)
	}
	l.log(ctx, zapcore.FatalLevel, fmt.Sprintf(format, v...))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zl.Sync()
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string) {
	ce := l.zl.Check(level, msg)
	if ce == nil {
		return
	}
	if traceID := CorrelationIDFromContext(ctx); traceID != "" {
		ce.Write(zap.String("trace_id", traceID))
		return
	}
	ce.Write()
}
