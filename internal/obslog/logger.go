// Package obslog is the proxy's structured logger: a thin wrapper over
// github.com/rs/zerolog that keeps the teacher's contextual-logger call
// shape (WithField, WithContext, WithError, WithDuration) while delegating
// all encoding to zerolog instead of a hand-rolled JSON writer.
package obslog

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// Config controls the root logger's level and output format.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console-writer output for local dev
	Output     io.Writer
}

// Logger wraps a zerolog.Logger, returning itself from every With* method so
// calls chain the way the teacher's hand-rolled logger did.
type Logger struct {
	z zerolog.Logger
}

// Init builds the root Logger from cfg.
func Init(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	z := zerolog.New(out).With().Timestamp().Logger().Level(level)
	return &Logger{z: z}
}

// WithField returns a Logger with key=value attached to every subsequent
// entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

// WithFields attaches multiple fields at once.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.z.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{z: ctx.Logger()}
}

// WithError attaches err under the "error" key.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{z: l.z.With().Err(err).Logger()}
}

// WithDuration attaches d (in milliseconds) under key.
func (l *Logger) WithDuration(key string, d time.Duration) *Logger {
	return &Logger{z: l.z.With().Dur(key, d).Logger()}
}

// WithContext pulls request_id/correlation_id out of ctx, if present, and
// attaches them.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	out := l
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		out = out.WithField("request_id", reqID)
	}
	if corrID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		out = out.WithField("correlation_id", corrID)
	}
	return out
}

func (l *Logger) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.z.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.z.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.z.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.z.Fatal().Msg(msg) }

type requestIDKey struct{}
type correlationIDKey struct{}

// WithRequestID stores requestID on ctx for later retrieval by WithContext.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// WithCorrelationID stores correlationID on ctx for later retrieval by
// WithContext.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

var global *Logger

// SetGlobal installs l as the package-level logger returned by L().
func SetGlobal(l *Logger) { global = l }

// L returns the global logger bound to ctx's request/correlation IDs, if
// any. Panics if SetGlobal was never called — a missing logger at startup is
// a configuration bug, not a runtime condition to recover from.
func L(ctx context.Context) *Logger {
	if global == nil {
		panic("obslog: SetGlobal was never called")
	}
	return global.WithContext(ctx)
}
