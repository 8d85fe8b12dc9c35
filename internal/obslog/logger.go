// Package obslog provides the structured logger used throughout the
// engine. It wraps zerolog the way a long-running service logger
// wraps a library logger: one base logger is constructed per run and
// handed down explicitly, never reached through a package global.
package obslog

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin, explicitly-passed wrapper around zerolog.Logger.
// It is never a package-level singleton: an Executor receives one at
// construction and threads it through.
type Logger struct {
	base zerolog.Logger
}

// New builds a Logger writing JSON records with RFC3339Nano
// timestamps to w. Pass os.Stderr for process default behaviour.
func New(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(w).With().Timestamp().Logger()
	return Logger{base: base}
}

// WithRunID returns a derived Logger that attaches run_id to every
// subsequent record, mirroring how the reference loggers pin
// identifying fields once and reuse the derived logger everywhere.
func (l Logger) WithRunID(runID string) Logger {
	return Logger{base: l.base.With().Str("run_id", runID).Logger()}
}

// WithFields returns a derived Logger with the given key/value pairs
// attached permanently. kv must alternate string keys and values.
func (l Logger) WithFields(kv ...any) Logger {
	ctx := l.base.With()
	ctx = applyFields(ctx, kv)
	return Logger{base: ctx.Logger()}
}

func (l Logger) Debug(ctx context.Context, msg string, kv ...any) { l.emit(l.base.Debug(), msg, kv) }
func (l Logger) Info(ctx context.Context, msg string, kv ...any)  { l.emit(l.base.Info(), msg, kv) }
func (l Logger) Warn(ctx context.Context, msg string, kv ...any)  { l.emit(l.base.Warn(), msg, kv) }
func (l Logger) Error(ctx context.Context, msg string, kv ...any) { l.emit(l.base.Error(), msg, kv) }

func (l Logger) emit(event *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, kv[i+1])
	}
	event.Msg(msg)
}

func applyFields(ctx zerolog.Context, kv []any) zerolog.Context {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return ctx
}

// Nop returns a Logger that discards all records, for tests and
// callers that do not need observability.
func Nop() Logger {
	return Logger{base: zerolog.Nop()}
}
