// Package telemetry owns the observability plumbing: zerolog logging
// with trace correlation, and OTEL metrics exported through a
// Prometheus registry.
package telemetry

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry carrying a
// context, and flips the span status on errors.
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// NewLogger creates the service logger. Structured JSON by default;
// pass a console writer for interactive use.
func NewLogger(service string, out io.Writer, debug bool) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})
}

// NewConsoleLogger creates a human-readable logger for CLI runs.
func NewConsoleLogger(debug bool) zerolog.Logger {
	return NewLogger("kerava", zerolog.ConsoleWriter{Out: os.Stderr}, debug)
}
