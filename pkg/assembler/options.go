package assembler

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Assembler) {
		if log != nil {
			a.log = log
		}
	}
}

// WithObserver sets the observer. Defaults to NoopObserver.
func WithObserver(o Observer) Option {
	return func(a *Assembler) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithTracer sets the tracer used for the per-assembly span.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assembler) {
		if t != nil {
			a.tracer = t
		}
	}
}
