// Package telemetry defines the logging, metrics, and tracing facade. The
// manifest loader, IPFS fetcher, executors, tool registry, and scheduler
// accept a Logger (and most a Metrics) and fall back to the no-op
// implementations when none are configured, so unit tests never need a
// live collector. chainindex, contentcache, and mcpgateway take none of
// these, and no component takes a Tracer.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log messages keyed by alternating key/value pairs.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges tagged with label pairs.
	Metrics interface {
		IncCounter(name string, value float64, labels ...string)
		RecordTimer(name string, d time.Duration, labels ...string)
		RecordGauge(name string, value float64, labels ...string)
	}

	// Tracer starts spans. Span follows the OpenTelemetry span lifecycle.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	}

	// Span is the subset of trace.Span used by this module's components.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, keyvals ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)
