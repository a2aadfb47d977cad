package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	// ZapLogger wraps a *zap.Logger for runtime logging.
	ZapLogger struct {
		l *zap.Logger
	}

	// OtelMetrics wraps an OpenTelemetry meter for counters, timers, and gauges.
	// Instruments are created lazily and cached by name since the OTEL metric
	// API does not allow re-registering an instrument under the same name.
	OtelMetrics struct {
		meter    metric.Meter
		counters map[string]metric.Float64Counter
		gauges   map[string]metric.Float64Gauge
	}

	// OtelTracer wraps an OpenTelemetry tracer.
	OtelTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewZapLogger wraps l as a Logger. A nil l is replaced with zap.NewNop().
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{l: l}
}

func (z *ZapLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	z.l.Debug(msg, toZapFields(keyvals)...)
}

func (z *ZapLogger) Info(_ context.Context, msg string, keyvals ...any) {
	z.l.Info(msg, toZapFields(keyvals)...)
}

func (z *ZapLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	z.l.Warn(msg, toZapFields(keyvals)...)
}

func (z *ZapLogger) Error(_ context.Context, msg string, keyvals ...any) {
	z.l.Error(msg, toZapFields(keyvals)...)
}

func toZapFields(keyvals []any) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}

// NewOtelMetrics constructs a Metrics recorder backed by the global OTEL
// MeterProvider under the given instrumentation name.
func NewOtelMetrics(instrumentationName string) Metrics {
	return &OtelMetrics{
		meter:    otel.Meter(instrumentationName),
		counters: make(map[string]metric.Float64Counter),
		gauges:   make(map[string]metric.Float64Gauge),
	}
}

func (m *OtelMetrics) IncCounter(name string, value float64, labels ...string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), value, metric.WithAttributes(labelsToAttrs(labels)...))
}

func (m *OtelMetrics) RecordTimer(name string, d time.Duration, labels ...string) {
	m.RecordGauge(name+"_ms", float64(d.Milliseconds()), labels...)
}

func (m *OtelMetrics) RecordGauge(name string, value float64, labels ...string) {
	g, ok := m.gauges[name]
	if !ok {
		var err error
		g, err = m.meter.Float64Gauge(name)
		if err != nil {
			return
		}
		m.gauges[name] = g
	}
	g.Record(context.Background(), value, metric.WithAttributes(labelsToAttrs(labels)...))
}

// NewOtelTracer constructs a Tracer backed by the global OTEL TracerProvider.
func NewOtelTracer(instrumentationName string) Tracer {
	return &OtelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t *OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, &otelSpan{span: span}
}

func (s *otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *otelSpan) AddEvent(name string, keyvals ...any) {
	s.span.AddEvent(name, trace.WithAttributes(labelsToAttrs(stringifyKeyvals(keyvals))...))
}

func (s *otelSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }

func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

func stringifyKeyvals(keyvals []any) []string {
	out := make([]string, 0, len(keyvals))
	for _, v := range keyvals {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		default:
			continue
		}
	}
	return out
}
