package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/codes"

	"github.com/modnet-labs/registry-scheduler/telemetry"
)

func TestNoopLogger(t *testing.T) {
	l := telemetry.NewNoopLogger()
	assert.NotPanics(t, func() {
		l.Debug(context.Background(), "debug", "k", "v")
		l.Info(context.Background(), "info")
		l.Warn(context.Background(), "warn", "k", 1)
		l.Error(context.Background(), "error", "k", nil)
	})
}

func TestNoopMetrics(t *testing.T) {
	m := telemetry.NewNoopMetrics()
	assert.NotPanics(t, func() {
		m.IncCounter("calls", 1, "tool", "x")
		m.RecordTimer("latency", 5*time.Millisecond)
		m.RecordGauge("queue_depth", 3)
	})
}

func TestNoopTracer(t *testing.T) {
	tr := telemetry.NewNoopTracer()
	ctx, span := tr.Start(context.Background(), "op")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.AddEvent("tick")
		span.SetStatus(codes.Ok, "done")
		span.RecordError(nil)
		span.End()
	})
}

func TestZapLoggerNilIsSafe(t *testing.T) {
	l := telemetry.NewZapLogger(nil)
	assert.NotPanics(t, func() {
		l.Info(context.Background(), "hello", "key", "value")
	})
}

func TestOtelMetricsCachesInstruments(t *testing.T) {
	m := telemetry.NewOtelMetrics("test")
	assert.NotPanics(t, func() {
		m.IncCounter("requests_total", 1, "route", "/tools")
		m.IncCounter("requests_total", 2, "route", "/tools")
		m.RecordGauge("inflight", 4)
	})
}
