package chips

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/chips"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the chips service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	// Suggestions
	suggestLatency metric.Float64Histogram
	suggestCount   metric.Int64Counter
	suggestErrors  metric.Int64Counter

	// Photo loads
	photoLatency metric.Float64Histogram
	photoCount   metric.Int64Counter
	photoErrors  metric.Int64Counter
	photoBytes   metric.Int64Histogram
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	o.suggestLatency, err = meter.Float64Histogram(
		"chips.suggest.duration",
		metric.WithDescription("Duration of suggestion lookups"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.suggestCount, err = meter.Int64Counter(
		"chips.suggest.count",
		metric.WithDescription("Number of suggestion lookups"),
	)
	if err != nil {
		return err
	}

	o.suggestErrors, err = meter.Int64Counter(
		"chips.suggest.errors",
		metric.WithDescription("Number of failed suggestion lookups"),
	)
	if err != nil {
		return err
	}

	o.photoLatency, err = meter.Float64Histogram(
		"chips.photo.load.duration",
		metric.WithDescription("Duration of photo loads, including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.photoCount, err = meter.Int64Counter(
		"chips.photo.load.count",
		metric.WithDescription("Number of photo loads"),
	)
	if err != nil {
		return err
	}

	o.photoErrors, err = meter.Int64Counter(
		"chips.photo.load.errors",
		metric.WithDescription("Number of failed photo loads"),
	)
	if err != nil {
		return err
	}

	o.photoBytes, err = meter.Int64Histogram(
		"chips.photo.load.size",
		metric.WithDescription("Size of loaded photos"),
		metric.WithUnit("By"),
	)
	return err
}

// startSpan starts a new span if tracing is enabled.
// The returned func ends the span, recording err if non-nil.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordSuggest records suggestion lookup metrics.
func (o *otelInstrumentation) recordSuggest(ctx context.Context, duration time.Duration, resultCount int, err error) {
	if !o.metricsEnabled {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Int("result_count", resultCount),
	)
	o.suggestLatency.Record(ctx, duration.Seconds(), attrs)
	o.suggestCount.Add(ctx, 1, attrs)
	if err != nil {
		o.suggestErrors.Add(ctx, 1, attrs)
	}
}

// recordPhotoLoad records photo load metrics.
func (o *otelInstrumentation) recordPhotoLoad(ctx context.Context, duration time.Duration, scheme string, size int, err error) {
	if !o.metricsEnabled {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("scheme", scheme),
	)
	o.photoLatency.Record(ctx, duration.Seconds(), attrs)
	o.photoCount.Add(ctx, 1, attrs)
	if err != nil {
		o.photoErrors.Add(ctx, 1, attrs)
		return
	}
	o.photoBytes.Record(ctx, int64(size), attrs)
}
