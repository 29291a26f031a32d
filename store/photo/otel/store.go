// Package otel provides OpenTelemetry instrumentation for photo stores.
package otel

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rbaliyan/chips/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/chips/store/photo/otel"
)

// Operation names, used in span names and metric names.
const (
	opUpload = "upload"
	opLoad   = "load"
	opDelete = "delete"
)

// instruments are the metrics of one operation.
type instruments struct {
	latency metric.Float64Histogram
	count   metric.Int64Counter
	errors  metric.Int64Counter
	bytes   metric.Int64Counter // nil for delete
}

// Store wraps a PhotoStore with tracing and metrics.
// Metrics are attributed by URI scheme rather than full URI.
type Store struct {
	backend store.PhotoStore
	opts    *options
	tracer  trace.Tracer
	metrics map[string]*instruments
}

var _ store.PhotoStore = (*Store)(nil)

// New creates an instrumented store wrapping backend.
func New(backend store.PhotoStore, opts ...Option) (*Store, error) {
	o := &options{
		tracingEnabled: true,
		metricsEnabled: true,
		serviceName:    "chips",
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{backend: backend, opts: o}
	if o.tracingEnabled {
		s.tracer = o.tracerProvider.Tracer(instrumentationName)
	}
	if o.metricsEnabled {
		if err := s.initMetrics(o.meterProvider); err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}
	return s, nil
}

func (s *Store) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)
	s.metrics = make(map[string]*instruments, 3)

	for _, op := range []string{opUpload, opLoad, opDelete} {
		in := &instruments{}
		var err error

		in.latency, err = meter.Float64Histogram(
			"photo."+op+".duration",
			metric.WithDescription("Duration of photo "+op+" operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return err
		}

		in.count, err = meter.Int64Counter(
			"photo."+op+".count",
			metric.WithDescription("Number of photo "+op+" operations"),
		)
		if err != nil {
			return err
		}

		in.errors, err = meter.Int64Counter(
			"photo."+op+".errors",
			metric.WithDescription("Number of photo "+op+" errors"),
		)
		if err != nil {
			return err
		}

		if op != opDelete {
			in.bytes, err = meter.Int64Counter(
				"photo."+op+".bytes",
				metric.WithDescription("Total photo bytes for "+op),
				metric.WithUnit("By"),
			)
			if err != nil {
				return err
			}
		}

		s.metrics[op] = in
	}
	return nil
}

// Upload stores a photo with tracing and metrics.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	attrs := []attribute.KeyValue{
		attribute.String("photo.content_type", contentType),
		attribute.String("service.name", s.opts.serviceName),
	}
	ctx, span := s.startSpan(ctx, opUpload, append(attrs, attribute.String("photo.filename", filename))...)

	start := time.Now()
	counter := &countingReader{reader: content}
	uri, err := s.backend.Upload(ctx, filename, contentType, counter)

	s.record(ctx, opUpload, time.Since(start), counter.n, err, attrs)
	if span != nil {
		if err == nil {
			span.SetAttributes(attribute.String("photo.uri", uri), attribute.Int64("photo.bytes", counter.n))
		}
		endSpan(span, err)
	}
	return uri, err
}

// Load opens a photo with tracing and metrics. The span ends, and the byte
// count is recorded, when the reader is closed.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	attrs := []attribute.KeyValue{
		attribute.String("photo.scheme", scheme(uri)),
		attribute.String("service.name", s.opts.serviceName),
	}
	ctx, span := s.startSpan(ctx, opLoad, append(attrs, attribute.String("photo.uri", uri))...)

	start := time.Now()
	rc, err := s.backend.Load(ctx, uri)
	if err != nil {
		s.record(ctx, opLoad, time.Since(start), 0, err, attrs)
		if span != nil {
			endSpan(span, err)
		}
		return nil, err
	}

	return &instrumentedReader{
		ReadCloser: rc,
		store:      s,
		ctx:        ctx,
		span:       span,
		start:      start,
		attrs:      attrs,
	}, nil
}

// Delete removes a photo with tracing and metrics.
func (s *Store) Delete(ctx context.Context, uri string) error {
	attrs := []attribute.KeyValue{
		attribute.String("photo.scheme", scheme(uri)),
		attribute.String("service.name", s.opts.serviceName),
	}
	ctx, span := s.startSpan(ctx, opDelete, append(attrs, attribute.String("photo.uri", uri))...)

	start := time.Now()
	err := s.backend.Delete(ctx, uri)

	s.record(ctx, opDelete, time.Since(start), 0, err, attrs)
	if span != nil {
		endSpan(span, err)
	}
	return err
}

func (s *Store) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, "photo."+op,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *Store) record(ctx context.Context, op string, d time.Duration, n int64, err error, attrs []attribute.KeyValue) {
	in := s.metrics[op]
	if in == nil {
		return
	}
	set := metric.WithAttributes(attrs...)
	in.latency.Record(ctx, d.Seconds(), set)
	in.count.Add(ctx, 1, set)
	if err != nil {
		in.errors.Add(ctx, 1, set)
	}
	if in.bytes != nil && n > 0 {
		in.bytes.Add(ctx, n, set)
	}
}

// scheme returns the URI scheme, or "unknown" if uri does not parse.
func scheme(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return "unknown"
	}
	return u.Scheme
}

// countingReader counts bytes read through it.
type countingReader struct {
	reader io.Reader
	n      int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n += int64(n)
	return n, err
}

// instrumentedReader finishes a load's telemetry on Close.
type instrumentedReader struct {
	io.ReadCloser
	store  *Store
	ctx    context.Context
	span   trace.Span
	start  time.Time
	attrs  []attribute.KeyValue
	n      int64
	closed bool
}

func (r *instrumentedReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *instrumentedReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.ReadCloser.Close()
	r.store.record(r.ctx, opLoad, time.Since(r.start), r.n, err, r.attrs)
	if r.span != nil {
		r.span.SetAttributes(attribute.Int64("photo.bytes", r.n))
		endSpan(r.span, err)
	}
	return err
}
