package otel

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rbaliyan/chips/store"
	"github.com/rbaliyan/chips/store/memory"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestStore(t *testing.T) (*Store, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()

	s, err := New(memory.NewPhotoStore(),
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))),
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, recorder, reader
}

// sumOf returns the total of an int64 counter, or -1 if absent.
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, not an int64 sum", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return -1
}

func TestUploadLoadDelete(t *testing.T) {
	ctx := context.Background()
	s, recorder, reader := newTestStore(t)

	uri, err := s.Upload(ctx, "jane.png", "image/png", strings.NewReader("thumbnail"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	rc, err := s.Load(ctx, uri)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "thumbnail" {
		t.Errorf("unexpected content %q", data)
	}

	// The load span stays open until the reader is closed.
	if n := len(recorder.Ended()); n != 1 {
		t.Errorf("expected 1 ended span before close, got %d", n)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	if err := s.Delete(ctx, uri); err != nil {
		t.Fatalf("delete: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	for i, want := range []string{"photo.upload", "photo.load", "photo.delete"} {
		if spans[i].Name() != want {
			t.Errorf("span %d: expected %s, got %s", i, want, spans[i].Name())
		}
		if spans[i].Status().Code != codes.Ok {
			t.Errorf("span %s: expected ok status, got %v", want, spans[i].Status())
		}
	}

	if got := sumOf(t, reader, "photo.upload.bytes"); got != int64(len("thumbnail")) {
		t.Errorf("upload bytes: got %d", got)
	}
	if got := sumOf(t, reader, "photo.load.bytes"); got != int64(len("thumbnail")) {
		t.Errorf("load bytes: got %d", got)
	}
	if got := sumOf(t, reader, "photo.load.count"); got != 1 {
		t.Errorf("load count: got %d", got)
	}
	if got := sumOf(t, reader, "photo.delete.errors"); got > 0 {
		t.Errorf("unexpected delete errors: %d", got)
	}
}

func TestLoadErrorRecorded(t *testing.T) {
	ctx := context.Background()
	s, recorder, reader := newTestStore(t)

	_, err := s.Load(ctx, "mem://missing/a.png")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one errored span, got %d", len(spans))
	}
	if got := sumOf(t, reader, "photo.load.errors"); got != 1 {
		t.Errorf("load errors: got %d", got)
	}
}

func TestDisabledInstrumentation(t *testing.T) {
	s, err := New(memory.NewPhotoStore(), WithTracing(false), WithMetrics(false))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.tracer != nil || s.metrics != nil {
		t.Error("expected no tracer or metrics")
	}

	ctx := context.Background()
	uri, err := s.Upload(ctx, "a.png", "image/png", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	rc, err := s.Load(ctx, uri)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rc.Close()
}

func TestScheme(t *testing.T) {
	tests := map[string]string{
		"s3://b/k":   "s3",
		"gs://b/k":   "gs",
		"mem://id/a": "mem",
		"no-scheme":  "unknown",
		"%zz://bad":  "unknown",
	}
	for uri, want := range tests {
		if got := scheme(uri); got != want {
			t.Errorf("scheme(%q) = %q, want %q", uri, got, want)
		}
	}
}
