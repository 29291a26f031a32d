package chips

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/rbaliyan/chips/retry"
	"github.com/rbaliyan/chips/store/memory"
)

func TestNewOptions(t *testing.T) {
	t.Run("returns defaults without options", func(t *testing.T) {
		opts := newOptions()

		if opts.maxSuggestions != DefaultMaxSuggestions {
			t.Errorf("expected maxSuggestions %v, got %v", DefaultMaxSuggestions, opts.maxSuggestions)
		}
		if opts.maxQueryLength != DefaultMaxQueryLength {
			t.Errorf("expected maxQueryLength %v, got %v", DefaultMaxQueryLength, opts.maxQueryLength)
		}
		if !opts.fakeEntries {
			t.Error("expected fake entries enabled")
		}
		if opts.maxPhotoSize != DefaultMaxPhotoSize {
			t.Errorf("expected maxPhotoSize %v, got %v", DefaultMaxPhotoSize, opts.maxPhotoSize)
		}
		if opts.maxConcurrentFetches != DefaultMaxConcurrentFetches {
			t.Errorf("expected maxConcurrentFetches %v, got %v", DefaultMaxConcurrentFetches, opts.maxConcurrentFetches)
		}
		if opts.fetchTimeout != DefaultFetchTimeout {
			t.Errorf("expected fetchTimeout %v, got %v", DefaultFetchTimeout, opts.fetchTimeout)
		}
		if opts.shutdownTimeout != DefaultShutdownTimeout {
			t.Errorf("expected shutdownTimeout %v, got %v", DefaultShutdownTimeout, opts.shutdownTimeout)
		}
		if opts.serviceName != "chips" {
			t.Errorf("expected serviceName chips, got %q", opts.serviceName)
		}
		if opts.tracingEnabled || opts.metricsEnabled {
			t.Error("expected telemetry disabled by default")
		}
		if opts.logger == nil || opts.onEventFailure == nil || opts.fetchRetry.IsRetryable == nil {
			t.Error("expected logger, failure handler and retry classifier set")
		}
	})

	t.Run("applies options", func(t *testing.T) {
		logger := slog.Default()
		contacts := memory.New()
		opts := newOptions(
			WithContactStore(contacts),
			WithLogger(logger),
			WithMaxSuggestions(3),
			WithMaxQueryLength(20),
			WithFakeEntries(false),
			WithMaxPhotoSize(512),
			WithMaxConcurrentFetches(8),
			WithFetchTimeout(time.Second),
			WithShutdownTimeout(5*time.Second),
			WithServiceName("composer"),
			WithEventErrorsFatal(true),
		)

		if opts.contactStore != contacts || opts.logger != logger {
			t.Error("expected store and logger applied")
		}
		if opts.maxSuggestions != 3 || opts.maxQueryLength != 20 || opts.fakeEntries {
			t.Errorf("suggestion options not applied: %+v", opts)
		}
		if opts.maxPhotoSize != 512 || opts.maxConcurrentFetches != 8 || opts.fetchTimeout != time.Second {
			t.Errorf("photo options not applied: %+v", opts)
		}
		if opts.shutdownTimeout != 5*time.Second || opts.serviceName != "composer" || !opts.eventErrorsFatal {
			t.Errorf("service options not applied: %+v", opts)
		}
	})

	t.Run("ignores invalid values", func(t *testing.T) {
		opts := newOptions(
			WithResolver(nil),
			WithContactStore(nil),
			WithPhotoStore(nil),
			WithLogger(nil),
			WithMaxSuggestions(0),
			WithMaxQueryLength(-1),
			WithMaxPhotoSize(0),
			WithMaxConcurrentFetches(-2),
			WithFetchTimeout(0),
			WithServiceName(""),
			WithPhotoLoadedHandler(nil),
			WithEventPublishFailureHandler(nil),
			WithTracerProvider(nil),
			WithMeterProvider(nil),
			WithEventTransport(nil),
			WithRedisClient(nil),
		)
		if opts.resolver != nil || opts.contactStore != nil || opts.photoStore != nil || opts.logger == nil {
			t.Error("nil dependencies must be ignored")
		}
		if opts.maxSuggestions != DefaultMaxSuggestions || opts.maxQueryLength != DefaultMaxQueryLength {
			t.Error("non-positive suggestion limits must be ignored")
		}
		if opts.maxPhotoSize != DefaultMaxPhotoSize || opts.maxConcurrentFetches != DefaultMaxConcurrentFetches {
			t.Error("non-positive photo limits must be ignored")
		}
		if opts.fetchTimeout != DefaultFetchTimeout || opts.serviceName != "chips" {
			t.Error("zero timeout and empty name must be ignored")
		}
		if opts.onPhotoLoaded != nil || opts.onEventFailure == nil {
			t.Error("nil callbacks must be ignored")
		}
	})

	t.Run("shutdown timeout has a floor", func(t *testing.T) {
		opts := newOptions(WithShutdownTimeout(time.Millisecond))
		if opts.shutdownTimeout != MinShutdownTimeout {
			t.Errorf("expected %v, got %v", MinShutdownTimeout, opts.shutdownTimeout)
		}
	})

	t.Run("retry classifier is always ours", func(t *testing.T) {
		opts := newOptions(WithFetchRetry(retry.Config{
			MaxRetries:  1,
			IsRetryable: func(error) bool { return true },
		}))
		if opts.fetchRetry.MaxRetries != 1 {
			t.Errorf("expected MaxRetries 1, got %d", opts.fetchRetry.MaxRetries)
		}
		if opts.fetchRetry.IsRetryable(ErrInvalidPhoto) {
			t.Error("expected invalid photos to stay permanent")
		}
	})
}

func TestNotifyEventFailure(t *testing.T) {
	t.Run("calls the handler", func(t *testing.T) {
		var gotName string
		var gotErr error
		opts := newOptions(WithEventPublishFailureHandler(func(name string, err error) {
			gotName, gotErr = name, err
		}))
		cause := errors.New("boom")
		opts.notifyEventFailure("PhotoLoaded", cause)
		if gotName != "PhotoLoaded" || gotErr != cause {
			t.Errorf("handler got %q, %v", gotName, gotErr)
		}
	})

	t.Run("recovers from a panicking handler", func(t *testing.T) {
		opts := newOptions(WithEventPublishFailureHandler(func(string, error) {
			panic("handler bug")
		}))
		opts.notifyEventFailure("PhotoFailed", errors.New("boom"))
	})
}
