package chips

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/chips/retry"
	"github.com/rbaliyan/chips/store"
	"github.com/rbaliyan/event/v3/transport"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultMaxSuggestions       = 10               // contacts per suggestion list
	DefaultMaxQueryLength       = 256              // characters
	DefaultMaxPhotoSize         = 1 << 20          // 1 MB per thumbnail
	DefaultMaxConcurrentFetches = 4                // photo loads in flight per service
	DefaultFetchTimeout         = 10 * time.Second // per photo, across retries
	DefaultShutdownTimeout      = 30 * time.Second // wait for async photo loads on Close
	MinShutdownTimeout          = 1 * time.Second
)

// PhotoLoadedFunc is called after a photo has been stored in an entry.
// It runs on the fetching goroutine; the renderer typically schedules a
// redraw from it.
type PhotoLoadedFunc func(p *Person)

// options holds service configuration.
type options struct {
	resolver     ContactResolver
	contactStore store.ContactStore
	photoStore   store.PhotoStore
	logger       *slog.Logger

	// Suggestions
	maxSuggestions int
	maxQueryLength int
	fakeEntries    bool

	// Photos
	maxPhotoSize         int64
	maxConcurrentFetches int
	fetchTimeout         time.Duration
	fetchRetry           retry.Config
	onPhotoLoaded        PhotoLoadedFunc

	// Shutdown
	shutdownTimeout time.Duration

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal bool
	eventTransport   transport.Transport
	redisClient      redis.UniversalClient
	onEventFailure   EventPublishFailureFunc
}

// EventPublishFailureFunc is called when a photo event fails to publish and
// event errors are not fatal.
type EventPublishFailureFunc func(eventName string, err error)

// notifyEventFailure runs the failure callback, logging instead of
// propagating a panic from it.
func (o *options) notifyEventFailure(eventName string, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventFailure(eventName, err)
}

// notifyPhotoLoaded runs the photo-loaded callback, logging instead of
// propagating a panic from it.
func (o *options) notifyPhotoLoaded(p *Person) {
	if o.onPhotoLoaded == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in photo loaded handler",
				"contact_id", p.ContactID(),
				"panic", r,
			)
		}
	}()
	o.onPhotoLoaded(p)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:               slog.Default(),
		maxSuggestions:       DefaultMaxSuggestions,
		maxQueryLength:       DefaultMaxQueryLength,
		fakeEntries:          true,
		maxPhotoSize:         DefaultMaxPhotoSize,
		maxConcurrentFetches: DefaultMaxConcurrentFetches,
		fetchTimeout:         DefaultFetchTimeout,
		fetchRetry:           retry.DefaultConfig(),
		shutdownTimeout:      DefaultShutdownTimeout,
		serviceName:          "chips",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.onEventFailure == nil {
		o.onEventFailure = func(eventName string, err error) {
			o.logger.Warn("failed to publish event", "event", eventName, "error", err)
		}
	}
	// Photo loads always classify errors the same way, whatever the caller's retry config.
	o.fetchRetry.IsRetryable = IsRetryableError
	return o
}

// Option configures a Service.
type Option func(*options)

// --- Core Options ---

// WithResolver sets a read-only contact resolver.
// Takes precedence over WithContactStore for lookups.
func WithResolver(r ContactResolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithContactStore sets the contact store. The service connects and closes it,
// resolves against it unless WithResolver is also given, and needs it for
// SaveContact and DeleteContact.
func WithContactStore(s store.ContactStore) Option {
	return func(o *options) {
		if s != nil {
			o.contactStore = s
		}
	}
}

// WithPhotoStore sets the store photos are loaded from and uploaded to.
func WithPhotoStore(s store.PhotoStore) Option {
	return func(o *options) {
		if s != nil {
			o.photoStore = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// --- Suggestion Options ---

// WithMaxSuggestions sets how many contacts a suggestion list holds.
func WithMaxSuggestions(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSuggestions = n
		}
	}
}

// WithMaxQueryLength sets the longest query accepted by Suggest, in characters.
func WithMaxQueryLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxQueryLength = n
		}
	}
}

// WithFakeEntries controls whether unresolved but valid addresses are offered
// as fake entries. Enabled by default.
func WithFakeEntries(enabled bool) Option {
	return func(o *options) {
		o.fakeEntries = enabled
	}
}

// --- Photo Options ---

// WithMaxPhotoSize sets the largest photo accepted, in bytes.
func WithMaxPhotoSize(size int64) Option {
	return func(o *options) {
		if size > 0 {
			o.maxPhotoSize = size
		}
	}
}

// WithMaxConcurrentFetches limits photo loads in flight per service.
func WithMaxConcurrentFetches(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentFetches = n
		}
	}
}

// WithFetchTimeout bounds a single photo load, including retries.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithFetchRetry sets the retry policy for photo loads.
// IsRetryable is always replaced by IsRetryableError.
func WithFetchRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.fetchRetry = cfg
	}
}

// WithPhotoLoadedHandler registers a callback run after each successful photo load.
func WithPhotoLoadedHandler(fn PhotoLoadedFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onPhotoLoaded = fn
		}
	}
}

// WithShutdownTimeout sets how long Close waits for in-flight photo loads.
// Values below MinShutdownTimeout are raised to it.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = max(d, MinShutdownTimeout)
	}
}

// --- OpenTelemetry Options ---

// WithTracing enables or disables tracing. Disabled by default.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables metrics. Disabled by default.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name attribute and event bus prefix.
// Default is "chips".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal makes LoadPhoto fail when the PhotoLoaded event cannot
// be published. The photo is stored in the entry either way.
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport for photo events.
// If neither this nor WithRedisClient is given, events are dropped.
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient publishes photo events to Redis Streams.
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets the callback for non-fatal publish
// failures. Default logs a warning.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventFailure = fn
		}
	}
}
