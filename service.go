package chips

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rbaliyan/chips/store"
	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

// Service turns typed text into recipient entries and fills in their photos.
type Service interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool

	// Connect connects the contact store and sets up the event bus.
	Connect(ctx context.Context) error
	// Close waits for background photo loads, then releases connections.
	Close(ctx context.Context) error
	// Events returns per-service event instances.
	Events() *ServiceEvents

	// Suggest returns the entry list for a partially typed recipient.
	// An empty query yields an empty list. When nothing matches and the
	// query is a valid address, the list holds a single fake entry.
	Suggest(ctx context.Context, query string) ([]Entry, error)
	// Resolve turns a complete address into an entry: a top-level entry when
	// a contact owns it, a fake entry otherwise.
	Resolve(ctx context.Context, address string) (*Person, error)

	// SaveContact validates and stores a contact. When photo is non-empty it
	// is uploaded to the photo store and becomes the contact's thumbnail.
	SaveContact(ctx context.Context, c *store.Contact, photo []byte) (*store.Contact, error)
	// DeleteContact removes a contact and its stored photo.
	DeleteContact(ctx context.Context, id int64) error

	// LoadPhoto fetches the thumbnail of p into its photo slot.
	LoadPhoto(ctx context.Context, p *Person) error
	// LoadPhotos loads every missing thumbnail in entries and waits for them.
	LoadPhotos(ctx context.Context, entries []Entry) error
	// LoadPhotosAsync schedules the same work in the background and returns.
	// Close waits for it up to the shutdown timeout.
	LoadPhotosAsync(ctx context.Context, entries []Entry) error
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	resolver ContactResolver
	contacts store.ContactStore
	photos   store.PhotoStore
	logger   *slog.Logger
	opts     *options
	state    int32 // stateDisconnected, stateConnecting, or stateConnected
	otel     *otelInstrumentation
	fetchSem *semaphore.Weighted // bounds background photo loads
	eventBus *event.Bus
	events   *ServiceEvents
}

// NewService creates a new chips service.
// Call Connect() before use.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	resolver := o.resolver
	if resolver == nil {
		if o.contactStore == nil {
			return nil, ErrResolverRequired
		}
		resolver = storeResolver{store: o.contactStore}
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &service{
		resolver: resolver,
		contacts: o.contactStore,
		photos:   o.photoStore,
		logger:   o.logger,
		opts:     o,
		otel:     otelInstr,
		fetchSem: semaphore.NewWeighted(int64(o.maxConcurrentFetches)),
	}, nil
}

// Events returns per-service event instances.
// Nil until Connect succeeds.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

func (s *service) checkConnected() error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Connect connects the contact store and initializes the event bus.
func (s *service) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if s.contacts != nil {
		if err := s.contacts.Connect(ctx); err != nil {
			return fmt.Errorf("connect contact store: %w", err)
		}
	}

	if err := s.initEventBus(ctx); err != nil {
		if s.contacts != nil {
			_ = s.contacts.Close(ctx)
		}
		return fmt.Errorf("init event bus: %w", err)
	}

	success = true
	s.logger.Info("chips service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus creates this service's bus and registers its events on it.
func (s *service) initEventBus(ctx context.Context) error {
	busName := fmt.Sprintf("%s-%d", s.opts.serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}

	events := newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}
	s.eventBus = bus
	s.events = events
	return nil
}

// Close stops accepting work, waits for background photo loads, then
// closes the event bus and the contact store.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Holding every slot means no background load is still running.
	n := int64(s.opts.maxConcurrentFetches)
	s.logger.Info("waiting for in-flight photo loads to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer cancel()
	if err := s.fetchSem.Acquire(shutdownCtx, n); err != nil {
		s.logger.Warn("timeout waiting for photo loads, proceeding with shutdown", "error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.fetchSem.Release(n)
	}

	if s.eventBus != nil {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if s.contacts != nil {
		if err := s.contacts.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close contact store: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Suggest returns the entry list for a partially typed recipient.
func (s *service) Suggest(ctx context.Context, query string) (entries []Entry, retErr error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	q, err := normalizeQuery(query, s.opts.maxQueryLength)
	if err != nil {
		return nil, err
	}
	if q == "" {
		return []Entry{}, nil
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "chips.Suggest", attribute.Int("query_length", len(q)))
	defer func() {
		endSpan(retErr)
		s.otel.recordSuggest(ctx, time.Since(start), len(entries), retErr)
	}()

	contacts, err := s.resolver.Search(ctx, q, s.opts.maxSuggestions)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}

	entries, err = BuildEntries(contacts)
	if err != nil {
		return nil, fmt.Errorf("build entries: %w", err)
	}

	if len(entries) == 0 && s.opts.fakeEntries && IsValidAddress(q) {
		entries = []Entry{NewFakeEntry(q)}
	}

	s.logger.Debug("suggestions built", "query", q, "contacts", len(contacts), "entries", len(entries))
	return entries, nil
}

// Resolve turns a complete address into an entry.
func (s *service) Resolve(ctx context.Context, address string) (*Person, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	addr := strings.TrimSpace(address)
	if addr == "" {
		return nil, &ValidationError{Field: "address", Message: "is empty", Err: ErrInvalidAddress}
	}

	c, err := s.resolver.Lookup(ctx, addr)
	if err == nil {
		return entryForDestination(c, addr)
	}
	if !store.IsNotFound(err) {
		return nil, fmt.Errorf("lookup %q: %w", addr, err)
	}

	if !s.opts.fakeEntries {
		return nil, ErrNotFound
	}
	if err := validateAddress("address", addr); err != nil {
		return nil, err
	}
	return NewFakeEntry(addr), nil
}

// entryForDestination builds a top-level entry for the contact's destination
// matching addr, keeping the contact's spelling of it.
func entryForDestination(c *store.Contact, addr string) (*Person, error) {
	dest := addr
	key := store.NormalizeDestination(addr)
	for _, d := range c.Destinations {
		if store.NormalizeDestination(d) == key {
			dest = d
			break
		}
	}
	p, err := NewTopLevelEntryString(c.DisplayName, dest, c.ID, c.PhotoThumbnailURI)
	if err != nil {
		return nil, fmt.Errorf("contact %d: %w", c.ID, err)
	}
	return p, nil
}

// SaveContact validates and stores a contact, uploading its photo first.
func (s *service) SaveContact(ctx context.Context, c *store.Contact, photo []byte) (*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if s.contacts == nil {
		return nil, ErrContactStoreRequired
	}
	if err := validateContact(c); err != nil {
		return nil, err
	}

	c = c.Clone()
	var previousURI, uploadedURI string

	if len(photo) > 0 {
		if s.photos == nil {
			return nil, ErrPhotoStoreNotConfigured
		}
		mt, err := s.checkPhoto(photo)
		if err != nil {
			return nil, err
		}

		if c.ID != 0 {
			if existing, err := s.contacts.GetContact(ctx, c.ID); err == nil {
				previousURI = existing.PhotoThumbnailURI
			}
		}

		uploadedURI, err = s.photos.Upload(ctx, "thumbnail"+mt.Extension(), mt.String(), bytes.NewReader(photo))
		if err != nil {
			return nil, fmt.Errorf("upload photo: %w", err)
		}
		c.PhotoThumbnailURI = uploadedURI
	}

	saved, err := s.contacts.SaveContact(ctx, c)
	if err != nil {
		if uploadedURI != "" {
			s.deletePhoto(ctx, uploadedURI, "rollback")
		}
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("save contact: %w", err)
	}

	if previousURI != "" && previousURI != uploadedURI {
		s.deletePhoto(ctx, previousURI, "replaced")
	}

	s.logger.Debug("contact saved", "contact_id", saved.ID, "destinations", len(saved.Destinations))
	return saved, nil
}

// checkPhoto enforces the size limit and sniffs an image content type.
func (s *service) checkPhoto(photo []byte) (*mimetype.MIME, error) {
	if int64(len(photo)) > s.opts.maxPhotoSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPhotoTooLarge, len(photo), s.opts.maxPhotoSize)
	}
	mt := mimetype.Detect(photo)
	if !isImage(mt) {
		return nil, fmt.Errorf("%w: detected %s", ErrInvalidPhoto, mt.String())
	}
	return mt, nil
}

// DeleteContact removes a contact, then its photo on a best-effort basis.
func (s *service) DeleteContact(ctx context.Context, id int64) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if s.contacts == nil {
		return ErrContactStoreRequired
	}

	c, err := s.contacts.GetContact(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("get contact: %w", err)
	}

	if err := s.contacts.DeleteContact(ctx, id); err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete contact: %w", err)
	}

	if c.PhotoThumbnailURI != "" {
		s.deletePhoto(ctx, c.PhotoThumbnailURI, "contact deleted")
	}
	return nil
}

// deletePhoto removes a stored photo, logging instead of failing.
// An orphaned file only wastes storage.
func (s *service) deletePhoto(ctx context.Context, uri, reason string) {
	if s.photos == nil {
		return
	}
	if err := s.photos.Delete(ctx, uri); err != nil && !store.IsNotFound(err) {
		s.logger.Warn("failed to delete photo", "uri", uri, "reason", reason, "error", err)
	}
}
