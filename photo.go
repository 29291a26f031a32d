package chips

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rbaliyan/chips/retry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// photo is a thumbnail read from a photo store.
type photo struct {
	data        []byte
	contentType string
}

func isImage(mt *mimetype.MIME) bool {
	return strings.HasPrefix(mt.String(), "image/")
}

// LoadPhoto fetches the thumbnail of p into its photo slot.
//
// Entries without a thumbnail URI are left alone. Transient store errors are
// retried; a missing or invalid photo is not. On failure the slot keeps its
// previous value, a PhotoFailed event is published and a *PhotoFetchError is
// returned. On success the bytes are stored, PhotoLoaded is published and the
// photo-loaded handler runs.
func (s *service) LoadPhoto(ctx context.Context, p *Person) (retErr error) {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if p == nil || p.PhotoThumbnailURI() == nil {
		return nil
	}
	if s.photos == nil {
		return ErrPhotoStoreNotConfigured
	}

	u := p.PhotoThumbnailURI()
	uri := u.String()

	ctx, cancel := context.WithTimeout(ctx, s.opts.fetchTimeout)
	defer cancel()

	start := time.Now()
	size := 0
	ctx, endSpan := s.otel.startSpan(ctx, "chips.LoadPhoto",
		attribute.Int64("contact_id", p.ContactID()),
		attribute.String("scheme", u.Scheme),
	)
	defer func() {
		endSpan(retErr)
		s.otel.recordPhotoLoad(ctx, time.Since(start), u.Scheme, size, retErr)
	}()

	ph, err := retry.DoValue(ctx, s.opts.fetchRetry, func(ctx context.Context) (photo, error) {
		return s.fetchPhoto(ctx, uri)
	})
	if err != nil {
		fetchErr := &PhotoFetchError{
			ContactID:   p.ContactID(),
			Destination: p.Destination(),
			URI:         uri,
			Attempts:    retry.Attempts(err),
			Err:         err,
		}
		s.logger.Warn("photo load failed",
			"contact_id", p.ContactID(), "uri", uri, "attempts", fetchErr.Attempts, "error", err)
		s.publishPhotoFailed(ctx, fetchErr)
		return fetchErr
	}

	p.SetPhotoBytes(ph.data)
	size = len(ph.data)
	s.logger.Debug("photo loaded", "contact_id", p.ContactID(), "uri", uri, "size", size)

	pubErr := s.events.PhotoLoaded.Publish(ctx, PhotoLoadedEvent{
		ContactID:   p.ContactID(),
		Destination: p.Destination(),
		URI:         uri,
		ContentType: ph.contentType,
		Size:        size,
		LoadedAt:    time.Now().UTC(),
	})

	s.opts.notifyPhotoLoaded(p)

	if pubErr != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{Event: "PhotoLoaded", URI: uri, Err: pubErr}
		}
		s.opts.notifyEventFailure("PhotoLoaded", pubErr)
	}
	return nil
}

// fetchPhoto reads one thumbnail, enforcing the size limit and an image type.
func (s *service) fetchPhoto(ctx context.Context, uri string) (photo, error) {
	rc, err := s.photos.Load(ctx, uri)
	if err != nil {
		return photo{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.opts.maxPhotoSize+1))
	if err != nil {
		return photo{}, fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > s.opts.maxPhotoSize {
		return photo{}, fmt.Errorf("%w: more than %d bytes", ErrPhotoTooLarge, s.opts.maxPhotoSize)
	}
	if len(data) == 0 {
		return photo{}, fmt.Errorf("%w: empty", ErrInvalidPhoto)
	}
	mt := mimetype.Detect(data)
	if !isImage(mt) {
		return photo{}, fmt.Errorf("%w: detected %s", ErrInvalidPhoto, mt.String())
	}
	return photo{data: data, contentType: mt.String()}, nil
}

func (s *service) publishPhotoFailed(ctx context.Context, fetchErr *PhotoFetchError) {
	if err := s.events.PhotoFailed.Publish(ctx, PhotoFailedEvent{
		ContactID:   fetchErr.ContactID,
		Destination: fetchErr.Destination,
		URI:         fetchErr.URI,
		Attempts:    fetchErr.Attempts,
		Error:       fetchErr.Err.Error(),
		FailedAt:    time.Now().UTC(),
	}); err != nil {
		s.opts.notifyEventFailure("PhotoFailed", err)
	}
}

// photoTargets returns the top-level persons that have a thumbnail URI but
// no photo yet. Duplicated pointers are visited once.
func photoTargets(entries []Entry) []*Person {
	seen := make(map[*Person]struct{})
	var out []*Person
	for _, p := range Persons(entries) {
		if !p.IsFirstLevel() || p.PhotoThumbnailURI() == nil || p.HasPhoto() {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// LoadPhotos loads every missing thumbnail in entries, at most
// MaxConcurrentFetches at a time, and returns the joined failures. Loads share
// the service-wide limit with LoadPhotosAsync, so Close waits for them.
func (s *service) LoadPhotos(ctx context.Context, entries []Entry) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	targets := photoTargets(entries)
	if len(targets) == 0 {
		return nil
	}
	if s.photos == nil {
		return ErrPhotoStoreNotConfigured
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(s.opts.maxConcurrentFetches)
	for _, p := range targets {
		g.Go(func() error {
			if err := s.fetchSem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			defer s.fetchSem.Release(1)
			if err := s.LoadPhoto(ctx, p); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// LoadPhotosAsync starts loading every missing thumbnail in entries and
// returns immediately. Loads share the service-wide concurrency limit, and
// failures are reported through events and the log. ctx bounds the loads.
func (s *service) LoadPhotosAsync(ctx context.Context, entries []Entry) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	targets := photoTargets(entries)
	if len(targets) == 0 {
		return nil
	}
	if s.photos == nil {
		return ErrPhotoStoreNotConfigured
	}

	for _, p := range targets {
		go func() {
			if err := s.fetchSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer s.fetchSem.Release(1)
			// Close may have started while this load was queued.
			if !s.IsConnected() {
				return
			}
			_ = s.LoadPhoto(ctx, p)
		}()
	}
	return nil
}
