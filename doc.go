// Package chips turns partially typed recipient text into the rows of an
// auto-complete list ("chips") and fills in contact thumbnails.
//
// An entry is either a person row or a separator. A resolved contact yields
// one top-level entry for its primary destination (email address or phone
// number) plus a second-level entry for each further destination, divided by
// SepWithinGroup; contacts are divided by SepNormal. Text that matches no
// contact but is a valid address becomes a fake entry with no contact ID.
// Photo bytes are the only mutable part of an entry and may be set from any
// goroutine.
//
// # Basic Usage
//
//	// Create in-memory stores for testing
//	contacts := memory.New()
//	photos := memory.NewPhotoStore()
//
//	svc, err := chips.NewService(
//	    chips.WithContactStore(contacts),
//	    chips.WithPhotoStore(photos),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	entries, err := svc.Suggest(ctx, "jo")
//	// render entries, then fetch thumbnails in the background
//	_ = svc.LoadPhotosAsync(ctx, entries)
//
// # Service Operations
//
//   - Suggest: Entry list for a partial query
//   - Resolve: Entry for one complete address
//   - SaveContact/DeleteContact: Directory writes, photo upload included
//   - LoadPhoto/LoadPhotos/LoadPhotosAsync: Thumbnail fetching with retries
//
// # Storage Backends
//
// Contact stores:
//   - MongoDB (store/mongo) - accepts *mongo.Client
//   - PostgreSQL (store/postgres) - accepts *sqlx.DB
//   - In-memory (store/memory) - for testing
//
// Photo stores live under store/photo: S3, GCS, a local file cache, a Redis
// cache, OpenTelemetry instrumentation and a scheme router. The config
// package assembles them from CHIPS_* environment variables.
//
// # Events
//
// Photo loads publish typed events through github.com/rbaliyan/event/v3.
// Pass WithRedisClient or WithEventTransport to deliver them; otherwise
// they are dropped. Events are registered during Connect():
//
//	events := svc.Events()
//	events.PhotoLoaded.Subscribe(ctx, handler)
//
// Available events:
//   - PhotoLoaded - a thumbnail was stored in an entry
//   - PhotoFailed - a thumbnail load gave up
//
// For in-process redraws, WithPhotoLoadedHandler runs a callback on the
// fetching goroutine instead.
package chips
