// Package mongo provides a MongoDB implementation of store.ContactStore.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/chips/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Compile-time check
var _ store.ContactStore = (*Store)(nil)

// Store implements store.ContactStore using MongoDB.
// Contact IDs come from a per-collection sequence in the counters collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	counters   *mongo.Collection
	opts       *options
	connected  int32
	logger     *slog.Logger
}

// contactDoc is the stored document. name_lower and destination_keys are
// derived fields backing sort order and lookups.
type contactDoc struct {
	ID                int64     `bson:"_id"`
	DisplayName       string    `bson:"display_name"`
	NameLower         string    `bson:"name_lower"`
	Destinations      []string  `bson:"destinations"`
	DestinationKeys   []string  `bson:"destination_keys"`
	PhotoThumbnailURI string    `bson:"photo_thumbnail_uri,omitempty"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func newContactDoc(c *store.Contact, id int64, now time.Time) *contactDoc {
	keys := make([]string, len(c.Destinations))
	for i, d := range c.Destinations {
		keys[i] = store.NormalizeDestination(d)
	}
	return &contactDoc{
		ID:                id,
		DisplayName:       c.DisplayName,
		NameLower:         strings.ToLower(c.DisplayName),
		Destinations:      c.Destinations,
		DestinationKeys:   keys,
		PhotoThumbnailURI: c.PhotoThumbnailURI,
		UpdatedAt:         now,
	}
}

func (d *contactDoc) toContact() *store.Contact {
	return &store.Contact{
		ID:                d.ID,
		DisplayName:       d.DisplayName,
		Destinations:      d.Destinations,
		PhotoThumbnailURI: d.PhotoThumbnailURI,
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

// New creates a new MongoDB store with the provided client.
// Call Connect() to initialize the collections and indexes.
func New(client *mongo.Client, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

// Connect pings the server and ensures indexes exist.
func (s *Store) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 1 {
		return store.ErrAlreadyConnected
	}

	if s.client == nil {
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}

	db := s.client.Database(s.opts.database)
	s.collection = db.Collection(s.opts.collection)
	s.counters = db.Collection(s.opts.counters)

	if err := s.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	atomic.StoreInt32(&s.connected, 1)
	s.logger.Info("connected to MongoDB", "database", s.opts.database, "collection", s.opts.collection)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the MongoDB client.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "destination_keys", Value: 1}}},
		{Keys: bson.D{
			{Key: "name_lower", Value: 1},
			{Key: "_id", Value: 1},
		}},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// nextID increments and returns the collection's ID sequence.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := mongoopts.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(mongoopts.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": s.opts.collection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return counter.Seq, nil
}

// SaveContact inserts a contact with a zero ID or replaces an existing one.
func (s *Store) SaveContact(ctx context.Context, c *store.Contact) (*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)

	if c.ID == 0 {
		id, err := s.nextID(ctx)
		if err != nil {
			return nil, err
		}
		doc := newContactDoc(c, id, now)
		if _, err := s.collection.InsertOne(ctx, doc); err != nil {
			return nil, fmt.Errorf("insert contact: %w", err)
		}
		return doc.toContact(), nil
	}

	doc := newContactDoc(c, c.ID, now)
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": c.ID}, doc)
	if err != nil {
		return nil, fmt.Errorf("replace contact: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, store.ErrNotFound
	}
	return doc.toContact(), nil
}

// GetContact returns the contact with the given ID.
func (s *Store) GetContact(ctx context.Context, id int64) (*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc contactDoc
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return doc.toContact(), nil
}

// DeleteContact removes a contact.
func (s *Store) DeleteContact(ctx context.Context, id int64) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id <= 0 {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SearchContacts returns contacts whose display name, any word of it, or any
// destination starts with query, ordered by display name then ID.
// A limit of zero or less returns every match.
func (s *Store) SearchContacts(ctx context.Context, query string, limit int) ([]*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	opts := mongoopts.Find().SetSort(bson.D{
		{Key: "name_lower", Value: 1},
		{Key: "_id", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, searchFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []contactDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}

	contacts := make([]*store.Contact, len(docs))
	for i := range docs {
		contacts[i] = docs[i].toContact()
	}
	return contacts, nil
}

// FindByDestination returns the oldest contact owning destination.
func (s *Store) FindByDestination(ctx context.Context, destination string) (*store.Contact, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	key := store.NormalizeDestination(destination)
	if key == "" {
		return nil, store.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc contactDoc
	opts := mongoopts.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	if err := s.collection.FindOne(ctx, bson.M{"destination_keys": key}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find by destination: %w", err)
	}
	return doc.toContact(), nil
}

// searchFilter matches a lower-cased query as a prefix of the name, of a
// later name word, or of a destination key. The query is quoted, and every
// pattern is anchored.
func searchFilter(q string) bson.M {
	quoted := regexp.QuoteMeta(q)
	return bson.M{"$or": bson.A{
		bson.M{"name_lower": bson.Regex{Pattern: "^" + quoted}},
		bson.M{"name_lower": bson.Regex{Pattern: `\s` + quoted}},
		bson.M{"destination_keys": bson.Regex{Pattern: "^" + quoted}},
	}}
}
