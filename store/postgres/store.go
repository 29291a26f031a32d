// Package postgres provides a PostgreSQL implementation of store.ContactStore.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/chips/store"
)

// Compile-time check
var _ store.ContactStore = (*Store)(nil)

// Store implements store.ContactStore using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// contactRow is the table layout. destination_keys holds the normalized
// destinations and backs lookups and prefix search.
type contactRow struct {
	ID                int64          `db:"id"`
	DisplayName       string         `db:"display_name"`
	Destinations      pq.StringArray `db:"destinations"`
	PhotoThumbnailURI string         `db:"photo_thumbnail_uri"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r *contactRow) toContact() *store.Contact {
	return &store.Contact{
		ID:                r.ID,
		DisplayName:       r.DisplayName,
		Destinations:      []string(r.Destinations),
		PhotoThumbnailURI: r.PhotoThumbnailURI,
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

const columns = `id, display_name, destinations, photo_thumbnail_uri, updated_at`

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Connect pings the database and creates the table and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "table", s.opts.table)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	t := s.opts.table
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			destinations TEXT[] NOT NULL DEFAULT '{}',
			destination_keys TEXT[] NOT NULL DEFAULT '{}',
			photo_thumbnail_uri TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, t)
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_name ON %s(lower(display_name), id)`, t, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_destination_keys ON %s USING GIN(destination_keys)`, t, t),
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}
	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
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

	var row contactRow
	var err error
	if c.ID == 0 {
		query := fmt.Sprintf(`
			INSERT INTO %s (display_name, destinations, destination_keys, photo_thumbnail_uri, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING %s
		`, s.opts.table, columns)
		err = s.db.GetContext(ctx, &row, query,
			c.DisplayName, pq.Array(c.Destinations), pq.Array(destinationKeys(c.Destinations)), c.PhotoThumbnailURI)
	} else {
		query := fmt.Sprintf(`
			UPDATE %s
			SET display_name = $2, destinations = $3, destination_keys = $4,
			    photo_thumbnail_uri = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING %s
		`, s.opts.table, columns)
		err = s.db.GetContext(ctx, &row, query,
			c.ID, c.DisplayName, pq.Array(c.Destinations), pq.Array(destinationKeys(c.Destinations)), c.PhotoThumbnailURI)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("save contact: %w", err)
	}
	return row.toContact(), nil
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

	var row contactRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.opts.table)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return row.toContact(), nil
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

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.opts.table), id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
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

	prefix, word := searchPatterns(q)
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	sqlQuery := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE display_name ILIKE $1 ESCAPE '\'
		   OR display_name ~* $2
		   OR EXISTS (SELECT 1 FROM unnest(destination_keys) AS k WHERE k LIKE $1 ESCAPE '\')
		ORDER BY lower(display_name), id
		LIMIT $3
	`, columns, s.opts.table)

	var rows []contactRow
	if err := s.db.SelectContext(ctx, &rows, sqlQuery, prefix, word, lim); err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}

	contacts := make([]*store.Contact, len(rows))
	for i := range rows {
		contacts[i] = rows[i].toContact()
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

	var row contactRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE $1 = ANY(destination_keys) ORDER BY id LIMIT 1`, columns, s.opts.table)
	if err := s.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find by destination: %w", err)
	}
	return row.toContact(), nil
}

// destinationKeys normalizes destinations for the lookup column.
func destinationKeys(destinations []string) []string {
	keys := make([]string, len(destinations))
	for i, d := range destinations {
		keys[i] = store.NormalizeDestination(d)
	}
	return keys
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// searchPatterns returns the LIKE pattern for a name or destination prefix
// and the regular expression for a later word of the display name. Words
// are split on any whitespace.
func searchPatterns(q string) (prefix, word string) {
	return escapeLike(q) + "%", `\s` + regexp.QuoteMeta(q)
}
