package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/docket/store"
)

// DefaultCollection is the collection queue documents live in.
const DefaultCollection = "docket_queues"

// Compile-time check.
var _ store.Store = (*Store)(nil)

// Store is a grove-backed MongoDB implementation of store.Store.
// The caller owns the *grove.DB lifecycle; Store never closes it.
type Store struct {
	db      *grove.DB
	mdb     *mongodriver.MongoDB
	col     *mongod.Collection
	colName string
	logger  *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(s *Store) {
		s.colName = name
	}
}

// New creates a new MongoDB store. The caller owns the db lifecycle -- the
// Store will not close it on Close(). Conditional updates run on the
// driver collection unwrapped from db.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		mdb:     mongodriver.Unwrap(db),
		colName: DefaultCollection,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.col = s.mdb.Collection(s.colName)
	return s
}

// DB returns the underlying *grove.DB for advanced usage.
func (s *Store) DB() *grove.DB {
	return s.db
}

// Collection returns the underlying collection for advanced usage.
func (s *Store) Collection() *mongod.Collection {
	return s.col
}

// Migrate creates the queue collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := s.col.Indexes().CreateMany(ctx, migrationIndexes())
	if err != nil {
		return fmt.Errorf("docket/mongo: migrate %s indexes: %w", s.col.Name(), err)
	}
	s.logger.Debug("mongo indexes ensured",
		slog.String("collection", s.col.Name()),
		slog.Any("indexes", names),
	)
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("docket/mongo: ping: %w", err)
	}
	return nil
}

// Close is a no-op because the caller owns the *grove.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if mongod.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(err.Error(), "E11000")
}

// migrationIndexes returns the index definitions for the queue collection.
func migrationIndexes() []mongod.IndexModel {
	return []mongod.IndexModel{
		// One document per queue name.
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// Positional job updates filter on name + jobs.id.
		{Keys: bson.D{
			{Key: "name", Value: 1},
			{Key: "jobs.id", Value: 1},
		}},
		// Lock conditions filter on name + locks.id.
		{Keys: bson.D{
			{Key: "name", Value: 1},
			{Key: "locks.id", Value: 1},
		}},
	}
}
