// Package mongo provides a MongoDB implementation of store.Store.
//
// Deliver and ReplaceIgnoreList use multi-document transactions, so the
// server must run as a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rbaliyan/privmsg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	messages *mongo.Collection
	ignores  *mongo.Collection
	contacts *mongo.Collection
	counters *mongo.Collection

	opts      *options
	connected int32
	logger    *slog.Logger
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

// Connect initializes the database, collections, and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.client == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("mongo ping: %w", err)
	}

	s.db = s.client.Database(s.opts.database)
	s.messages = s.db.Collection(s.opts.collection)
	s.ignores = s.db.Collection(s.opts.ignoreCollection)
	s.contacts = s.db.Collection(s.opts.contactCollection)
	s.counters = s.db.Collection(s.opts.counterCollection)

	if err := s.ensureIndexes(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure indexes: %w", err)
	}

	s.logger.Info("connected to MongoDB", "database", s.opts.database, "collection", s.opts.collection)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the MongoDB client.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureIndexes creates required indexes.
func (s *Store) ensureIndexes(ctx context.Context) error {
	messageIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "hash", Value: 1}},
			Options: mongoopts.Index().SetUnique(true),
		},
		{Keys: bson.D{
			{Key: "recipient_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "sender_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		// Singletons: one signature and one out-of-office record per sender.
		{
			Keys: bson.D{{Key: "sender_id", Value: 1}},
			Options: mongoopts.Index().
				SetName("sender_signature_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": int(store.StatusSignature)}),
		},
		{
			Keys: bson.D{{Key: "sender_id", Value: 1}},
			Options: mongoopts.Index().
				SetName("sender_out_of_office_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": bson.M{
					"$gte": int(store.StatusOutOfOfficeInactive),
					"$lte": int(store.StatusOutOfOfficeActive),
				}}),
		},
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("message indexes: %w", err)
	}

	ignoreIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "blocker_id", Value: 1}, {Key: "blocked_id", Value: 1}},
			Options: mongoopts.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "blocked_id", Value: 1}}},
	}
	if _, err := s.ignores.Indexes().CreateMany(ctx, ignoreIndexes); err != nil {
		return fmt.Errorf("ignore indexes: %w", err)
	}

	contactIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "granter_id", Value: 1}, {Key: "grantee_id", Value: 1}},
			Options: mongoopts.Index().SetUnique(true),
		},
	}
	if _, err := s.contacts.Indexes().CreateMany(ctx, contactIndexes); err != nil {
		return fmt.Errorf("contact indexes: %w", err)
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

// allocateIDs reserves n sequential message ids and returns the first.
func (s *Store) allocateIDs(ctx context.Context, n int) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": s.opts.collection},
		bson.M{"$inc": bson.M{"seq": int64(n)}},
		mongoopts.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mongoopts.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate ids: %w", err)
	}
	return counter.Seq - int64(n) + 1, nil
}

// mapError translates driver errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", store.ErrDuplicateEntry, err)
	}
	return err
}
