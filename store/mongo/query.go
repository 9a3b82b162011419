package mongo

import (
	"context"
	"fmt"
	"sort"

	"github.com/rbaliyan/privmsg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// GetByHash retrieves a record by hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"hash": hash}).Decode(&doc); err != nil {
		if err = mapError(err); store.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return doc.toMessage()
}

// Find returns a page of matching records, newest first.
func (s *Store) Find(ctx context.Context, q store.Query) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	filter := buildFilter(q)
	total, err := s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	findOpts := mongoopts.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if q.Limit > 0 {
		findOpts.SetLimit(int64(q.Limit + 1))
	}
	if q.Offset > 0 {
		findOpts.SetSkip(int64(q.Offset))
	}

	docs, err := s.findDocs(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}

	hasMore := q.Limit > 0 && len(docs) > q.Limit
	if hasMore {
		docs = docs[:q.Limit]
	}
	messages := make([]*store.Message, 0, len(docs))
	for i := range docs {
		m, err := docs[i].toMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return &store.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}

func (s *Store) findDocs(ctx context.Context, filter any, opts *mongoopts.FindOptionsBuilder) ([]messageDoc, error) {
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return docs, nil
}

// Count returns the number of matching records.
func (s *Store) Count(ctx context.Context, q store.Query) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	n, err := s.messages.CountDocuments(ctx, buildFilter(q))
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// FindSingleton returns the sender's record in one of statuses.
func (s *Store) FindSingleton(ctx context.Context, senderID string, statuses []store.Status) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	filter := bson.M{"sender_id": senderID, "status": bson.M{"$in": statusCodes(statuses)}}
	var doc messageDoc
	if err := s.messages.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err = mapError(err); store.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("find singleton: %w", err)
	}
	return doc.toMessage()
}

// Correspondents returns distinct counterparts of userID's conversational messages.
func (s *Store) Correspondents(ctx context.Context, userID string, sent bool) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	self, other := "recipient_id", "sender_id"
	if sent {
		self, other = "sender_id", "recipient_id"
	}
	filter := bson.M{
		self:     userID,
		other:    bson.M{"$exists": true, "$ne": ""},
		"status": bson.M{"$in": statusCodes(store.SentStatuses)},
	}
	return distinctStrings(ctx, s.messages, other, filter)
}

// distinctStrings returns the sorted distinct values of a string field.
func distinctStrings(ctx context.Context, coll *mongo.Collection, field string, filter any) ([]string, error) {
	var ids []string
	if err := coll.Distinct(ctx, field, filter).Decode(&ids); err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	sort.Strings(ids)
	return ids, nil
}
