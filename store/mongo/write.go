package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbaliyan/privmsg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Deliver performs a send in a multi-document transaction. Message ids are
// reserved before the transaction so the counter document is not part of
// the write set.
func (s *Store) Deliver(ctx context.Context, d store.Delivery) (*store.DeliveryResult, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if d.Empty() {
		return nil, store.ErrEmptyDelivery
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	docs := make([]*messageDoc, 0, len(d.Messages))
	if len(d.Messages) > 0 {
		first, err := s.allocateIDs(ctx, len(d.Messages))
		if err != nil {
			return nil, err
		}
		for i, data := range d.Messages {
			doc, err := newMessageDoc(first+int64(i), data)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("%w: start session: %v", store.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	out, err := sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		result := &store.DeliveryResult{Messages: make([]*store.Message, 0, len(docs))}

		if ref := d.ConsumeDraft; ref != nil {
			res, err := s.messages.DeleteOne(ctx, bson.M{
				"hash":      ref.Hash,
				"sender_id": ref.SenderID,
				"status":    int(store.StatusDraft),
			})
			if err != nil {
				return nil, fmt.Errorf("consume draft: %w", err)
			}
			if res.DeletedCount == 0 {
				return nil, store.ErrConflict
			}
		}

		for _, doc := range docs {
			if _, err := s.messages.InsertOne(ctx, doc); err != nil {
				return nil, fmt.Errorf("insert message: %w", mapError(err))
			}
			m, err := doc.toMessage()
			if err != nil {
				return nil, err
			}
			result.Messages = append(result.Messages, m)
		}

		if err := s.upsertGrants(ctx, d.Grants); err != nil {
			return nil, err
		}

		if ref := d.Answer; ref != nil {
			res, err := s.messages.UpdateOne(ctx,
				bson.M{"hash": ref.Hash, "recipient_id": ref.RecipientID, "status": int(store.StatusRead)},
				bson.M{"$set": bson.M{"status": int(store.StatusAnswered)}},
			)
			if err != nil {
				return nil, fmt.Errorf("mark answered: %w", err)
			}
			result.Answered = res.ModifiedCount > 0
		}
		return result, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || store.IsDuplicateEntry(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return out.(*store.DeliveryResult), nil
}

// CreateMessage inserts a single record.
func (s *Store) CreateMessage(ctx context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	id, err := s.allocateIDs(ctx, 1)
	if err != nil {
		return nil, err
	}
	doc, err := newMessageDoc(id, data)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert message: %w", mapError(err))
	}
	return doc.toMessage()
}

// UpsertDraft inserts or updates the sender's draft with data.Hash.
func (s *Store) UpsertDraft(ctx context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if data.Hash == "" {
		return nil, store.ErrInvalidID
	}
	data.Status = store.StatusDraft

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	params, err := encodeParams(data.Params)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"hash": data.Hash, "sender_id": data.SenderID, "status": int(store.StatusDraft)}
	update := bson.M{"$set": bson.M{
		"recipient_id": data.RecipientID,
		"title":        data.Title,
		"body":         data.Body,
		"context":      data.Context,
		"params":       params,
	}}

	var doc messageDoc
	err = s.messages.FindOneAndUpdate(ctx, filter, update,
		mongoopts.FindOneAndUpdate().SetReturnDocument(mongoopts.After)).Decode(&doc)
	if err == nil {
		return doc.toMessage()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update draft: %w", err)
	}

	// No draft of this sender has the hash: insert. A unique violation means
	// the hash belongs to someone else's record.
	m, err := s.CreateMessage(ctx, data)
	if store.IsDuplicateEntry(err) {
		return nil, store.ErrNotFound
	}
	return m, err
}

// UpsertSingleton inserts or replaces the sender's singleton record.
// A concurrent first insert loses on the partial unique index and is
// retried once as an update.
func (s *Store) UpsertSingleton(ctx context.Context, data store.MessageData, statuses []store.Status) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if !containsStatus(statuses, data.Status) {
		return nil, store.ErrFilterInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	params, err := encodeParams(data.Params)
	if err != nil {
		return nil, err
	}
	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		id, err := s.allocateIDs(ctx, 1)
		if err != nil {
			return nil, err
		}
		filter := bson.M{"sender_id": data.SenderID, "status": bson.M{"$in": statusCodes(statuses)}}
		update := bson.M{
			"$set": bson.M{
				"status":       int(data.Status),
				"recipient_id": data.RecipientID,
				"title":        data.Title,
				"body":         data.Body,
				"context":      data.Context,
				"params":       params,
			},
			"$setOnInsert": bson.M{
				"_id":        id,
				"hash":       data.Hash,
				"created_at": createdAt,
			},
		}
		var doc messageDoc
		err = s.messages.FindOneAndUpdate(ctx, filter, update,
			mongoopts.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mongoopts.After)).Decode(&doc)
		if err == nil {
			return doc.toMessage()
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("upsert singleton: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("upsert singleton: %w", mapError(lastErr))
}

// DeleteSingleton removes the sender's singleton record.
func (s *Store) DeleteSingleton(ctx context.Context, senderID string, statuses []store.Status) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.messages.DeleteMany(ctx, bson.M{"sender_id": senderID, "status": bson.M{"$in": statusCodes(statuses)}})
	if err != nil {
		return false, fmt.Errorf("delete singleton: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// UpdateStatus applies a conditional transition.
func (s *Store) UpdateStatus(ctx context.Context, u store.StatusUpdate) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	filter := bson.M{"hash": u.Hash, "status": bson.M{"$in": statusCodes(u.From)}}
	if u.RecipientID != "" {
		filter["recipient_id"] = u.RecipientID
	}
	res, err := s.messages.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": int(u.To)}})
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// HardDelete removes the sender's record with the given hash and status.
func (s *Store) HardDelete(ctx context.Context, hash, senderID string, status store.Status) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.messages.DeleteOne(ctx, bson.M{"hash": hash, "sender_id": senderID, "status": int(status)})
	if err != nil {
		return false, fmt.Errorf("hard delete: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// MarkAllRead moves all Unread records for recipientID to Read.
func (s *Store) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.messages.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "status": int(store.StatusUnread)},
		bson.M{"$set": bson.M{"status": int(store.StatusRead)}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.ModifiedCount, nil
}

func containsStatus(statuses []store.Status, s store.Status) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
