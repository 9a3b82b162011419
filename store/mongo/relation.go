package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/privmsg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

type ignoreDoc struct {
	BlockerID string    `bson:"blocker_id"`
	BlockedID string    `bson:"blocked_id"`
	CreatedAt time.Time `bson:"created_at"`
}

// ReplaceIgnoreList replaces blockerID's ignore edges in one transaction.
func (s *Store) ReplaceIgnoreList(ctx context.Context, blockerID string, blockedIDs []string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if blockerID == "" {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	keep := make([]string, 0, len(blockedIDs))
	seen := make(map[string]bool, len(blockedIDs))
	for _, id := range blockedIDs {
		if id == "" || id == blockerID || seen[id] {
			continue
		}
		seen[id] = true
		keep = append(keep, id)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start session: %v", store.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	now := time.Now().UTC()
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if _, err := s.ignores.DeleteMany(ctx, bson.M{
			"blocker_id": blockerID,
			"blocked_id": bson.M{"$nin": keep},
		}); err != nil {
			return nil, fmt.Errorf("delete ignore edges: %w", err)
		}
		for _, id := range keep {
			_, err := s.ignores.UpdateOne(ctx,
				bson.M{"blocker_id": blockerID, "blocked_id": id},
				bson.M{"$setOnInsert": bson.M{"created_at": now}},
				mongoopts.UpdateOne().SetUpsert(true),
			)
			if err != nil {
				return nil, fmt.Errorf("insert ignore edge: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return nil
}

// IgnoreList returns blockerID's ignore edges ordered by blocked user.
func (s *Store) IgnoreList(ctx context.Context, blockerID string) ([]store.IgnoreEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	cursor, err := s.ignores.Find(ctx, bson.M{"blocker_id": blockerID},
		mongoopts.Find().SetSort(bson.D{{Key: "blocked_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find ignore list: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ignoreDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode ignore list: %w", err)
	}
	entries := make([]store.IgnoreEntry, len(docs))
	for i, d := range docs {
		entries[i] = store.IgnoreEntry{BlockerID: d.BlockerID, BlockedID: d.BlockedID, CreatedAt: d.CreatedAt.UTC()}
	}
	return entries, nil
}

// IsIgnoredBy reports whether blockerID blocks blockedID.
func (s *Store) IsIgnoredBy(ctx context.Context, blockerID, blockedID string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	n, err := s.ignores.CountDocuments(ctx,
		bson.M{"blocker_id": blockerID, "blocked_id": blockedID},
		mongoopts.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check ignore: %w", err)
	}
	return n > 0, nil
}

// Blockers returns the users blocking blockedID.
func (s *Store) Blockers(ctx context.Context, blockedID string) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return distinctStrings(ctx, s.ignores, "blocker_id", bson.M{"blocked_id": blockedID})
}

// UpsertGrants creates or refreshes grant edges.
func (s *Store) UpsertGrants(ctx context.Context, grants ...store.ContactGrant) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return s.upsertGrants(ctx, grants)
}

// upsertGrants writes grant edges. Duplicates only refresh updated_at.
func (s *Store) upsertGrants(ctx context.Context, grants []store.ContactGrant) error {
	now := time.Now().UTC()
	for _, g := range grants {
		if g.GranterID == "" || g.GranteeID == "" || g.GranterID == g.GranteeID {
			continue
		}
		_, err := s.contacts.UpdateOne(ctx,
			bson.M{"granter_id": g.GranterID, "grantee_id": g.GranteeID},
			bson.M{
				"$set":         bson.M{"updated_at": now},
				"$setOnInsert": bson.M{"created_at": now},
			},
			mongoopts.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("upsert grant: %w", err)
		}
	}
	return nil
}

// Grantees returns the users granterID allows to write.
func (s *Store) Grantees(ctx context.Context, granterID string) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	return distinctStrings(ctx, s.contacts, "grantee_id", bson.M{"granter_id": granterID})
}
