// Package store provides interfaces and types for private message storage.
// Implementations are in store/mongo, store/memory, and store/postgres subpackages.
//
// Three relations are persisted: messages, ignore edges and contact grants.
//
// # Architectural Principle: No Distributed Locks
//
// Concurrency is handled entirely by the database:
//
//  1. Atomic Database Operations: upserts use PostgreSQL's INSERT ON CONFLICT
//     or MongoDB's update with upsert. Duplicate grant inserts are no-ops.
//
//  2. Conditional Writes: status transitions are UPDATE ... WHERE status IN (...)
//     so a stale caller changes nothing instead of overwriting a newer state.
//
//  3. Transactional Delivery: a send is one Deliver call. The draft
//     consumption, the new message rows, the contact grants and the
//     Answered transition commit or roll back together.
//
// Example - at-most-once draft send:
//
//	// WRONG: read, then write
//	draft := store.Get(hash)
//	store.Create(messageFrom(draft))
//	store.Delete(hash)
//
//	// CORRECT: conditional delete inside the delivery transaction
//	res, err := store.Deliver(ctx, store.Delivery{
//	    Messages:     []store.MessageData{data},
//	    ConsumeDraft: &store.DraftRef{Hash: hash, SenderID: sender},
//	})
//	if errors.Is(err, store.ErrConflict) {
//	    // another process already sent this draft
//	}
package store

import (
	"context"
)

// Store is the storage interface for private messaging.
//
// All operations must be safe for concurrent use. Implementations must use
// database-level atomicity (transactions, conditional writes) rather than
// external locking. Implementations never cache records between calls.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	MessageStore
	RelationStore
}

// MessageReader provides read operations for message records.
type MessageReader interface {
	// GetByHash retrieves a record by its public hash, whatever its status.
	// Returns ErrNotFound if no record has this hash.
	GetByHash(ctx context.Context, hash string) (*Message, error)

	// Find returns a page of records matching q, newest first
	// (created_at DESC, id DESC).
	Find(ctx context.Context, q Query) (*MessageList, error)

	// Count returns the number of records matching q, ignoring paging.
	Count(ctx context.Context, q Query) (int64, error)

	// FindSingleton returns the sender's record in one of the given statuses.
	// Used for the signature and out-of-office singletons.
	// Returns ErrNotFound if none exists.
	FindSingleton(ctx context.Context, senderID string, statuses []Status) (*Message, error)

	// Correspondents returns the distinct users that exchanged conversational
	// messages with userID: recipients of its messages when sent is true,
	// senders of messages addressed to it otherwise. System senders are omitted.
	Correspondents(ctx context.Context, userID string, sent bool) ([]string, error)
}

// MessageMutator provides write operations for message records.
type MessageMutator interface {
	// Deliver performs a send as one atomic unit. See Delivery.
	// Returns ErrConflict if ConsumeDraft matched no draft.
	Deliver(ctx context.Context, d Delivery) (*DeliveryResult, error)

	// CreateMessage inserts a single record.
	// Returns ErrDuplicateEntry if the hash is taken.
	CreateMessage(ctx context.Context, data MessageData) (*Message, error)

	// UpsertDraft inserts a draft, or updates the draft with the same hash
	// when it belongs to the same sender. Returns ErrNotFound when the hash
	// belongs to a record that is not this sender's draft.
	UpsertDraft(ctx context.Context, data MessageData) (*Message, error)

	// UpsertSingleton inserts or replaces the sender's record whose status is
	// in statuses. data.Status must be one of statuses. The hash and creation
	// time of an existing record are kept.
	UpsertSingleton(ctx context.Context, data MessageData, statuses []Status) (*Message, error)

	// DeleteSingleton physically removes the sender's record whose status is
	// in statuses. Returns false if none existed.
	DeleteSingleton(ctx context.Context, senderID string, statuses []Status) (bool, error)

	// UpdateStatus applies a conditional status transition.
	// Returns false when no record matched the precondition.
	UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error)

	// HardDelete physically removes the sender's record with the given hash
	// and status. Returns false when no record matched.
	HardDelete(ctx context.Context, hash, senderID string, status Status) (bool, error)

	// MarkAllRead moves every Unread record addressed to recipientID to Read.
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// MessageStore combines message reads and writes.
type MessageStore interface {
	MessageReader
	MessageMutator
}

// RelationStore holds the ignore (block) and contact grant (allow) graphs.
// Every check is a single indexed lookup.
type RelationStore interface {
	// ReplaceIgnoreList replaces all of blockerID's ignore edges with
	// edges to blockedIDs, atomically. Duplicates and self-blocks are dropped.
	ReplaceIgnoreList(ctx context.Context, blockerID string, blockedIDs []string) error

	// IgnoreList returns blockerID's ignore edges.
	IgnoreList(ctx context.Context, blockerID string) ([]IgnoreEntry, error)

	// IsIgnoredBy reports whether blockerID blocks blockedID.
	IsIgnoredBy(ctx context.Context, blockerID, blockedID string) (bool, error)

	// Blockers returns the users that block blockedID.
	Blockers(ctx context.Context, blockedID string) ([]string, error)

	// UpsertGrants creates the given grant edges. Existing edges only get
	// their UpdatedAt refreshed; a duplicate is never an error.
	UpsertGrants(ctx context.Context, grants ...ContactGrant) error

	// Grantees returns the users granterID has granted write permission.
	Grantees(ctx context.Context, granterID string) ([]string, error)
}

// Delivery describes one atomic send.
type Delivery struct {
	// Messages are the records to insert, one per recipient.
	Messages []MessageData

	// Grants are upserted in the same transaction.
	Grants []ContactGrant

	// ConsumeDraft, when set, hard-deletes the draft before inserting.
	// If the draft is already gone the whole delivery fails with ErrConflict.
	ConsumeDraft *DraftRef

	// Answer, when set, moves the origin from Read to Answered provided
	// its recipient is Answer.RecipientID.
	Answer *AnswerRef
}

// Empty reports whether the delivery writes nothing.
func (d Delivery) Empty() bool {
	return len(d.Messages) == 0 && len(d.Grants) == 0 && d.ConsumeDraft == nil && d.Answer == nil
}

// DraftRef identifies a draft to consume.
type DraftRef struct {
	Hash     string
	SenderID string
}

// AnswerRef identifies a reply origin.
type AnswerRef struct {
	Hash        string
	RecipientID string
}

// DeliveryResult reports what a delivery wrote.
type DeliveryResult struct {
	Messages []*Message
	// Answered is true when the origin moved to StatusAnswered.
	Answered bool
}

// StatusUpdate is a conditional transition of one record.
type StatusUpdate struct {
	Hash string
	// RecipientID, when set, must match the record's recipient.
	RecipientID string
	From        []Status
	To          Status
}
