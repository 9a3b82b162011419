package store

import (
	"fmt"
	"slices"
	"strings"
)

// Query selects messages belonging to one user.
//
// Exactly one of SenderID or RecipientID must be set. Statuses is required
// and must not contain configuration statuses: signature and out-of-office
// records are only reachable through the singleton operations.
//
// The Contains fields are case-insensitive substring matches applied on top
// of the status predicate.
type Query struct {
	SenderID    string
	RecipientID string
	Statuses    []Status

	// CorrespondentID restricts results to messages exchanged with this user:
	// the recipient when SenderID is set, the sender when RecipientID is set.
	CorrespondentID string

	TitleContains string
	BodyContains  string
	HashContains  string

	Limit  int
	Offset int
}

// Validate checks the query shape.
func (q Query) Validate() error {
	if (q.SenderID == "") == (q.RecipientID == "") {
		return fmt.Errorf("%w: exactly one of sender or recipient is required", ErrFilterInvalid)
	}
	if len(q.Statuses) == 0 {
		return fmt.Errorf("%w: statuses required", ErrFilterInvalid)
	}
	for _, s := range q.Statuses {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown status %d", ErrFilterInvalid, int(s))
		}
		if s.IsConfiguration() {
			return fmt.Errorf("%w: %s records are not listable", ErrFilterInvalid, s)
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: negative paging", ErrFilterInvalid)
	}
	return nil
}

// Matches reports whether m satisfies the query predicate, ignoring paging.
// Used by the in-memory store and by tests.
func (q Query) Matches(m *Message) bool {
	if q.SenderID != "" {
		if m.SenderID != q.SenderID {
			return false
		}
		if q.CorrespondentID != "" && m.RecipientID != q.CorrespondentID {
			return false
		}
	} else {
		if m.RecipientID != q.RecipientID {
			return false
		}
		if q.CorrespondentID != "" && m.SenderID != q.CorrespondentID {
			return false
		}
	}
	if !slices.Contains(q.Statuses, m.Status) || m.Status.IsConfiguration() {
		return false
	}
	return containsFold(m.Title, q.TitleContains) &&
		containsFold(m.Body, q.BodyContains) &&
		containsFold(m.Hash, q.HashContains)
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// MessageList is a page of messages.
type MessageList struct {
	Messages []*Message
	Total    int64
	HasMore  bool
}
