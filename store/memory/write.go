package memory

import (
	"context"
	"slices"
	"time"

	"github.com/rbaliyan/privmsg/store"
)

// Deliver performs a send atomically. All preconditions are checked before
// anything is written, so a failed delivery leaves no trace.
func (s *Store) Deliver(_ context.Context, d store.Delivery) (*store.DeliveryResult, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if d.Empty() {
		return nil, store.ErrEmptyDelivery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ref := d.ConsumeDraft; ref != nil {
		draft, ok := s.messages[ref.Hash]
		if !ok || draft.Status != store.StatusDraft || draft.SenderID != ref.SenderID {
			return nil, store.ErrConflict
		}
	}
	pending := make(map[string]struct{}, len(d.Messages))
	for _, data := range d.Messages {
		if data.Hash == "" {
			return nil, store.ErrInvalidID
		}
		if _, dup := pending[data.Hash]; dup {
			return nil, store.ErrDuplicateEntry
		}
		if _, exists := s.messages[data.Hash]; exists {
			return nil, store.ErrDuplicateEntry
		}
		pending[data.Hash] = struct{}{}
	}

	if ref := d.ConsumeDraft; ref != nil {
		delete(s.messages, ref.Hash)
	}

	result := &store.DeliveryResult{Messages: make([]*store.Message, 0, len(d.Messages))}
	for _, data := range d.Messages {
		m, err := s.insertLocked(data)
		if err != nil {
			// unreachable after the checks above
			return nil, err
		}
		result.Messages = append(result.Messages, m)
	}

	s.upsertGrantsLocked(d.Grants)

	if ref := d.Answer; ref != nil {
		if origin, ok := s.messages[ref.Hash]; ok &&
			origin.Status == store.StatusRead && origin.RecipientID == ref.RecipientID {
			origin.Status = store.StatusAnswered
			result.Answered = true
		}
	}

	return result, nil
}

// CreateMessage inserts a single record.
func (s *Store) CreateMessage(_ context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(data)
}

// UpsertDraft inserts or updates the sender's draft with data.Hash.
func (s *Store) UpsertDraft(_ context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if data.Hash == "" {
		return nil, store.ErrInvalidID
	}
	data.Status = store.StatusDraft

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.messages[data.Hash]
	if !ok {
		return s.insertLocked(data)
	}
	if existing.Status != store.StatusDraft || existing.SenderID != data.SenderID {
		return nil, store.ErrNotFound
	}
	overwriteContent(existing, data)
	return existing.Clone(), nil
}

// UpsertSingleton inserts or replaces the sender's singleton record.
func (s *Store) UpsertSingleton(_ context.Context, data store.MessageData, statuses []store.Status) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if !slices.Contains(statuses, data.Status) {
		return nil, store.ErrFilterInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.singletonLocked(data.SenderID, statuses); existing != nil {
		existing.Status = data.Status
		overwriteContent(existing, data)
		return existing.Clone(), nil
	}
	return s.insertLocked(data)
}

// DeleteSingleton removes the sender's singleton record.
func (s *Store) DeleteSingleton(_ context.Context, senderID string, statuses []store.Status) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.singletonLocked(senderID, statuses)
	if existing == nil {
		return false, nil
	}
	delete(s.messages, existing.Hash)
	return true, nil
}

// UpdateStatus applies a conditional transition.
func (s *Store) UpdateStatus(_ context.Context, u store.StatusUpdate) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[u.Hash]
	if !ok || !slices.Contains(u.From, m.Status) {
		return false, nil
	}
	if u.RecipientID != "" && m.RecipientID != u.RecipientID {
		return false, nil
	}
	m.Status = u.To
	return true, nil
}

// HardDelete removes the sender's record with the given hash and status.
func (s *Store) HardDelete(_ context.Context, hash, senderID string, status store.Status) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[hash]
	if !ok || m.SenderID != senderID || m.Status != status {
		return false, nil
	}
	delete(s.messages, hash)
	return true, nil
}

// MarkAllRead moves all Unread records for recipientID to Read.
func (s *Store) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.messages {
		if m.RecipientID == recipientID && m.Status == store.StatusUnread {
			m.Status = store.StatusRead
			n++
		}
	}
	return n, nil
}

// overwriteContent copies the editable fields of data onto m.
// Hash, ID, sender and creation time are kept.
func overwriteContent(m *store.Message, data store.MessageData) {
	m.RecipientID = data.RecipientID
	m.Title = data.Title
	m.Body = data.Body
	m.Context = data.Context
	m.Params = data.Message(m.ID).Params
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}
