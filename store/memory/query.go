package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/rbaliyan/privmsg/store"
)

// GetByHash retrieves a record by hash.
func (s *Store) GetByHash(_ context.Context, hash string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Clone(), nil
}

// Find returns matching records, newest first.
func (s *Store) Find(_ context.Context, q store.Query) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := s.matchLocked(q)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := int64(len(matched))
	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	return &store.MessageList{
		Messages: matched[start:end],
		Total:    total,
		HasMore:  end < len(matched),
	}, nil
}

// Count returns the number of matching records.
func (s *Store) Count(_ context.Context, q store.Query) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matchLocked(q))), nil
}

// matchLocked returns clones of matching records. Caller must hold s.mu.
func (s *Store) matchLocked(q store.Query) []*store.Message {
	var out []*store.Message
	for _, m := range s.messages {
		if q.Matches(m) {
			out = append(out, m.Clone())
		}
	}
	return out
}

// FindSingleton returns the sender's record in one of statuses.
func (s *Store) FindSingleton(_ context.Context, senderID string, statuses []store.Status) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if m := s.singletonLocked(senderID, statuses); m != nil {
		return m.Clone(), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) singletonLocked(senderID string, statuses []store.Status) *store.Message {
	for _, m := range s.messages {
		if m.SenderID == senderID && slices.Contains(statuses, m.Status) {
			return m
		}
	}
	return nil
}

// Correspondents returns distinct counterparts of userID's conversational messages.
func (s *Store) Correspondents(_ context.Context, userID string, sent bool) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, m := range s.messages {
		if !m.Status.IsConversational() {
			continue
		}
		var other string
		switch {
		case sent && m.SenderID == userID:
			other = m.RecipientID
		case !sent && m.RecipientID == userID:
			other = m.SenderID
		}
		if other != "" {
			seen[other] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
