// Package directory provides user directory implementations.
package directory

import (
	"context"
	"slices"
	"sync"
)

// Static is a set-based user directory for tests, tools and small deployments.
// Safe for concurrent use.
type Static struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewStatic creates a Static directory holding the given user IDs.
// Empty IDs are ignored.
func NewStatic(userIDs ...string) *Static {
	s := &Static{users: make(map[string]struct{}, len(userIDs))}
	s.Add(userIDs...)
	return s
}

// Add registers user IDs.
func (s *Static) Add(userIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		if id != "" {
			s.users[id] = struct{}{}
		}
	}
}

// Remove unregisters user IDs.
func (s *Static) Remove(userIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		delete(s.users, id)
	}
}

// UserExists reports whether userID is registered.
func (s *Static) UserExists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

// ListUsers returns every registered user except excluding, sorted.
func (s *Static) ListUsers(_ context.Context, excluding string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		if id != excluding {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
