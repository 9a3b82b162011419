package memory

import (
	"context"
	"sort"
	"time"

	"github.com/rbaliyan/privmsg/store"
)

// ReplaceIgnoreList replaces blockerID's ignore edges.
func (s *Store) ReplaceIgnoreList(_ context.Context, blockerID string, blockedIDs []string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if blockerID == "" {
		return store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.ignores[blockerID]
	now := time.Now().UTC()
	edges := make(map[string]time.Time, len(blockedIDs))
	for _, id := range blockedIDs {
		if id == "" || id == blockerID {
			continue
		}
		// keep the original creation time for edges that survive the replace
		if created, ok := old[id]; ok {
			edges[id] = created
		} else {
			edges[id] = now
		}
	}
	if len(edges) == 0 {
		delete(s.ignores, blockerID)
		return nil
	}
	s.ignores[blockerID] = edges
	return nil
}

// IgnoreList returns blockerID's ignore edges ordered by blocked user.
func (s *Store) IgnoreList(_ context.Context, blockerID string) ([]store.IgnoreEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := s.ignores[blockerID]
	entries := make([]store.IgnoreEntry, 0, len(edges))
	for _, blocked := range sortedKeys(edges) {
		entries = append(entries, store.IgnoreEntry{
			BlockerID: blockerID,
			BlockedID: blocked,
			CreatedAt: edges[blocked],
		})
	}
	return entries, nil
}

// IsIgnoredBy reports whether blockerID blocks blockedID.
func (s *Store) IsIgnoredBy(_ context.Context, blockerID, blockedID string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.ignores[blockerID][blockedID]
	return ok, nil
}

// Blockers returns the users blocking blockedID.
func (s *Store) Blockers(_ context.Context, blockedID string) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for blocker, edges := range s.ignores {
		if _, ok := edges[blockedID]; ok {
			out = append(out, blocker)
		}
	}
	sort.Strings(out)
	return out, nil
}

// UpsertGrants creates or refreshes grant edges.
func (s *Store) UpsertGrants(_ context.Context, grants ...store.ContactGrant) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertGrantsLocked(grants)
	return nil
}

// Grantees returns the users granterID allows to write.
func (s *Store) Grantees(_ context.Context, granterID string) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.grants[granterID]), nil
}
