// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/privmsg/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
//
// A single lock guards all three relations so that Deliver commits
// atomically, the way a database transaction would.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	messages map[string]*store.Message                 // hash -> record
	ignores  map[string]map[string]time.Time           // blocker -> blocked -> created
	grants   map[string]map[string]*store.ContactGrant // granter -> grantee -> edge

	connected int32
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		messages: make(map[string]*store.Message),
		ignores:  make(map[string]map[string]time.Time),
		grants:   make(map[string]map[string]*store.ContactGrant),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// Len returns the number of message records, whatever their status.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// GrantCount returns the number of grant edges. Used by tests to check
// upsert idempotence.
func (s *Store) GrantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.grants {
		n += len(m)
	}
	return n
}

// insertLocked stores a new record. Caller must hold s.mu.
func (s *Store) insertLocked(data store.MessageData) (*store.Message, error) {
	if data.Hash == "" {
		return nil, store.ErrInvalidID
	}
	if _, exists := s.messages[data.Hash]; exists {
		return nil, store.ErrDuplicateEntry
	}
	s.nextID++
	m := data.Message(s.nextID)
	s.messages[m.Hash] = m
	return m.Clone(), nil
}

// upsertGrantsLocked creates or refreshes grant edges. Caller must hold s.mu.
func (s *Store) upsertGrantsLocked(grants []store.ContactGrant) {
	now := time.Now().UTC()
	for _, g := range grants {
		if g.GranterID == "" || g.GranteeID == "" || g.GranterID == g.GranteeID {
			continue
		}
		edges, ok := s.grants[g.GranterID]
		if !ok {
			edges = make(map[string]*store.ContactGrant)
			s.grants[g.GranterID] = edges
		}
		if existing, ok := edges[g.GranteeID]; ok {
			existing.UpdatedAt = now
			continue
		}
		edges[g.GranteeID] = &store.ContactGrant{
			GranterID: g.GranterID,
			GranteeID: g.GranteeID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
}
