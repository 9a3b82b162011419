// Package reminder decides when a user should be reminded of unread messages.
//
// A user is reminded when the unread count changed since the last reminder,
// or when the reminder interval elapsed. Polling clients can call the gate
// as often as they like without nagging the user.
package reminder

import (
	"context"
	"sync"
	"time"
)

// Gate records the unread count a user was last reminded of.
// Implementations must be safe for concurrent use.
type Gate interface {
	// Check records unread for userID and reports whether a reminder is due:
	// unread is positive and either differs from the recorded count or the
	// record is older than interval.
	Check(ctx context.Context, userID string, unread int64, interval time.Duration) (bool, error)
}

// Memory is an in-process Gate. State is lost on restart and not shared
// between processes; use Redis for that.
type Memory struct {
	mu      sync.Mutex
	records map[string]record
	now     func() time.Time
}

type record struct {
	unread int64
	at     time.Time
}

// NewMemory creates an empty in-process gate.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]record),
		now:     time.Now,
	}
}

// Check implements Gate.
func (m *Memory) Check(_ context.Context, userID string, unread int64, interval time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	last, ok := m.records[userID]
	if ok && last.unread == unread && now.Sub(last.at) < interval {
		return false, nil
	}
	m.records[userID] = record{unread: unread, at: now}
	return unread > 0, nil
}
