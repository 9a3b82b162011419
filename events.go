package privmsg

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for privmsg events. Per-service events prefix them with the
// bus name.
const (
	EventNameMessageSent    = "privmsg.message.sent"
	EventNameMessageRead    = "privmsg.message.read"
	EventNameMessageDeleted = "privmsg.message.deleted"
	EventNameAutoReplied    = "privmsg.message.auto_replied"
)

// MessageSentEvent is published once per delivered message.
type MessageSentEvent struct {
	Hash        string    `json:"hash"`
	SenderID    string    `json:"sender_id,omitempty"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Context     string    `json:"context,omitempty"`
	OriginHash  string    `json:"origin_hash,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// MessageReadEvent is published when a recipient reads an unread message.
type MessageReadEvent struct {
	Hash   string    `json:"hash"`
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// MessageDeletedEvent is published for soft deletes of received messages
// and hard deletes of drafts and templates.
type MessageDeletedEvent struct {
	Hash      string    `json:"hash"`
	UserID    string    `json:"user_id"`
	Permanent bool      `json:"permanent"`
	DeletedAt time.Time `json:"deleted_at"`
}

// AutoRepliedEvent is published when an out-of-office reply was sent.
type AutoRepliedEvent struct {
	Hash        string    `json:"hash"`
	OriginHash  string    `json:"origin_hash"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	RepliedAt   time.Time `json:"replied_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus.
//
// Subscribe to events:
//
//	svc.Events().MessageSent.Subscribe(ctx, handler)
//	svc.Events().AutoReplied.Subscribe(ctx, handler)
type ServiceEvents struct {
	// MessageSent is published when a message is delivered.
	MessageSent event.Event[MessageSentEvent]

	// MessageRead is published when a message is marked as read.
	MessageRead event.Event[MessageReadEvent]

	// MessageDeleted is published when a message is deleted.
	MessageDeleted event.Event[MessageDeletedEvent]

	// AutoReplied is published when an out-of-office reply is sent.
	AutoReplied event.Event[AutoRepliedEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		MessageSent:    event.New[MessageSentEvent](namePrefix + "." + EventNameMessageSent),
		MessageRead:    event.New[MessageReadEvent](namePrefix + "." + EventNameMessageRead),
		MessageDeleted: event.New[MessageDeletedEvent](namePrefix + "." + EventNameMessageDeleted),
		AutoReplied:    event.New[AutoRepliedEvent](namePrefix + "." + EventNameAutoReplied),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.MessageSent); err != nil {
		return fmt.Errorf("register MessageSent: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageRead); err != nil {
		return fmt.Errorf("register MessageRead: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageDeleted); err != nil {
		return fmt.Errorf("register MessageDeleted: %w", err)
	}
	if err := event.Register(ctx, bus, events.AutoReplied); err != nil {
		return fmt.Errorf("register AutoReplied: %w", err)
	}
	return nil
}

// publish sends ev on e. When event errors are fatal the failure is returned
// as *EventPublishError; otherwise it goes to the failure handler.
func publish[T any](ctx context.Context, s *service, e event.Event[T], name, hash string, ev T) error {
	if err := e.Publish(ctx, ev); err != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{Event: name, Hash: hash, Err: err}
		}
		s.opts.safeEventPublishFailure(name, err)
	}
	return nil
}
