package privmsg

import (
	"context"
	"time"

	"github.com/rbaliyan/privmsg/store"
	"go.opentelemetry.io/otel/attribute"
)

// visible loads a message the user may view.
// Deleted and configuration records are not found for anyone; drafts and
// templates only exist for their author. Other users' messages are forbidden.
func (m *userMailbox) visible(ctx context.Context, hash string) (*Message, error) {
	if !validHash(hash) {
		return nil, ErrInvalidHash
	}
	msg, err := m.service.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, storageError("get message", err)
	}
	if msg.Status == store.StatusDeleted || msg.Status.IsConfiguration() {
		return nil, ErrNotFound
	}
	if (msg.Status == store.StatusDraft || msg.Status == store.StatusTemplate) && msg.SenderID != m.userID {
		return nil, ErrNotFound
	}
	if !msg.IsParticipant(m.userID) {
		return nil, ErrForbidden
	}
	return msg, nil
}

// owned loads the user's own record with the given status.
func (m *userMailbox) owned(ctx context.Context, hash string, status store.Status) (*Message, error) {
	if !validHash(hash) {
		return nil, ErrInvalidHash
	}
	msg, err := m.service.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, storageError("get message", err)
	}
	if msg.Status != status || msg.SenderID != m.userID {
		return nil, ErrNotFound
	}
	return msg, nil
}

// Get returns a message visible to the user. When the recipient opens an
// unread message it becomes read.
func (m *userMailbox) Get(ctx context.Context, hash string) (msg *Message, opErr error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.get",
		attribute.String("user_id", m.userID),
		attribute.String("hash", hash),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordGet(ctx, time.Since(start), opErr)
	}()

	msg, err := m.visible(ctx, hash)
	if err != nil {
		return nil, err
	}
	if msg.Status == store.StatusUnread && msg.RecipientID == m.userID {
		if err := m.markRead(ctx, msg); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// MarkRead marks a received message read. It is a no-op for the sender
// and for messages that were already read.
func (m *userMailbox) MarkRead(ctx context.Context, hash string) (opErr error) {
	if err := m.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.mark_read",
		attribute.String("user_id", m.userID),
		attribute.String("hash", hash),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordUpdate(ctx, time.Since(start), "mark_read", opErr)
	}()

	msg, err := m.visible(ctx, hash)
	if err != nil {
		return err
	}
	if msg.RecipientID != m.userID || msg.Status != store.StatusUnread {
		return nil
	}
	return m.markRead(ctx, msg)
}

// markRead moves msg from Unread to Read and updates it in place.
func (m *userMailbox) markRead(ctx context.Context, msg *Message) error {
	changed, err := m.service.store.UpdateStatus(ctx, store.StatusUpdate{
		Hash:        msg.Hash,
		RecipientID: m.userID,
		From:        []store.Status{store.StatusUnread},
		To:          store.StatusRead,
	})
	if err != nil {
		return storageError("mark read", err)
	}
	if !changed {
		// A concurrent read or delete won. Reload to report the current state.
		cur, err := m.service.store.GetByHash(ctx, msg.Hash)
		if err != nil {
			return storageError("get message", err)
		}
		if cur.Status == store.StatusDeleted {
			return ErrNotFound
		}
		msg.Status = cur.Status
		return nil
	}
	msg.Status = store.StatusRead

	return publish(ctx, m.service, m.service.events.MessageRead, "MessageRead", msg.Hash, MessageReadEvent{
		Hash:   msg.Hash,
		UserID: m.userID,
		ReadAt: time.Now().UTC(),
	})
}

// MarkAllRead marks every unread received message read.
func (m *userMailbox) MarkAllRead(ctx context.Context) (n int64, opErr error) {
	if err := m.checkAccess(); err != nil {
		return 0, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.mark_all_read",
		attribute.String("user_id", m.userID),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordUpdate(ctx, time.Since(start), "mark_all_read", opErr)
	}()

	n, err := m.service.store.MarkAllRead(ctx, m.userID)
	if err != nil {
		return 0, storageError("mark all read", err)
	}
	return n, nil
}

// Delete removes a message from the user's view. A received message is
// soft-deleted and stays in the sender's sent listing. A draft is removed
// for good. Templates are deleted with DeleteTemplate.
func (m *userMailbox) Delete(ctx context.Context, hash string) (opErr error) {
	if err := m.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.delete",
		attribute.String("user_id", m.userID),
		attribute.String("hash", hash),
	)
	start := time.Now()
	permanent := false
	defer func() {
		endSpan(opErr)
		m.service.otel.recordDelete(ctx, time.Since(start), permanent, opErr)
	}()

	msg, err := m.visible(ctx, hash)
	if err != nil {
		return err
	}

	switch {
	case msg.Status.IsConversational():
		// Only the recipient deletes; the sender's copy is the same record.
		if msg.RecipientID != m.userID {
			return ErrForbidden
		}
		changed, err := m.service.store.UpdateStatus(ctx, store.StatusUpdate{
			Hash:        msg.Hash,
			RecipientID: m.userID,
			From:        store.ReceivedStatuses,
			To:          store.StatusDeleted,
		})
		if err != nil {
			return storageError("delete", err)
		}
		if !changed {
			return ErrNotFound
		}
	case msg.Status == store.StatusDraft:
		permanent = true
		if err := m.hardDelete(ctx, msg.Hash, store.StatusDraft); err != nil {
			return err
		}
	default:
		return ErrUnsupportedStatus
	}

	return publish(ctx, m.service, m.service.events.MessageDeleted, "MessageDeleted", msg.Hash, MessageDeletedEvent{
		Hash:      msg.Hash,
		UserID:    m.userID,
		Permanent: permanent,
		DeletedAt: time.Now().UTC(),
	})
}

// hardDelete removes the user's record with the given status.
func (m *userMailbox) hardDelete(ctx context.Context, hash string, status store.Status) error {
	ok, err := m.service.store.HardDelete(ctx, hash, m.userID, status)
	if err != nil {
		return storageError("hard delete", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
