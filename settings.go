package privmsg

import (
	"context"
	"strings"
	"time"

	"github.com/rbaliyan/privmsg/store"
	"go.opentelemetry.io/otel/attribute"
)

// SaveSignature creates or replaces the user's signature. An empty title
// becomes DefaultSignatureTitle.
func (m *userMailbox) SaveSignature(ctx context.Context, title, body string) (*Message, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultSignatureTitle
	}
	return m.saveSingleton(ctx, "save_signature", store.StatusSignature, store.SignatureStatuses, title, body)
}

// Signature returns the user's signature.
func (m *userMailbox) Signature(ctx context.Context) (*Message, error) {
	return m.singleton(ctx, store.SignatureStatuses)
}

// SaveOutOfOffice creates or replaces the user's out-of-office record.
// While it is active every message to the user is answered with it.
func (m *userMailbox) SaveOutOfOffice(ctx context.Context, in OutOfOfficeInput) (*Message, error) {
	if strings.TrimSpace(in.Title) == "" {
		in.Title = DefaultOutOfOfficeTitle
	}
	status := store.StatusOutOfOfficeInactive
	if in.Active {
		status = store.StatusOutOfOfficeActive
	}
	return m.saveSingleton(ctx, "save_out_of_office", status, store.OutOfOfficeStatuses, in.Title, in.Body)
}

// OutOfOffice returns the user's out-of-office record, active or not.
func (m *userMailbox) OutOfOffice(ctx context.Context) (*Message, error) {
	return m.singleton(ctx, store.OutOfOfficeStatuses)
}

// RemoveOutOfOffice deletes the out-of-office record. Removing a missing
// record succeeds.
func (m *userMailbox) RemoveOutOfOffice(ctx context.Context) (opErr error) {
	if err := m.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.remove_out_of_office",
		attribute.String("user_id", m.userID),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordDelete(ctx, time.Since(start), true, opErr)
	}()

	if _, err := m.service.store.DeleteSingleton(ctx, m.userID, store.OutOfOfficeStatuses); err != nil {
		return storageError("remove out of office", err)
	}
	return nil
}

func (m *userMailbox) saveSingleton(ctx context.Context, op string, status store.Status, group []store.Status, title, body string) (msg *Message, opErr error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg."+op,
		attribute.String("user_id", m.userID),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordUpdate(ctx, time.Since(start), op, opErr)
	}()

	in := sanitizeInput(m.service.opts.sanitizer, MessageInput{Title: title, Body: body})
	limits := m.service.opts.getLimits()
	if err := collect(ValidateTitle(in.Title, limits), ValidateBody(in.Body, limits)); err != nil {
		return nil, err
	}

	hash, err := NewHash()
	if err != nil {
		return nil, err
	}
	msg, err = m.service.store.UpsertSingleton(ctx, m.record(hash, status, in), group)
	if err != nil {
		return nil, storageError(op, err)
	}
	return msg, nil
}

func (m *userMailbox) singleton(ctx context.Context, group []store.Status) (*Message, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	msg, err := m.service.store.FindSingleton(ctx, m.userID, group)
	if err != nil {
		return nil, storageError("get settings", err)
	}
	return msg, nil
}
