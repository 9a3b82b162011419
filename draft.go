package privmsg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbaliyan/privmsg/store"
	"go.opentelemetry.io/otel/attribute"
)

// SaveDraft inserts or updates a draft of the user. Drafts may lack a
// recipient; a missing title becomes DefaultDraftTitle.
func (m *userMailbox) SaveDraft(ctx context.Context, draftHash string, in MessageInput) (msg *Message, opErr error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if draftHash != "" && !validHash(draftHash) {
		return nil, ErrInvalidHash
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.save_draft",
		attribute.String("user_id", m.userID),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordUpdate(ctx, time.Since(start), "save_draft", opErr)
	}()

	in = sanitizeInput(m.service.opts.sanitizer, in)
	if strings.TrimSpace(in.Title) == "" {
		in.Title = DefaultDraftTitle
	}
	if err := m.validateInput(ctx, in, false); err != nil {
		return nil, err
	}

	hash := draftHash
	if hash == "" {
		var err error
		if hash, err = NewHash(); err != nil {
			return nil, err
		}
	}

	msg, err := m.service.store.UpsertDraft(ctx, m.record(hash, store.StatusDraft, in))
	if err != nil {
		return nil, storageError("save draft", err)
	}
	return msg, nil
}

// SaveTemplate inserts a template of the user.
func (m *userMailbox) SaveTemplate(ctx context.Context, in MessageInput) (msg *Message, opErr error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.save_template",
		attribute.String("user_id", m.userID),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordUpdate(ctx, time.Since(start), "save_template", opErr)
	}()

	in = sanitizeInput(m.service.opts.sanitizer, in)
	if err := m.validateInput(ctx, in, true); err != nil {
		return nil, err
	}

	hash, err := NewHash()
	if err != nil {
		return nil, err
	}
	msg, err = m.service.store.CreateMessage(ctx, m.record(hash, store.StatusTemplate, in))
	if err != nil {
		return nil, storageError("save template", err)
	}
	return msg, nil
}

// DeleteTemplate removes a template of the user for good.
func (m *userMailbox) DeleteTemplate(ctx context.Context, hash string) (opErr error) {
	if err := m.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.delete_template",
		attribute.String("user_id", m.userID),
		attribute.String("hash", hash),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordDelete(ctx, time.Since(start), true, opErr)
	}()

	if _, err := m.owned(ctx, hash, store.StatusTemplate); err != nil {
		return err
	}
	if err := m.hardDelete(ctx, hash, store.StatusTemplate); err != nil {
		return err
	}

	return publish(ctx, m.service, m.service.events.MessageDeleted, "MessageDeleted", hash, MessageDeletedEvent{
		Hash:      hash,
		UserID:    m.userID,
		Permanent: true,
		DeletedAt: time.Now().UTC(),
	})
}

// validateInput checks draft or template content. The recipient, when
// given, must be a known user other than the author.
func (m *userMailbox) validateInput(ctx context.Context, in MessageInput, recipientRequired bool) error {
	limits := m.service.opts.getLimits()

	var errs ValidationErrors
	if err := validateContent(in.Title, in.Body, in.Context, in.Params, limits); err != nil {
		var ves ValidationErrors
		if !errors.As(err, &ves) {
			return err
		}
		errs = append(errs, ves...)
	}

	switch {
	case in.RecipientID == "":
		if recipientRequired {
			errs = append(errs, &ValidationError{Field: "recipient_id", Message: "is required", Err: ErrEmptyRecipients})
		}
	case !isValidUserID(in.RecipientID):
		errs = append(errs, &ValidationError{Field: "recipient_id", Message: fmt.Sprintf("invalid recipient %q", in.RecipientID), Err: ErrInvalidUserID})
	case in.RecipientID == m.userID:
		errs = append(errs, &ValidationError{Field: "recipient_id", Message: "cannot write to yourself", Err: ErrForbidden})
	default:
		ok, err := m.service.directory.UserExists(ctx, in.RecipientID)
		if err != nil {
			return fmt.Errorf("privmsg: look up recipient %s: %w", in.RecipientID, err)
		}
		if !ok {
			errs = append(errs, &ValidationError{Field: "recipient_id", Message: fmt.Sprintf("unknown recipient %q", in.RecipientID), Err: ErrUnknownRecipient})
		}
	}

	return errs.err()
}

// record builds the store record of one of the user's own messages.
// in must already be sanitized.
func (m *userMailbox) record(hash string, status store.Status, in MessageInput) store.MessageData {
	return store.MessageData{
		Hash:        hash,
		SenderID:    m.userID,
		RecipientID: in.RecipientID,
		Status:      status,
		Title:       in.Title,
		Body:        in.Body,
		Context:     in.Context,
		Params:      in.Params,
		CreatedAt:   time.Now().UTC(),
	}
}

// PrepareCompose returns the prefilled values of a compose form: the reply
// title and context of an origin, the signature, a fresh draft hash and
// the possible recipients.
func (m *userMailbox) PrepareCompose(ctx context.Context, form ComposeForm) (*ComposeDraft, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	draft := &ComposeDraft{
		RecipientID: form.RecipientID,
		Context:     form.Context,
	}

	if form.RecipientID != "" {
		if !isValidUserID(form.RecipientID) {
			return nil, &ValidationError{Field: "recipient_id", Message: fmt.Sprintf("invalid recipient %q", form.RecipientID), Err: ErrInvalidUserID}
		}
		blocked, err := m.service.store.IsIgnoredBy(ctx, form.RecipientID, m.userID)
		if err != nil {
			return nil, storageError("check ignore list", err)
		}
		if blocked {
			if m.service.opts.blockedSendPolicy == BlockedSendError {
				return nil, &BlockedError{RecipientID: form.RecipientID}
			}
			draft.Blocked = true
			return draft, nil
		}
		if form.AddContact {
			if err := m.AddContact(ctx, form.RecipientID); err != nil {
				return nil, err
			}
		}
	}

	if form.OriginHash != "" {
		origin, err := m.visible(ctx, form.OriginHash)
		if err != nil {
			return nil, err
		}
		draft.Title = replyTitle(m.service.opts.replyPrefix, origin.Title)
		draft.Context = origin.Context
		if draft.RecipientID == "" && origin.RecipientID == m.userID {
			draft.RecipientID = origin.SenderID
		}
	}

	sig, err := m.service.store.FindSingleton(ctx, m.userID, store.SignatureStatuses)
	switch {
	case err == nil:
		draft.Body = "\n\n" + sig.Body
	case !errors.Is(err, store.ErrNotFound):
		return nil, storageError("get signature", err)
	}

	if draft.DraftHash, err = NewHash(); err != nil {
		return nil, err
	}

	if draft.PossibleRecipients, err = m.service.possibleRecipients(ctx, m.userID); err != nil {
		return nil, err
	}
	return draft, nil
}
