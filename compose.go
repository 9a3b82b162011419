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

// Send kinds, used for metrics and logs.
const (
	sendKindCompose  = "compose"
	sendKindDraft    = "draft"
	sendKindTemplate = "template"
	sendKindSystem   = "system"
)

// outgoing is a send prepared by one of the compose entry points.
type outgoing struct {
	kind       string
	senderID   string // empty for system messages
	recipients []string
	title      string
	body       string
	context    string
	params     map[string]any
	origin     *Message        // message being answered, if any
	draft      *store.DraftRef // draft consumed by the send, if any
}

// Compose sends one message per recipient.
func (m *userMailbox) Compose(ctx context.Context, req ComposeRequest) (*ComposeResult, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	out := outgoing{
		kind:       sendKindCompose,
		senderID:   m.userID,
		recipients: req.RecipientIDs,
		title:      req.Title,
		body:       req.Body,
		context:    req.Context,
		params:     req.Params,
	}

	if req.OriginHash != "" {
		origin, err := m.visible(ctx, req.OriginHash)
		if err != nil {
			return nil, err
		}
		if !origin.Status.IsConversational() {
			return nil, ErrUnsupportedStatus
		}
		out.origin = origin
		if strings.TrimSpace(out.title) == "" {
			out.title = origin.Title
		}
		out.title = replyTitle(m.service.opts.replyPrefix, out.title)
		if out.context == "" {
			out.context = origin.Context
		}
	}

	if req.DraftHash != "" {
		if !validHash(req.DraftHash) {
			return nil, ErrInvalidHash
		}
		// The form's draft may never have been autosaved. Only an existing
		// draft is consumed, and then atomically with the delivery.
		draft, err := m.service.store.GetByHash(ctx, req.DraftHash)
		switch {
		case err == nil:
			if draft.Status == store.StatusDraft && draft.SenderID == m.userID {
				out.draft = &store.DraftRef{Hash: draft.Hash, SenderID: m.userID}
			}
		case !errors.Is(err, store.ErrNotFound):
			return nil, storageError("get draft", err)
		}
	}

	return m.service.send(ctx, out)
}

// SendFromDraft sends a draft to its recipient and removes the draft.
// A draft is sent at most once; a concurrent second send fails with
// ErrDraftConsumed or ErrNotFound.
func (m *userMailbox) SendFromDraft(ctx context.Context, draftHash string) (*ComposeResult, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	draft, err := m.owned(ctx, draftHash, store.StatusDraft)
	if err != nil {
		return nil, err
	}

	var recipients []string
	if draft.RecipientID != "" {
		recipients = []string{draft.RecipientID}
	}

	return m.service.send(ctx, outgoing{
		kind:       sendKindDraft,
		senderID:   m.userID,
		recipients: recipients,
		title:      draft.Title,
		body:       draft.Body,
		context:    draft.Context,
		params:     draft.Params,
		draft:      &store.DraftRef{Hash: draft.Hash, SenderID: m.userID},
	})
}

// SendFromTemplate sends a copy of a template. The template is kept.
func (m *userMailbox) SendFromTemplate(ctx context.Context, templateHash string, recipientIDs ...string) (*ComposeResult, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	tmpl, err := m.owned(ctx, templateHash, store.StatusTemplate)
	if err != nil {
		return nil, err
	}

	if len(recipientIDs) == 0 && tmpl.RecipientID != "" {
		recipientIDs = []string{tmpl.RecipientID}
	}

	return m.service.send(ctx, outgoing{
		kind:       sendKindTemplate,
		senderID:   m.userID,
		recipients: recipientIDs,
		title:      tmpl.Title,
		body:       tmpl.Body,
		context:    tmpl.Context,
		params:     tmpl.Params,
	})
}

// SendSystemMessage delivers a message without a sender. System messages
// bypass ignore lists and create no contact grants.
func (s *service) SendSystemMessage(ctx context.Context, msg SystemMessage) (*ComposeResult, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	return s.send(ctx, outgoing{
		kind:       sendKindSystem,
		recipients: msg.RecipientIDs,
		title:      msg.Title,
		body:       msg.Body,
		context:    msg.Context,
		params:     msg.Params,
	})
}

// replyTitle prefixes title with prefix unless it already starts with it.
func replyTitle(prefix, title string) string {
	if strings.HasPrefix(title, prefix) {
		return title
	}
	return prefix + title
}

// send sanitizes and validates out, applies the ignore gate and commits the delivery in
// one store transaction. Notifications, events and out-of-office replies
// follow the commit and never undo it.
func (s *service) send(ctx context.Context, out outgoing) (result *ComposeResult, opErr error) {
	ctx, endSpan := s.otel.startSpan(ctx, "privmsg.send",
		attribute.String("kind", out.kind),
		attribute.String("sender_id", out.senderID),
	)
	start := time.Now()
	recipientCount := 0
	defer func() {
		endSpan(opErr)
		s.otel.recordSend(ctx, time.Since(start), out.kind, recipientCount, opErr)
	}()

	san := s.opts.sanitizer
	out.title = san.Sanitize(out.title)
	out.body = san.Sanitize(out.body)
	out.context = san.Sanitize(out.context)

	recipients, err := s.validateOutgoing(ctx, out)
	if err != nil {
		return nil, err
	}
	recipientCount = len(recipients)

	// Rejected requests do not spend tokens.
	if out.senderID != "" && !s.limiter.allow(out.senderID) {
		return nil, ErrRateLimited
	}

	if err := s.sendSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire send slot: %w", err)
	}
	defer s.sendSem.Release(1)

	result = &ComposeResult{}
	if out.senderID != "" {
		allowed := make([]string, 0, len(recipients))
		for _, r := range recipients {
			blocked, err := s.store.IsIgnoredBy(ctx, r, out.senderID)
			if err != nil {
				return nil, storageError("check ignore list", err)
			}
			if !blocked {
				allowed = append(allowed, r)
				continue
			}
			if s.opts.blockedSendPolicy == BlockedSendError {
				return nil, &BlockedError{RecipientID: r}
			}
			result.Blocked = append(result.Blocked, r)
		}
		recipients = allowed
	}
	if len(recipients) == 0 {
		// Every recipient blocks the sender; the draft stays.
		return result, nil
	}

	delivery := store.Delivery{ConsumeDraft: out.draft}
	now := time.Now().UTC()
	for _, r := range recipients {
		hash, err := NewHash()
		if err != nil {
			return nil, err
		}
		delivery.Messages = append(delivery.Messages, store.MessageData{
			Hash:        hash,
			SenderID:    out.senderID,
			RecipientID: r,
			Status:      store.StatusUnread,
			Title:       out.title,
			Body:        out.body,
			Context:     out.context,
			Params:      out.params,
			CreatedAt:   now,
		})
		if out.senderID != "" {
			delivery.Grants = append(delivery.Grants, store.GrantPair(out.senderID, r)...)
		}
	}
	if out.origin != nil && out.senderID != "" && out.origin.RecipientID == out.senderID {
		delivery.Answer = &store.AnswerRef{Hash: out.origin.Hash, RecipientID: out.senderID}
	}

	res, err := s.store.Deliver(ctx, delivery)
	if err != nil {
		return nil, storageError("deliver", err)
	}
	result.Messages = res.Messages
	result.Answered = res.Answered

	s.logger.Debug("messages delivered",
		"kind", out.kind,
		"sender_id", out.senderID,
		"count", len(res.Messages),
		"answered", res.Answered,
	)

	return result, s.afterDelivery(ctx, out, res.Messages)
}

// validateOutgoing checks content and recipients and returns the
// deduplicated recipient list.
func (s *service) validateOutgoing(ctx context.Context, out outgoing) ([]string, error) {
	limits := s.opts.getLimits()
	recipients := dedupe(out.recipients)

	var errs ValidationErrors
	if err := validateContent(out.title, out.body, out.context, out.params, limits); err != nil {
		var ves ValidationErrors
		if !errors.As(err, &ves) {
			return nil, err
		}
		errs = append(errs, ves...)
	}
	if err := ValidateRecipients(recipients, limits); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		return nil, append(errs, ve)
	}

	for _, r := range recipients {
		if r == out.senderID {
			errs = append(errs, &ValidationError{Field: "recipient_ids", Message: "cannot write to yourself", Err: ErrForbidden})
			continue
		}
		ok, err := s.directory.UserExists(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("privmsg: look up recipient %s: %w", r, err)
		}
		if !ok {
			errs = append(errs, &ValidationError{Field: "recipient_ids", Message: fmt.Sprintf("unknown recipient %q", r), Err: ErrUnknownRecipient})
		}
	}

	return recipients, errs.err()
}

// afterDelivery publishes events, notifies and sends out-of-office replies
// for committed messages. Only event failures under WithEventErrorsFatal
// are returned.
func (s *service) afterDelivery(ctx context.Context, out outgoing, delivered []*Message) error {
	var originHash string
	if out.origin != nil {
		originHash = out.origin.Hash
	}

	var eventErr error
	for _, msg := range delivered {
		err := publish(ctx, s, s.events.MessageSent, "MessageSent", msg.Hash, MessageSentEvent{
			Hash:        msg.Hash,
			SenderID:    msg.SenderID,
			RecipientID: msg.RecipientID,
			Title:       msg.Title,
			Context:     msg.Context,
			OriginHash:  originHash,
			SentAt:      msg.CreatedAt,
		})
		if err != nil && eventErr == nil {
			eventErr = err
		}

		s.notify(ctx, Notification{Message: msg, OriginHash: originHash})

		if out.senderID != "" {
			s.autoReply(ctx, msg)
		}
	}
	return eventErr
}

// notify hands a delivery to the notifiers unless the email predicate
// rejects it.
func (s *service) notify(ctx context.Context, n Notification) {
	if len(s.notifiers.all) == 0 {
		return
	}
	if s.opts.emailPredicate != nil && !s.opts.emailPredicate(ctx, n.Message.RecipientID, n.Message) {
		return
	}
	s.notifiers.dispatch(ctx, s.opts.notifyRetry, n)
}
