package privmsg

import (
	"context"
	"slices"
	"time"

	"github.com/rbaliyan/privmsg/store"
	"go.opentelemetry.io/otel/attribute"
)

// Listing categories.
const (
	categoryInbox     = "inbox"
	categorySent      = "sent"
	categoryDrafts    = "drafts"
	categoryTemplates = "templates"
)

// Inbox lists received messages that were not deleted.
func (m *userMailbox) Inbox(ctx context.Context, opts ListOptions) (*MessageList, error) {
	return m.list(ctx, categoryInbox, store.Query{RecipientID: m.userID, Statuses: store.ReceivedStatuses}, opts)
}

// Sent lists sent messages, including those the recipient deleted.
func (m *userMailbox) Sent(ctx context.Context, opts ListOptions) (*MessageList, error) {
	return m.list(ctx, categorySent, store.Query{SenderID: m.userID, Statuses: store.SentStatuses}, opts)
}

// Drafts lists the user's drafts.
func (m *userMailbox) Drafts(ctx context.Context, opts ListOptions) (*MessageList, error) {
	return m.list(ctx, categoryDrafts, store.Query{SenderID: m.userID, Statuses: []store.Status{store.StatusDraft}}, opts)
}

// Templates lists the user's templates.
func (m *userMailbox) Templates(ctx context.Context, opts ListOptions) (*MessageList, error) {
	return m.list(ctx, categoryTemplates, store.Query{SenderID: m.userID, Statuses: []store.Status{store.StatusTemplate}}, opts)
}

// list runs a listing query. opts narrows the category's statuses and adds
// the filters and paging.
func (m *userMailbox) list(ctx context.Context, category string, q store.Query, opts ListOptions) (list *MessageList, opErr error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.list",
		attribute.String("user_id", m.userID),
		attribute.String("category", category),
	)
	start := time.Now()
	defer func() {
		count := 0
		if list != nil {
			count = len(list.Messages)
		}
		endSpan(opErr)
		m.service.otel.recordList(ctx, time.Since(start), category, count, opErr)
	}()

	if opts.CorrespondentID != "" && !isValidUserID(opts.CorrespondentID) {
		return nil, ErrInvalidUserID
	}
	if opts.Offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}

	if len(opts.Statuses) > 0 {
		var narrowed []store.Status
		for _, s := range opts.Statuses {
			if slices.Contains(q.Statuses, s) && !slices.Contains(narrowed, s) {
				narrowed = append(narrowed, s)
			}
		}
		if len(narrowed) == 0 {
			return &MessageList{}, nil
		}
		q.Statuses = narrowed
	}

	q.CorrespondentID = opts.CorrespondentID
	// Stored text went through the sanitizer, so the filters must too.
	san := m.service.opts.sanitizer
	q.TitleContains = san.Sanitize(opts.TitleContains)
	q.BodyContains = san.Sanitize(opts.BodyContains)
	q.HashContains = opts.HashContains
	q.Limit = m.pageSize(opts.Limit)
	q.Offset = opts.Offset

	list, err := m.service.store.Find(ctx, q)
	if err != nil {
		return nil, storageError("list "+category, err)
	}
	return list, nil
}

// pageSize applies the default page size and caps it at the maximum.
func (m *userMailbox) pageSize(limit int) int {
	o := m.service.opts
	if limit <= 0 {
		return o.defaultQueryLimit
	}
	if limit > o.maxQueryLimit {
		return o.maxQueryLimit
	}
	return limit
}

// Correspondents returns the users that wrote to the user, or that the
// user wrote to, sorted.
func (m *userMailbox) Correspondents(ctx context.Context, dir Direction) (ids []string, opErr error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.correspondents",
		attribute.String("user_id", m.userID),
		attribute.String("direction", dir.String()),
	)
	start := time.Now()
	defer func() {
		endSpan(opErr)
		m.service.otel.recordList(ctx, time.Since(start), "correspondents_"+dir.String(), len(ids), opErr)
	}()

	ids, err := m.service.store.Correspondents(ctx, m.userID, dir == DirectionSent)
	if err != nil {
		return nil, storageError("list correspondents", err)
	}
	slices.Sort(ids)
	return ids, nil
}
