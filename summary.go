package privmsg

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rbaliyan/privmsg/store"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultSummarySize is the number of recent messages in an UnreadSummary
// when none is requested.
const DefaultSummarySize = 5

// UnreadSummary counts the user's unread messages and returns the newest n
// of them. Remind is set when the count changed since the last reminder or
// the reminder interval passed, and there is something unread.
func (m *userMailbox) UnreadSummary(ctx context.Context, n int) (sum *UnreadSummary, opErr error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := m.service.otel.startSpan(ctx, "privmsg.unread_summary",
		attribute.String("user_id", m.userID),
	)
	start := time.Now()
	defer func() {
		count := 0
		if sum != nil {
			count = len(sum.Recent)
		}
		endSpan(opErr)
		m.service.otel.recordList(ctx, time.Since(start), "unread", count, opErr)
	}()

	if n <= 0 {
		n = DefaultSummarySize
	}
	q := store.Query{
		RecipientID: m.userID,
		Statuses:    []store.Status{store.StatusUnread},
		Limit:       m.pageSize(n),
	}

	count, err := m.service.store.Count(ctx, q)
	if err != nil {
		return nil, storageError("count unread", err)
	}
	sum = &UnreadSummary{Count: count}
	if count == 0 {
		sum.Remind = m.remind(ctx, 0)
		return sum, nil
	}

	list, err := m.service.store.Find(ctx, q)
	if err != nil {
		return nil, storageError("list unread", err)
	}
	for _, msg := range list.Messages {
		sum.Recent = append(sum.Recent, UnreadItem{
			Hash:      msg.Hash,
			SenderID:  msg.SenderID,
			Title:     truncate(msg.Title, DefaultSummaryTitleLength),
			CreatedAt: msg.CreatedAt,
		})
	}
	sum.Remind = m.remind(ctx, count)
	return sum, nil
}

// remind asks the reminder gate. A failing gate only suppresses the reminder.
func (m *userMailbox) remind(ctx context.Context, unread int64) bool {
	ok, err := m.service.opts.reminderGate.Check(ctx, m.userID, unread, m.service.opts.reminderInterval)
	if err != nil {
		m.service.logger.Warn("reminder check failed", "user_id", m.userID, "error", err)
		return false
	}
	return ok
}

// truncate cuts s to max runes and appends an ellipsis when it did.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
