package privmsg

import (
	"context"
	"errors"
	"time"

	"github.com/rbaliyan/privmsg/retry"
	"github.com/rbaliyan/privmsg/store"
)

// autoReply answers delivered with the recipient's active out-of-office
// record. The reply itself never triggers another reply, and a failure is
// logged and dropped: the triggering send already committed.
func (s *service) autoReply(ctx context.Context, delivered *Message) {
	if delivered.SenderID == "" || delivered.RecipientID == "" {
		return
	}
	log := s.logger.With("origin_hash", delivered.Hash, "user_id", delivered.RecipientID)

	ooo, err := s.store.FindSingleton(ctx, delivered.RecipientID, []store.Status{store.StatusOutOfOfficeActive})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("out-of-office lookup failed", "error", err)
			s.otel.recordAutoReply(ctx, err)
		}
		return
	}

	// The original sender may have blocked the absent user in the meantime.
	blocked, err := s.store.IsIgnoredBy(ctx, delivered.SenderID, delivered.RecipientID)
	if err != nil {
		log.Warn("out-of-office ignore check failed", "error", err)
		s.otel.recordAutoReply(ctx, err)
		return
	}
	if blocked {
		log.Debug("out-of-office reply skipped, sender ignores recipient")
		return
	}

	hash, err := NewHash()
	if err != nil {
		log.Warn("out-of-office reply failed", "error", err)
		s.otel.recordAutoReply(ctx, err)
		return
	}
	reply := store.MessageData{
		Hash:        hash,
		SenderID:    delivered.RecipientID,
		RecipientID: delivered.SenderID,
		Status:      store.StatusUnread,
		Title:       ooo.Title,
		Body:        ooo.Body,
		Context:     delivered.Context,
		CreatedAt:   time.Now().UTC(),
	}

	// The hash is fixed across attempts, so a retry after an unacknowledged
	// commit fails with a duplicate instead of writing twice.
	res, err := retry.DoWithResult(ctx, s.opts.autoReplyRetry, func(ctx context.Context) (*store.DeliveryResult, error) {
		return s.store.Deliver(ctx, store.Delivery{
			Messages: []store.MessageData{reply},
			Grants:   store.GrantPair(reply.SenderID, reply.RecipientID),
		})
	})
	s.otel.recordAutoReply(ctx, err)
	if err != nil {
		log.Warn("out-of-office reply failed", "error", storageError("auto reply", err))
		return
	}
	if len(res.Messages) == 0 {
		return
	}
	sent := res.Messages[0]
	log.Debug("out-of-office reply sent", "hash", sent.Hash)

	if err := publish(ctx, s, s.events.AutoReplied, "AutoReplied", sent.Hash, AutoRepliedEvent{
		Hash:        sent.Hash,
		OriginHash:  delivered.Hash,
		SenderID:    sent.SenderID,
		RecipientID: sent.RecipientID,
		RepliedAt:   sent.CreatedAt,
	}); err != nil {
		log.Warn("out-of-office event failed", "error", err)
	}

	s.notify(ctx, Notification{Message: sent, OriginHash: delivered.Hash, AutoReply: true})
}
