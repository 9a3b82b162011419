// Package privmsg provides private user-to-user messaging for Go services.
//
// Users write messages to each other, reply to them, keep drafts and
// templates, block senders with an ignore list and answer automatically
// while out of office. Users are identified by opaque IDs owned by a
// Directory; privmsg never manages accounts. Storage is pluggable
// (PostgreSQL, MongoDB, in-memory).
//
// # Basic Usage
//
//	svc, err := privmsg.NewService(
//	    privmsg.WithStore(memory.New()),
//	    privmsg.WithDirectory(directory.NewStatic("alice", "bob")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	alice := svc.Client("alice")
//	res, err := alice.Compose(ctx, privmsg.ComposeRequest{
//	    RecipientIDs: []string{"bob"},
//	    Title:        "Hi",
//	    Body:         "Lunch?",
//	})
//
// # Message Lifecycle
//
// A delivered message starts Unread. The recipient opening it makes it
// Read, and replying to a read message makes it Answered. Deleting a
// received message hides it from the recipient only; the sender still sees
// it in Sent. Drafts and templates belong to their author and are removed
// for good. Signature and out-of-office records are per-user settings and
// never appear in a listing.
//
// # Relations
//
// A user's ignore list blocks senders. Sending to a user that blocks the
// sender fails with *BlockedError, or skips that user under
// BlockedSendNotice. Every send grants write permission in both
// directions; once a user granted anyone, only grantees are offered as
// possible recipients.
//
// # Storage Backends
//
// The store package provides implementations for:
//   - PostgreSQL (store/postgres) - accepts *sqlx.DB
//   - MongoDB (store/mongo) - accepts *mongo.Client
//   - In-memory (store/memory) - for testing
//
// # Events and Notifiers
//
// Each service owns an event bus (github.com/rbaliyan/event/v3). Pass
// WithRedisClient or WithEventTransport to publish beyond the process:
//
//	svc.Events().MessageSent.Subscribe(ctx, handler)
//
// Available events:
//   - MessageSent - when a message is delivered
//   - MessageRead - when a recipient reads a message
//   - MessageDeleted - when a message is deleted
//   - AutoReplied - when an out-of-office reply was sent
//
// Notifiers (WithNotifier) are called after each committed delivery, for
// example to email the recipient. Their failures never fail a send.
package privmsg
