package privmsg

import (
	"context"
	"testing"
	"time"

	"github.com/rbaliyan/privmsg/retry"
	"github.com/rbaliyan/privmsg/store"
	"github.com/rbaliyan/privmsg/store/memory"
)

func TestAutoReply(t *testing.T) {
	ctx := context.Background()

	t.Run("active out of office answers the sender", func(t *testing.T) {
		n := &recordingNotifier{name: "mail"}
		svc := setupTestService(t, WithNotifier(n))
		alice := svc.Client("alice")
		bob := svc.Client("bob")

		if _, err := bob.SaveOutOfOffice(ctx, OutOfOfficeInput{Title: "Away", Body: "Back Monday", Active: true}); err != nil {
			t.Fatalf("save out of office failed: %v", err)
		}

		sent := mustSend(t, alice, "Question", "bob")

		inbox, err := alice.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox failed: %v", err)
		}
		if len(inbox.Messages) != 1 {
			t.Fatalf("expected one auto reply, got %d", len(inbox.Messages))
		}
		reply := inbox.Messages[0]
		if reply.SenderID != "bob" || reply.Title != "Away" || reply.Body != "Back Monday" {
			t.Errorf("unexpected auto reply %+v", reply)
		}

		var autoReplies int
		for _, no := range n.notifications() {
			if no.AutoReply {
				autoReplies++
				if no.OriginHash != sent.Hash {
					t.Errorf("expected origin %s, got %s", sent.Hash, no.OriginHash)
				}
			}
		}
		if autoReplies != 1 {
			t.Errorf("expected one auto reply notification, got %d", autoReplies)
		}
	})

	t.Run("inactive out of office stays quiet", func(t *testing.T) {
		svc := setupTestService(t)
		alice := svc.Client("alice")
		if _, err := svc.Client("bob").SaveOutOfOffice(ctx, OutOfOfficeInput{Body: "later"}); err != nil {
			t.Fatalf("save out of office failed: %v", err)
		}

		mustSend(t, alice, "Question", "bob")

		inbox, _ := alice.Inbox(ctx, ListOptions{})
		if len(inbox.Messages) != 0 {
			t.Errorf("expected no auto reply, got %d", len(inbox.Messages))
		}
	})

	t.Run("auto replies do not cascade", func(t *testing.T) {
		st := memory.New()
		svc := newTestService(t, st)
		alice := svc.Client("alice")
		bob := svc.Client("bob")

		for _, mb := range []Mailbox{alice, bob} {
			if _, err := mb.SaveOutOfOffice(ctx, OutOfOfficeInput{Active: true}); err != nil {
				t.Fatalf("save out of office failed: %v", err)
			}
		}

		mustSend(t, alice, "Ping", "bob")

		aliceInbox, _ := alice.Inbox(ctx, ListOptions{})
		bobInbox, _ := bob.Inbox(ctx, ListOptions{})
		if aliceInbox.Total != 1 {
			t.Errorf("alice should get exactly bob's auto reply, got %d", aliceInbox.Total)
		}
		if bobInbox.Total != 1 {
			t.Errorf("bob should only have the original message, got %d", bobInbox.Total)
		}
		if aliceInbox.Messages[0].Title != DefaultOutOfOfficeTitle {
			t.Errorf("expected default title, got %q", aliceInbox.Messages[0].Title)
		}
	})

	t.Run("no reply to a sender who blocks the absent user", func(t *testing.T) {
		svc := setupTestService(t)
		alice := svc.Client("alice")
		bob := svc.Client("bob")
		if _, err := bob.SaveOutOfOffice(ctx, OutOfOfficeInput{Active: true}); err != nil {
			t.Fatalf("save out of office failed: %v", err)
		}
		if err := alice.SetIgnoreList(ctx, "bob"); err != nil {
			t.Fatalf("set ignore list failed: %v", err)
		}

		mustSend(t, alice, "Final notice", "bob")

		inbox, _ := alice.Inbox(ctx, ListOptions{})
		if inbox.Total != 0 {
			t.Errorf("expected no auto reply, got %d", inbox.Total)
		}
	})

	t.Run("failed auto reply does not fail the send", func(t *testing.T) {
		st := &failingStore{
			Store: memory.New(),
			failIf: func(d store.Delivery) bool {
				return len(d.Messages) == 1 && d.Messages[0].SenderID == "bob"
			},
			err: store.ErrTransactionFailed,
		}
		svc := newTestService(t, st, WithAutoReplyRetry(retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}))
		alice := svc.Client("alice")
		if _, err := svc.Client("bob").SaveOutOfOffice(ctx, OutOfOfficeInput{Active: true}); err != nil {
			t.Fatalf("save out of office failed: %v", err)
		}

		res, err := alice.Compose(ctx, ComposeRequest{RecipientIDs: []string{"bob"}, Title: "Hi"})
		if err != nil {
			t.Fatalf("send should succeed, got %v", err)
		}
		if len(res.Messages) != 1 {
			t.Errorf("expected delivery, got %+v", res)
		}
		if got := st.failedCalls(); got != 3 {
			t.Errorf("expected 3 auto reply attempts, got %d", got)
		}
		inbox, _ := alice.Inbox(ctx, ListOptions{})
		if inbox.Total != 0 {
			t.Errorf("expected no auto reply, got %d", inbox.Total)
		}
	})
}
