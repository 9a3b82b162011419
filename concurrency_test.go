package privmsg

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/rbaliyan/privmsg/directory"
	"github.com/rbaliyan/privmsg/store/memory"
)

func TestConcurrency_MultipleSenders(t *testing.T) {
	ctx := context.Background()

	const numSenders = 10
	const messagesPerSender = 5

	users := []string{"recipient1", "recipient2"}
	for i := 0; i < numSenders; i++ {
		users = append(users, fmt.Sprintf("sender%d", i))
	}
	st := memory.New()
	svc, err := NewService(WithStore(st), WithDirectory(directory.NewStatic(users...)))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer svc.Close(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, numSenders*messagesPerSender)

	for i := 0; i < numSenders; i++ {
		wg.Add(1)
		go func(senderNum int) {
			defer wg.Done()
			client := svc.Client(fmt.Sprintf("sender%d", senderNum))

			for j := 0; j < messagesPerSender; j++ {
				_, err := client.Compose(ctx, ComposeRequest{
					RecipientIDs: []string{"recipient1", "recipient2"},
					Title:        "Concurrent test message",
					Body:         "Test body",
				})
				if err != nil {
					errs <- err
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("send error: %v", err)
	}

	list, err := svc.Client("recipient1").Inbox(ctx, ListOptions{Limit: DefaultMaxQueryLimit})
	if err != nil {
		t.Fatalf("inbox failed: %v", err)
	}
	if list.Total != numSenders*messagesPerSender {
		t.Errorf("expected %d messages, got %d", numSenders*messagesPerSender, list.Total)
	}
}

func TestConcurrentReads(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	alice := svc.Client("alice")
	bob := svc.Client("bob")

	hashes := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		hashes = append(hashes, mustSend(t, alice, fmt.Sprintf("message %d", i), "bob").Hash)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, h := range hashes {
				if _, err := bob.Get(ctx, h); err != nil {
					errs <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("read error: %v", err)
	}

	sum, err := bob.UnreadSummary(ctx, 0)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if sum.Count != 0 {
		t.Errorf("expected all read, got %d unread", sum.Count)
	}
}

func TestConcurrentMarkRead(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	alice := svc.Client("alice")
	bob := svc.Client("bob")
	msg := mustSend(t, alice, "race", "bob")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		events int
	)
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bob.MarkRead(ctx, msg.Hash); err != nil {
				errs <- err
				return
			}
			mu.Lock()
			events++
			mu.Unlock()
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("mark read error: %v", err)
	}
	if events != 20 {
		t.Errorf("expected every MarkRead to succeed, got %d", events)
	}

	got, err := bob.Get(ctx, msg.Hash)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusRead {
		t.Errorf("expected read, got %v", got.Status)
	}
}

func TestConcurrentSendFromDraft(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	alice := svc.Client("alice")

	draft, err := alice.SaveDraft(ctx, "", MessageInput{RecipientID: "bob", Title: "once", Body: "only once"})
	if err != nil {
		t.Fatalf("save draft failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var sent, consumed int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := alice.SendFromDraft(ctx, draft.Hash)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sent++
			case errors.Is(err, ErrDraftConsumed), errors.Is(err, ErrNotFound):
				consumed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sent != 1 {
		t.Errorf("expected exactly one send, got %d", sent)
	}
	if sent+consumed != 10 {
		t.Errorf("expected the rest to observe the consumed draft, got %d", consumed)
	}

	list, err := svc.Client("bob").Inbox(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("inbox failed: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("expected one delivered message, got %d", list.Total)
	}
}

func TestConcurrentIgnoreListUpdates(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	alice := svc.Client("alice")

	lists := [][]string{{"bob"}, {"carol"}, {"bob", "dave"}, {}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := alice.SetIgnoreList(ctx, lists[i%len(lists)]...); err != nil {
				t.Errorf("set ignore list failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := alice.IgnoreList(ctx)
	if err != nil {
		t.Fatalf("ignore list failed: %v", err)
	}
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.BlockedID)
	}
	slices.Sort(got)
	matched := false
	for _, want := range lists {
		if slices.Equal(got, slices.Sorted(slices.Values(want))) {
			matched = true
		}
	}
	if !matched {
		t.Errorf("ignore list %v is not one of the written lists", got)
	}
}
