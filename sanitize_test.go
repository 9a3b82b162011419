package privmsg

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSanitizers(t *testing.T) {
	t.Run("UGC keeps formatting", func(t *testing.T) {
		got := NewUGCSanitizer().Sanitize(`<b>bold</b><script>alert(1)</script>`)
		if got != "<b>bold</b>" {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("UGC drops event handlers", func(t *testing.T) {
		got := NewUGCSanitizer().Sanitize(`<a href="https://example.com" onclick="x()">link</a>`)
		if strings.Contains(got, "onclick") {
			t.Errorf("expected handler removed, got %q", got)
		}
	})

	t.Run("strict removes all markup", func(t *testing.T) {
		got := NewStrictSanitizer().Sanitize(`<i>hello</i> world`)
		if got != "hello world" {
			t.Errorf("unexpected output %q", got)
		}
	})

	t.Run("func adapter", func(t *testing.T) {
		s := SanitizerFunc(strings.ToUpper)
		if got := s.Sanitize("abc"); got != "ABC" {
			t.Errorf("unexpected output %q", got)
		}
	})
}

func TestSendSanitizesContent(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	res, err := svc.Client("alice").Compose(ctx, ComposeRequest{
		RecipientIDs: []string{"bob"},
		Title:        "Hello <script>x()</script>",
		Body:         `<p onmouseover="steal()">Hi</p>`,
	})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	msg, err := svc.Client("bob").Get(ctx, res.Messages[0].Hash)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if strings.Contains(msg.Title, "script") {
		t.Errorf("expected script removed from title, got %q", msg.Title)
	}
	if strings.Contains(msg.Body, "onmouseover") {
		t.Errorf("expected handler removed from body, got %q", msg.Body)
	}
}

func TestMarkupOnlyTitles(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	alice := svc.Client("alice")

	t.Run("compose rejects a title that sanitizes to nothing", func(t *testing.T) {
		_, err := alice.Compose(ctx, ComposeRequest{RecipientIDs: []string{"bob"}, Title: "<script>x</script>"})
		if !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("expected ErrInvalidMessage, got %v", err)
		}
		var ve ValidationErrors
		if !errors.As(err, &ve) || ve.Fields()[0] != "title" {
			t.Errorf("expected title failure, got %v", err)
		}
		list, err := svc.Client("bob").Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox failed: %v", err)
		}
		if list.Total != 0 {
			t.Errorf("expected nothing stored, got %d", list.Total)
		}
	})

	t.Run("template rejects it too", func(t *testing.T) {
		_, err := alice.SaveTemplate(ctx, MessageInput{RecipientID: "bob", Title: "<style>p{}</style>"})
		if !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("expected ErrInvalidMessage, got %v", err)
		}
	})

	t.Run("signature rejects it too", func(t *testing.T) {
		if _, err := alice.SaveSignature(ctx, "<script></script>", "Alice"); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("expected ErrInvalidMessage, got %v", err)
		}
	})

	t.Run("draft falls back to the default title", func(t *testing.T) {
		draft, err := alice.SaveDraft(ctx, "", MessageInput{Title: "<script>x</script>"})
		if err != nil {
			t.Fatalf("save draft failed: %v", err)
		}
		if draft.Title != DefaultDraftTitle {
			t.Errorf("expected default title, got %q", draft.Title)
		}
	})
}

func TestFiltersMatchSanitizedText(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	mustSend(t, svc.Client("alice"), "Tom & Jerry", "bob")
	if _, err := svc.Client("alice").Compose(ctx, ComposeRequest{RecipientIDs: []string{"bob"}, Title: "Cartoons", Body: "cats < mice"}); err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	bob := svc.Client("bob")

	list, err := bob.Inbox(ctx, ListOptions{TitleContains: "tom & jerry"})
	if err != nil {
		t.Fatalf("inbox failed: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("expected title filter to match, got %d", list.Total)
	}

	list, err = bob.Inbox(ctx, ListOptions{BodyContains: "cats < mice"})
	if err != nil {
		t.Fatalf("inbox failed: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("expected body filter to match, got %d", list.Total)
	}
}
