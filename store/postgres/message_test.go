package postgres

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rbaliyan/privmsg/store"
)

func TestBuildWhere(t *testing.T) {
	t.Run("inbox with filters", func(t *testing.T) {
		where, args := buildWhere(store.Query{
			RecipientID:   "bob",
			Statuses:      store.ReceivedStatuses,
			TitleContains: "hello",
			HashContains:  "ab",
		})
		want := "recipient_id = $1 AND status = ANY($2) AND title ILIKE $3 AND hash ILIKE $4"
		if where != want {
			t.Errorf("where = %q, want %q", where, want)
		}
		if len(args) != 4 {
			t.Fatalf("expected 4 args, got %d", len(args))
		}
		if args[0] != "bob" {
			t.Errorf("args[0] = %v, want bob", args[0])
		}
		if args[2] != "%hello%" {
			t.Errorf("args[2] = %v, want %%hello%%", args[2])
		}
	})

	t.Run("sent with correspondent", func(t *testing.T) {
		where, args := buildWhere(store.Query{
			SenderID:        "alice",
			CorrespondentID: "bob",
			Statuses:        store.SentStatuses,
			BodyContains:    "x",
		})
		want := "sender_id = $1 AND recipient_id = $2 AND status = ANY($3) AND body ILIKE $4"
		if where != want {
			t.Errorf("where = %q, want %q", where, want)
		}
		if len(args) != 4 {
			t.Errorf("expected 4 args, got %d", len(args))
		}
	})
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "%abc%"},
		{"50%", `%50\%%`},
		{"a_b", `%a\_b%`},
		{`c:\d`, `%c:\\d%`},
	}
	for _, tt := range tests {
		if got := likePattern(tt.in); got != tt.want {
			t.Errorf("likePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSingletonPredicate(t *testing.T) {
	if got := singletonPredicate(store.SignatureStatuses); got != "status = 5" {
		t.Errorf("signature predicate = %q", got)
	}
	if got := singletonPredicate(store.OutOfOfficeStatuses); got != "status IN (6, 7)" {
		t.Errorf("out-of-office predicate = %q", got)
	}
	reversed := []store.Status{store.StatusOutOfOfficeActive, store.StatusOutOfOfficeInactive}
	if !isSingletonSet(reversed) {
		t.Error("order of statuses must not matter")
	}
	if isSingletonSet([]store.Status{store.StatusDraft}) {
		t.Error("draft is not a singleton set")
	}
}

func TestMessageRowToMessage(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	row := messageRow{
		ID:          7,
		Hash:        "0123456789abcdef0123456789abcdef",
		RecipientID: sql.NullString{String: "bob", Valid: true},
		Status:      int(store.StatusUnread),
		Title:       "System notice",
		Params:      []byte(`{"order":42}`),
		CreatedAt:   created,
	}

	m, err := row.toMessage()
	if err != nil {
		t.Fatalf("toMessage: %v", err)
	}
	if m.SenderID != "" {
		t.Errorf("expected system sender, got %q", m.SenderID)
	}
	if m.RecipientID != "bob" {
		t.Errorf("recipient = %q", m.RecipientID)
	}
	if m.Params["order"] != float64(42) {
		t.Errorf("params = %v", m.Params)
	}

	row.Params = nil
	m, err = row.toMessage()
	if err != nil {
		t.Fatalf("toMessage: %v", err)
	}
	if m.Params != nil {
		t.Errorf("expected nil params, got %v", m.Params)
	}
}

func TestInsertArgs(t *testing.T) {
	args, err := insertArgs(store.MessageData{
		Hash:   "h",
		Status: store.StatusDraft,
		Title:  "t",
	})
	if err != nil {
		t.Fatalf("insertArgs: %v", err)
	}
	if len(args) != 9 {
		t.Fatalf("expected 9 args, got %d", len(args))
	}
	if v := args[2].(sql.NullString); v.Valid {
		t.Error("empty recipient must be NULL")
	}
	if args[7] != nil {
		t.Errorf("nil params must be NULL, got %v", args[7])
	}
}
