package store

import (
	"errors"
	"testing"
)

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		status         Status
		conversational bool
		configuration  bool
		needsRecipient bool
	}{
		{StatusDeleted, true, false, true},
		{StatusUnread, true, false, true},
		{StatusRead, true, false, true},
		{StatusAnswered, true, false, true},
		{StatusDraft, false, false, false},
		{StatusTemplate, false, false, true},
		{StatusSignature, false, true, false},
		{StatusOutOfOfficeInactive, false, true, false},
		{StatusOutOfOfficeActive, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if !tt.status.Valid() {
				t.Fatal("expected valid status")
			}
			if got := tt.status.IsConversational(); got != tt.conversational {
				t.Errorf("IsConversational() = %v, want %v", got, tt.conversational)
			}
			if got := tt.status.IsConfiguration(); got != tt.configuration {
				t.Errorf("IsConfiguration() = %v, want %v", got, tt.configuration)
			}
			if got := tt.status.RequiresRecipient(); got != tt.needsRecipient {
				t.Errorf("RequiresRecipient() = %v, want %v", got, tt.needsRecipient)
			}
		})
	}

	if Status(42).Valid() {
		t.Error("status 42 should be invalid")
	}
	if got := Status(42).String(); got != "status(42)" {
		t.Errorf("unexpected name for unknown status: %q", got)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"unread", StatusUnread},
		{" Read ", StatusRead},
		{"OUT_OF_OFFICE_ACTIVE", StatusOutOfOfficeActive},
		{"-1", StatusDeleted},
		{"4", StatusTemplate},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if err != nil {
			t.Errorf("ParseStatus(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "archived", "8", "-2"} {
		if _, err := ParseStatus(bad); !errors.Is(err, ErrFilterInvalid) {
			t.Errorf("ParseStatus(%q): expected ErrFilterInvalid, got %v", bad, err)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusUnread, StatusRead},
		{StatusUnread, StatusDeleted},
		{StatusRead, StatusAnswered},
		{StatusRead, StatusDeleted},
		{StatusAnswered, StatusDeleted},
		{StatusOutOfOfficeInactive, StatusOutOfOfficeActive},
		{StatusOutOfOfficeActive, StatusOutOfOfficeInactive},
	}
	for _, p := range allowed {
		if !CanTransition(p[0], p[1]) {
			t.Errorf("expected %v -> %v to be allowed", p[0], p[1])
		}
	}

	denied := [][2]Status{
		{StatusUnread, StatusAnswered},
		{StatusAnswered, StatusRead},
		{StatusDeleted, StatusUnread},
		{StatusDraft, StatusUnread},
		{StatusTemplate, StatusDeleted},
		{StatusSignature, StatusDraft},
		{StatusOutOfOfficeActive, StatusDeleted},
	}
	for _, p := range denied {
		if CanTransition(p[0], p[1]) {
			t.Errorf("expected %v -> %v to be denied", p[0], p[1])
		}
	}
}

func TestMessageClone(t *testing.T) {
	m := &Message{Hash: "h", Params: map[string]any{"k": "v"}}
	c := m.Clone()
	c.Params["k"] = "changed"
	if m.Params["k"] != "v" {
		t.Error("clone shares params with original")
	}
	var nilMsg *Message
	if nilMsg.Clone() != nil {
		t.Error("clone of nil should be nil")
	}
}

func TestMessageIsParticipant(t *testing.T) {
	m := &Message{SenderID: "alice", RecipientID: "bob"}
	if !m.IsParticipant("alice") || !m.IsParticipant("bob") {
		t.Error("sender and recipient should be participants")
	}
	if m.IsParticipant("carol") {
		t.Error("carol is not a participant")
	}

	system := &Message{RecipientID: "bob"}
	if system.IsParticipant("") {
		t.Error("empty user must never be a participant")
	}
}

func TestGrantPair(t *testing.T) {
	pair := GrantPair("a", "b")
	if len(pair) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(pair))
	}
	if pair[0].GranterID != "a" || pair[0].GranteeID != "b" {
		t.Errorf("unexpected first edge: %+v", pair[0])
	}
	if pair[1].GranterID != "b" || pair[1].GranteeID != "a" {
		t.Errorf("unexpected second edge: %+v", pair[1])
	}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"inbox", Query{RecipientID: "u", Statuses: ReceivedStatuses}, false},
		{"sent", Query{SenderID: "u", Statuses: SentStatuses, Limit: 10}, false},
		{"no owner", Query{Statuses: ReceivedStatuses}, true},
		{"both owners", Query{SenderID: "u", RecipientID: "v", Statuses: ReceivedStatuses}, true},
		{"no statuses", Query{RecipientID: "u"}, true},
		{"signature", Query{SenderID: "u", Statuses: SignatureStatuses}, true},
		{"out of office", Query{SenderID: "u", Statuses: []Status{StatusDraft, StatusOutOfOfficeActive}}, true},
		{"unknown status", Query{SenderID: "u", Statuses: []Status{9}}, true},
		{"negative offset", Query{SenderID: "u", Statuses: SentStatuses, Offset: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrFilterInvalid) {
					t.Errorf("expected ErrFilterInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestQueryMatches(t *testing.T) {
	m := &Message{
		Hash:        "ABCdef0123",
		SenderID:    "alice",
		RecipientID: "bob",
		Status:      StatusRead,
		Title:       "Quarterly Report",
		Body:        "See the attached figures",
	}

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"inbox", Query{RecipientID: "bob", Statuses: ReceivedStatuses}, true},
		{"wrong recipient", Query{RecipientID: "carol", Statuses: ReceivedStatuses}, false},
		{"sent", Query{SenderID: "alice", Statuses: SentStatuses}, true},
		{"status excluded", Query{RecipientID: "bob", Statuses: []Status{StatusUnread}}, false},
		{"correspondent", Query{RecipientID: "bob", Statuses: ReceivedStatuses, CorrespondentID: "alice"}, true},
		{"other correspondent", Query{SenderID: "alice", Statuses: SentStatuses, CorrespondentID: "carol"}, false},
		{"title fold", Query{RecipientID: "bob", Statuses: ReceivedStatuses, TitleContains: "REPORT"}, true},
		{"body fold", Query{RecipientID: "bob", Statuses: ReceivedStatuses, BodyContains: "attached FIG"}, true},
		{"hash fold", Query{RecipientID: "bob", Statuses: ReceivedStatuses, HashContains: "cdef"}, true},
		{"title miss", Query{RecipientID: "bob", Statuses: ReceivedStatuses, TitleContains: "invoice"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Matches(m); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}

	sig := &Message{SenderID: "alice", Status: StatusSignature}
	q := Query{SenderID: "alice", Statuses: []Status{StatusSignature}}
	if q.Matches(sig) {
		t.Error("configuration records must never match a query")
	}
}

func TestDeliveryEmpty(t *testing.T) {
	if !(Delivery{}).Empty() {
		t.Error("zero delivery should be empty")
	}
	if (Delivery{Grants: GrantPair("a", "b")}).Empty() {
		t.Error("delivery with grants is not empty")
	}
}
