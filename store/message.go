package store

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle status of a message record.
// Values are stored as integers; treat the set as closed.
type Status int

// Status constants.
const (
	StatusDeleted             Status = -1
	StatusUnread              Status = 0
	StatusRead                Status = 1
	StatusAnswered            Status = 2
	StatusDraft               Status = 3
	StatusTemplate            Status = 4
	StatusSignature           Status = 5
	StatusOutOfOfficeInactive Status = 6
	StatusOutOfOfficeActive   Status = 7
)

var statusNames = map[Status]string{
	StatusDeleted:             "deleted",
	StatusUnread:              "unread",
	StatusRead:                "read",
	StatusAnswered:            "answered",
	StatusDraft:               "draft",
	StatusTemplate:            "template",
	StatusSignature:           "signature",
	StatusOutOfOfficeInactive: "out_of_office_inactive",
	StatusOutOfOfficeActive:   "out_of_office_active",
}

// String returns the status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsConversational reports whether s belongs to an exchanged message
// (Unread, Read, Answered or Deleted).
func (s Status) IsConversational() bool {
	switch s {
	case StatusUnread, StatusRead, StatusAnswered, StatusDeleted:
		return true
	}
	return false
}

// IsConfiguration reports whether s marks a per-user configuration record
// (signature or out-of-office). Such records never appear in listings.
func (s Status) IsConfiguration() bool {
	switch s {
	case StatusSignature, StatusOutOfOfficeInactive, StatusOutOfOfficeActive:
		return true
	}
	return false
}

// RequiresRecipient reports whether a record with this status must carry a recipient.
func (s Status) RequiresRecipient() bool {
	switch s {
	case StatusSignature, StatusDraft, StatusOutOfOfficeInactive, StatusOutOfOfficeActive:
		return false
	}
	return true
}

// ParseStatus parses a status name or its integer code.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	for s, name := range statusNames {
		if name == v {
			return s, nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil && Status(n).Valid() {
		return Status(n), nil
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrFilterInvalid, v)
}

// Status groups used by the engine and the stores.
var (
	// ReceivedStatuses are the statuses visible in an inbox.
	ReceivedStatuses = []Status{StatusUnread, StatusRead, StatusAnswered}
	// SentStatuses are the statuses visible in a sent listing.
	// Deleted stays visible to the sender because deletion is recipient-local.
	SentStatuses = []Status{StatusUnread, StatusRead, StatusAnswered, StatusDeleted}
	// OutOfOfficeStatuses covers both states of the out-of-office singleton.
	OutOfOfficeStatuses = []Status{StatusOutOfOfficeInactive, StatusOutOfOfficeActive}
	// SignatureStatuses covers the signature singleton.
	SignatureStatuses = []Status{StatusSignature}
)

// transitions lists the allowed in-place status changes.
// Creation and hard deletes are not transitions.
var transitions = map[Status][]Status{
	StatusUnread:              {StatusRead, StatusDeleted},
	StatusRead:                {StatusAnswered, StatusDeleted},
	StatusAnswered:            {StatusDeleted},
	StatusSignature:           {StatusSignature},
	StatusOutOfOfficeInactive: {StatusOutOfOfficeInactive, StatusOutOfOfficeActive},
	StatusOutOfOfficeActive:   {StatusOutOfOfficeInactive, StatusOutOfOfficeActive},
}

// CanTransition reports whether a record may move from one status to another in place.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Message is a persisted message record.
// SenderID is empty for system messages. RecipientID is empty only for
// statuses that do not require a recipient.
type Message struct {
	ID          int64
	Hash        string
	SenderID    string
	RecipientID string
	Status      Status
	Title       string
	Body        string
	Context     string
	Params      map[string]any
	CreatedAt   time.Time
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Params != nil {
		c.Params = maps.Clone(m.Params)
	}
	return &c
}

// IsParticipant reports whether userID is the sender or the recipient.
func (m *Message) IsParticipant(userID string) bool {
	return userID != "" && (m.SenderID == userID || m.RecipientID == userID)
}

// MessageData contains the data for creating a message record.
// Hash must already be generated by the caller.
type MessageData struct {
	Hash        string
	SenderID    string
	RecipientID string
	Status      Status
	Title       string
	Body        string
	Context     string
	Params      map[string]any
	CreatedAt   time.Time
}

// Message builds the record a store persists for d, with the given internal ID.
func (d MessageData) Message(id int64) *Message {
	m := &Message{
		ID:          id,
		Hash:        d.Hash,
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		Status:      d.Status,
		Title:       d.Title,
		Body:        d.Body,
		Context:     d.Context,
		CreatedAt:   d.CreatedAt,
	}
	if d.Params != nil {
		m.Params = maps.Clone(d.Params)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m
}

// IgnoreEntry is a directed block edge: BlockerID refuses messages from BlockedID.
type IgnoreEntry struct {
	BlockerID string
	BlockedID string
	CreatedAt time.Time
}

// ContactGrant is a directed permission edge: GranterID allows GranteeID to write.
type ContactGrant struct {
	GranterID string
	GranteeID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GrantPair returns the two grant edges between a and b, one per direction.
func GrantPair(a, b string) []ContactGrant {
	return []ContactGrant{
		{GranterID: a, GranteeID: b},
		{GranterID: b, GranteeID: a},
	}
}
