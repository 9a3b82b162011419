package privmsg

import (
	"context"
	"time"

	"github.com/rbaliyan/privmsg/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the privmsg package without importing store directly.
type (
	Message     = store.Message
	MessageList = store.MessageList
	Status      = store.Status
	IgnoreEntry = store.IgnoreEntry
)

// Re-exported status constants.
const (
	StatusDeleted             = store.StatusDeleted
	StatusUnread              = store.StatusUnread
	StatusRead                = store.StatusRead
	StatusAnswered            = store.StatusAnswered
	StatusDraft               = store.StatusDraft
	StatusTemplate            = store.StatusTemplate
	StatusSignature           = store.StatusSignature
	StatusOutOfOfficeInactive = store.StatusOutOfOfficeInactive
	StatusOutOfOfficeActive   = store.StatusOutOfOfficeActive
)

// Directory is the identity provider: the source of truth for which users exist.
// Implementations must be safe for concurrent use.
type Directory interface {
	// UserExists reports whether userID is a known user.
	UserExists(ctx context.Context, userID string) (bool, error)
	// ListUsers returns all known users except excluding.
	ListUsers(ctx context.Context, excluding string) ([]string, error)
}

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
}

// Service manages the messaging system (server-side).
// It handles connections to storage and creates per-user clients.
type Service interface {
	ServiceHealth

	// Connect establishes connections to storage backends.
	Connect(ctx context.Context) error
	// Close closes all connections.
	Close(ctx context.Context) error
	// Client returns a mailbox client for the given user.
	// The returned client shares the service's connections.
	Client(userID string) Mailbox
	// SendSystemMessage delivers a message without a sender.
	SendSystemMessage(ctx context.Context, msg SystemMessage) (*ComposeResult, error)
	// Events returns per-service event instances for subscribing and publishing.
	Events() *ServiceEvents
}

// MessageReader provides single message retrieval.
type MessageReader interface {
	// Get returns a message visible to the user. The recipient opening an
	// unread message marks it read.
	Get(ctx context.Context, hash string) (*Message, error)
}

// MessageLister provides the four message listings.
type MessageLister interface {
	Inbox(ctx context.Context, opts ListOptions) (*MessageList, error)
	Sent(ctx context.Context, opts ListOptions) (*MessageList, error)
	Drafts(ctx context.Context, opts ListOptions) (*MessageList, error)
	Templates(ctx context.Context, opts ListOptions) (*MessageList, error)
	// Correspondents returns the users that wrote to the user, or that the
	// user wrote to.
	Correspondents(ctx context.Context, dir Direction) ([]string, error)
}

// MessageComposer sends messages.
type MessageComposer interface {
	// PrepareCompose returns the prefilled values of a compose form.
	PrepareCompose(ctx context.Context, form ComposeForm) (*ComposeDraft, error)
	// Compose sends one message per recipient.
	Compose(ctx context.Context, req ComposeRequest) (*ComposeResult, error)
	// SendFromDraft sends a draft to its recipient and removes the draft.
	SendFromDraft(ctx context.Context, draftHash string) (*ComposeResult, error)
	// SendFromTemplate sends a template's content. With no recipients the
	// template's own recipient is used. The template is kept.
	SendFromTemplate(ctx context.Context, templateHash string, recipientIDs ...string) (*ComposeResult, error)
}

// DraftManager stores drafts and templates.
type DraftManager interface {
	// SaveDraft inserts a draft, or updates it when draftHash names an
	// existing draft of the user. A new draft takes draftHash when given.
	SaveDraft(ctx context.Context, draftHash string, in MessageInput) (*Message, error)
	// SaveTemplate inserts a template.
	SaveTemplate(ctx context.Context, in MessageInput) (*Message, error)
	// DeleteTemplate removes a template of the user.
	DeleteTemplate(ctx context.Context, hash string) error
}

// MessageMutator changes message status.
type MessageMutator interface {
	// MarkRead marks a received message read.
	MarkRead(ctx context.Context, hash string) error
	// MarkAllRead marks every unread received message read.
	MarkAllRead(ctx context.Context) (int64, error)
	// Delete soft-deletes a received message or removes a draft.
	Delete(ctx context.Context, hash string) error
}

// SettingsManager manages the signature and out-of-office records.
type SettingsManager interface {
	SaveSignature(ctx context.Context, title, body string) (*Message, error)
	// Signature returns ErrNotFound when the user has none.
	Signature(ctx context.Context) (*Message, error)
	SaveOutOfOffice(ctx context.Context, in OutOfOfficeInput) (*Message, error)
	// OutOfOffice returns ErrNotFound when the user has none.
	OutOfOffice(ctx context.Context) (*Message, error)
	// RemoveOutOfOffice deletes the out-of-office record.
	RemoveOutOfOffice(ctx context.Context) error
}

// RelationManager manages who may message whom.
type RelationManager interface {
	// PossibleRecipients returns the users the user may currently address.
	PossibleRecipients(ctx context.Context) ([]string, error)
	// SetIgnoreList replaces the user's ignore list.
	SetIgnoreList(ctx context.Context, blockedIDs ...string) error
	IgnoreList(ctx context.Context) ([]IgnoreEntry, error)
	// AddContact grants write permission between the user and userID in
	// both directions.
	AddContact(ctx context.Context, userID string) error
}

// NotificationReader reports unread messages for polling clients.
type NotificationReader interface {
	UnreadSummary(ctx context.Context, n int) (*UnreadSummary, error)
}

// Mailbox provides private messaging for one user.
//
// Composed of focused interfaces:
//   - MessageReader: Get
//   - MessageLister: Inbox, Sent, Drafts, Templates, Correspondents
//   - MessageComposer: PrepareCompose, Compose, SendFromDraft, SendFromTemplate
//   - DraftManager: SaveDraft, SaveTemplate, DeleteTemplate
//   - MessageMutator: MarkRead, MarkAllRead, Delete
//   - SettingsManager: signature and out-of-office records
//   - RelationManager: ignore list, contacts and recipient resolution
//   - NotificationReader: UnreadSummary
type Mailbox interface {
	UserID() string
	MessageReader
	MessageLister
	MessageComposer
	DraftManager
	MessageMutator
	SettingsManager
	RelationManager
	NotificationReader
}

// ListOptions filters and pages a listing.
type ListOptions struct {
	// Limit is the page size. Zero means the configured default.
	Limit  int
	Offset int

	// Statuses narrows the listing's statuses. Statuses outside the
	// listing's own set select nothing.
	Statuses []Status

	// Case-insensitive substring filters.
	TitleContains string
	BodyContains  string
	HashContains  string

	// CorrespondentID keeps messages exchanged with this user only.
	CorrespondentID string
}

// MessageInput is the content of a draft or template.
type MessageInput struct {
	RecipientID string
	Title       string
	Body        string
	Context     string
	Params      map[string]any
}

// ComposeRequest is a message to send.
type ComposeRequest struct {
	RecipientIDs []string
	Title        string
	Body         string
	// Context is an opaque reference to an entity of the application.
	// A reply without a context inherits the origin's.
	Context string
	Params  map[string]any

	// OriginHash is the message this one answers.
	OriginHash string
	// DraftHash is a draft consumed by this send.
	DraftHash string
}

// ComposeResult reports a send.
type ComposeResult struct {
	// Messages holds one delivered message per recipient.
	Messages []*Message
	// Blocked lists recipients skipped because they ignore the sender.
	// Only filled under BlockedSendNotice.
	Blocked []string
	// Answered is true when the origin moved to StatusAnswered.
	Answered bool
}

// ComposeForm is the input of PrepareCompose. All fields are optional.
type ComposeForm struct {
	RecipientID string
	OriginHash  string
	Context     string
	// AddContact grants write permission between the user and RecipientID
	// before the form is prepared.
	AddContact bool
}

// ComposeDraft holds the prefilled values of a compose form.
type ComposeDraft struct {
	RecipientID string
	Title       string
	Body        string
	Context     string
	// DraftHash is a fresh hash for autosaving the form as a draft.
	DraftHash string
	// PossibleRecipients are the users the user may address.
	PossibleRecipients []string
	// Blocked is true when RecipientID ignores the user.
	Blocked bool
}

// OutOfOfficeInput is the content of the out-of-office record.
type OutOfOfficeInput struct {
	// Title defaults to DefaultOutOfOfficeTitle.
	Title  string
	Body   string
	Active bool
}

// SystemMessage is a message without a sender.
type SystemMessage struct {
	RecipientIDs []string
	Title        string
	Body         string
	Context      string
	Params       map[string]any
}

// Direction selects sent or received messages.
type Direction int

const (
	// DirectionReceived selects messages addressed to the user.
	DirectionReceived Direction = iota
	// DirectionSent selects messages written by the user.
	DirectionSent
)

func (d Direction) String() string {
	if d == DirectionSent {
		return "sent"
	}
	return "received"
}

// UnreadSummary is what a polling client shows about new messages.
type UnreadSummary struct {
	// Count is the number of unread received messages.
	Count int64
	// Recent are the newest unread messages, newest first.
	Recent []UnreadItem
	// Remind is true when the user should be reminded now.
	Remind bool
}

// UnreadItem is one entry of UnreadSummary.Recent.
type UnreadItem struct {
	Hash      string
	SenderID  string
	Title     string
	CreatedAt time.Time
}
