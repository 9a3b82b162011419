package privmsg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rbaliyan/privmsg/store"
)

// Sentinel errors for the privmsg package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable,
// so errors.Is(err, privmsg.ErrNotFound) will match both package-level
// and store-level "not found" errors.
var (
	// ErrNotFound is returned when a message cannot be found or is not
	// visible to the caller. Wraps store.ErrNotFound.
	ErrNotFound = fmt.Errorf("privmsg: %w", store.ErrNotFound)

	// ErrForbidden is returned when the caller may not perform an operation
	// on a message, or when a recipient blocks the sender.
	ErrForbidden = errors.New("privmsg: forbidden")

	// ErrInvalidMessage is returned for message validation failures.
	ErrInvalidMessage = errors.New("privmsg: invalid message")

	// ErrDraftConsumed is returned when a draft was already sent or deleted
	// by a concurrent request. Wraps store.ErrConflict.
	ErrDraftConsumed = fmt.Errorf("privmsg: draft already consumed: %w", store.ErrConflict)

	// ErrUnsupportedStatus is returned when an operation does not apply to
	// the message's current status.
	ErrUnsupportedStatus = errors.New("privmsg: unsupported status")

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("privmsg: store is required")

	// ErrDirectoryRequired is returned when no user directory is configured.
	ErrDirectoryRequired = errors.New("privmsg: directory is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected.
	ErrNotConnected = fmt.Errorf("privmsg: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected.
	ErrAlreadyConnected = fmt.Errorf("privmsg: %w", store.ErrAlreadyConnected)

	// ErrInvalidUserID is returned when a user ID contains invalid characters.
	ErrInvalidUserID = errors.New("privmsg: invalid user id")

	// ErrInvalidHash is returned when a message hash is malformed.
	ErrInvalidHash = errors.New("privmsg: invalid hash")

	// ErrRateLimited is returned when a sender exceeds the send rate.
	ErrRateLimited = errors.New("privmsg: rate limited")

	// ErrEmptyRecipients is returned when a send has no recipient.
	ErrEmptyRecipients = errors.New("privmsg: no recipients")

	// ErrUnknownRecipient is returned when a recipient is not a known user.
	ErrUnknownRecipient = errors.New("privmsg: unknown recipient")
)

// ValidationError provides details about a validation failure.
type ValidationError struct {
	Field   string // The field that failed validation
	Message string // Human-readable error message
	Err     error  // Optional cause, such as ErrUnknownRecipient
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("privmsg: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidMessage, e.Err}
	}
	return []error{ErrInvalidMessage}
}

// ValidationErrors collects every field failure of one request.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Field + ": " + v.Message
	}
	return "privmsg: validation failed: " + strings.Join(parts, "; ")
}

func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, v := range e {
		errs[i] = v
	}
	return errs
}

// Fields returns the names of the failing fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, v := range e {
		fields[i] = v.Field
	}
	return fields
}

// err returns nil when no failure was collected.
func (e ValidationErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// BlockedError is returned when a recipient has the sender on their ignore list.
type BlockedError struct {
	RecipientID string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("privmsg: recipient %s does not accept messages from this sender", e.RecipientID)
}

func (e *BlockedError) Unwrap() error {
	return ErrForbidden
}

// IsBlocked checks if the error is a blocked-recipient error and returns details.
func IsBlocked(err error) (*BlockedError, bool) {
	var be *BlockedError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// StorageError wraps a failure of the storage backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("privmsg: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *StorageError) Retryable() bool {
	return IsRetryableError(e.Err)
}

// storageError wraps err unless it is already a package error that callers
// match with errors.Is. Store not-found and conflict errors are translated.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrDraftConsumed
	case errors.Is(err, store.ErrNotConnected):
		return ErrNotConnected
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsRetryableError determines if an error is retryable.
// Returns true for temporary/transient errors, false for permanent errors.
//
// ErrDraftConsumed is permanent: the draft is gone once another send took
// it, so repeating the same request cannot succeed. Callers should reload
// their drafts and sent messages instead.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	permanentErrors := []error{
		ErrNotFound,
		ErrForbidden,
		ErrInvalidMessage,
		ErrDraftConsumed,
		ErrUnsupportedStatus,
		ErrInvalidUserID,
		ErrInvalidHash,
		ErrEmptyRecipients,
		ErrUnknownRecipient,
		store.ErrNotFound,
		store.ErrInvalidID,
		store.ErrDuplicateEntry,
		store.ErrConflict,
		store.ErrFilterInvalid,
		store.ErrEmptyDelivery,
	}
	for _, permErr := range permanentErrors {
		if errors.Is(err, permErr) {
			return false
		}
	}

	retryableErrors := []error{
		ErrRateLimited,
		ErrNotConnected,
		store.ErrNotConnected,
		store.ErrTransactionFailed,
	}
	for _, retryErr := range retryableErrors {
		if errors.Is(err, retryErr) {
			return true
		}
	}

	// Unknown errors are treated as transient network or timeout failures.
	return true
}

// EventPublishError is returned when event publishing fails but the operation succeeded.
type EventPublishError struct {
	Event string // The event name (e.g., "MessageSent", "MessageRead")
	Hash  string // The message hash the event was for
	Err   error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("privmsg: event %s publish failed for message %s: %v", e.Event, e.Hash, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and returns details.
// This is useful when eventErrorsFatal=true but you still want to know the message was sent.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}
